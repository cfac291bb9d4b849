package cli

import (
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
)

const progressBarWidth = 64

// newCountBar renders a total/count progress bar for a long sweep, grounded
// on the teacher's object.go/downloader.go usage of mpb for long-running
// put/download operations. Only used on the plain-text output path: a
// --json invocation's output is one buffered envelope, and a bar's cursor
// control codes have no business inside piped JSON.
func newCountBar(p *mpb.Progress, total int, label string) *mpb.Bar {
	return p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
	)
}
