package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

func TestExporterCollectsDeviceGauges(t *testing.T) {
	pool := device.NewPool(t.TempDir())
	pool.DisableFsIDCheck()
	dir := t.TempDir()
	h, err := device.OpenDirectory(dir, "disk-a", 1<<20, device.TierHot)
	require.NoError(t, err)
	require.NoError(t, pool.Add(h, dir))

	store, err := metadata.Open(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(nil))

	exp := NewExporter(pool, store)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(exp))

	count, err := testutil.GatherAndCount(reg, "redfs_device_capacity_bytes")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
