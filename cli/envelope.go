package cli

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the JSON wire shape spec.md §6 requires for every command's
// --json output: {status, data|error, timestamp}.
type Envelope struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// emit writes result (success) or err (failure) either as the JSON envelope
// or as plain text, and returns the process exit error so urfave/cli sets
// the right exit code. asJSON false with a nil renderer just prints %v.
func emit(asJSON bool, result interface{}, err error, plain func(interface{})) error {
	now := time.Now()
	if err != nil {
		if asJSON {
			env := Envelope{Status: "error", Error: err.Error(), Timestamp: now}
			raw, _ := json.MarshalIndent(env, "", "  ")
			fmt.Fprintln(os.Stderr, string(raw))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return err
	}

	if asJSON {
		env := Envelope{Status: "ok", Data: result, Timestamp: now}
		raw, mErr := json.MarshalIndent(env, "", "  ")
		if mErr != nil {
			return mErr
		}
		fmt.Println(string(raw))
		return nil
	}

	if plain != nil {
		plain(result)
	} else if result != nil {
		fmt.Println(result)
	}
	return nil
}
