package common

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn in a goroutine. A panic is logged with its stack and the in-flight
// runs instead of taking the process down.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := GetStackTrace()
			if logger == nil {
				fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stack)
				return
			}
			event := logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack)
			if runs := ActiveRuns(); len(runs) > 0 {
				event = event.Int("active_runs", len(runs))
			}
			event.Msg("Recovered from panic in goroutine")
		}()

		fn()
	}()
}
