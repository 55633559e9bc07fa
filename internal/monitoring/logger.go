// Package monitoring is the pipeline's hook for advisory diagnostics.
// Conditions the pipeline absorbs rather than surfaces, such as a
// failed OSRM health probe, go through Logf so one swap can redirect
// or silence them all.
package monitoring

import "log"

// Logf emits one diagnostic line. The default sink is log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the sink behind Logf. A nil sink discards
// diagnostics, which keeps test output quiet.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
