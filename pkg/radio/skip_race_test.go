//go:build race

package radio_test

import "testing"

// skipRace skips tests that move frames through the proxy queues. The race
// detector cannot see the SPSC queue's cross-variable memory ordering.
func skipRace(tb testing.TB) {
	tb.Helper()
	tb.Skip("skip: SPSC uses cross-variable memory ordering")
}
