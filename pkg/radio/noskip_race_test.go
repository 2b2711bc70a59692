//go:build !race

package radio_test

import "testing"

func skipRace(tb testing.TB) {
	tb.Helper()
}
