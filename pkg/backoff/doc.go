// Package backoff computes exponential retry delays with jitter.
//
// The SRP client uses it between registration attempts and the serial
// radio uses it between reopen attempts:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// The base delay grows by Multiplier after every attempt and is capped at
// Max. Reset returns to Initial after a success.
package backoff
