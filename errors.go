/*
Copyright © 2025 ChinHongTan
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// errPushTimeout marks the one class of upstream push failure that is worth
// retrying. Everything else propagates immediately.
var errPushTimeout = errors.New("push timeout")

// errReconnectsExhausted is terminal: the relay stops trying and stays down
// until the process is restarted.
var errReconnectsExhausted = errors.New("maximum reconnection attempts exhausted")

// pushRejection is an explicit error receipt from the upstream for a pushed
// event. Never retried.
type pushRejection struct {
	event  string
	reason string
}

func (e *pushRejection) Error() string {
	return fmt.Sprintf("event %q rejected by upstream: %s", e.event, e.reason)
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// errorf logs regardless of verbosity. Used for failures that are swallowed
// rather than surfaced, so they at least leave a trace.
func errorf(format string, args ...any) {
	log.Printf("%s | ERROR: "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
