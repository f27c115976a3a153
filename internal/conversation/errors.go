// ABOUTME: Error types for the conversation engine
// ABOUTME: Failures never reach callers of Handle; these are for logs and metrics

package conversation

import "errors"

// ErrUpstreamUnavailable wraps record store failures during a dispatch.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
