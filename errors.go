package main

import "errors"

var (
	errConfigInvalid   = errors.New("invalid config")
	errProtocol        = errors.New("protocol error")
	errPoolExhausted   = errors.New("extranonce pool exhausted")
	errStaleShare      = errors.New("stale share")
	errDuplicateShare  = errors.New("duplicate share")
	errLowDifficulty   = errors.New("low difficulty share")
	errNodeUnavailable = errors.New("node unavailable")
	errInstanceFatal   = errors.New("instance failed")
)

// shareRejectReason maps a share error to the label used in logs and
// metrics. Unknown errors are reported as "invalid".
func shareRejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errStaleShare):
		return "stale"
	case errors.Is(err, errDuplicateShare):
		return "duplicate"
	case errors.Is(err, errLowDifficulty):
		return "low_difficulty"
	default:
		return "invalid"
	}
}
