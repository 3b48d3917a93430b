package attestation

import "strings"

// ErrorKind is the reclassification of an attestation SDK error message.
// The SDK's verbatim messages are not fit to surface: some describe
// transient conditions, one fires merely because the foreground page
// went idle mid-flow.
type ErrorKind int

const (
	// KindOther is an unrecognized SDK error.
	KindOther ErrorKind = iota
	// KindTransient is a timeout or network hiccup, retryable by the user.
	KindTransient
	// KindCancelled means the user dismissed the flow. Only actionable
	// while the tab is visible.
	KindCancelled
	// KindIntervalEnded is the SDK's "interval ended without receiving
	// proof". Informational: the proof may still land on the relay, so
	// the user is told to refresh rather than shown an alarm.
	KindIntervalEnded
)

// Classify maps an SDK error message onto an ErrorKind.
func Classify(message string) ErrorKind {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "interval ended without receiving proof"):
		return KindIntervalEnded
	case strings.Contains(m, "cancel"):
		return KindCancelled
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"), strings.Contains(m, "network"):
		return KindTransient
	default:
		return KindOther
	}
}
