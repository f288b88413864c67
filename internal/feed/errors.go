package feed

import "errors"

var (
	ErrNetworkFailure       = errors.New("network failure")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// ErrorKind classifies failures that never leave the live feed.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindNetworkFailure       ErrorKind = "network_failure"
	KindMalformedPayload     ErrorKind = "malformed_payload"
	KindTransportUnavailable ErrorKind = "transport_unavailable"
	KindUnknown              ErrorKind = "unknown"
)

// KindOf maps a (possibly wrapped) error onto its kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedPayload):
		return KindMalformedPayload
	case errors.Is(err, ErrTransportUnavailable):
		return KindTransportUnavailable
	case errors.Is(err, ErrNetworkFailure):
		return KindNetworkFailure
	default:
		return KindUnknown
	}
}
