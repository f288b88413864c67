package api

import "errors"

var (
	ErrNotFound    = errors.New("resource not found")
	ErrRateLimited = errors.New("rate limited by backend")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrRejected    = errors.New("backend rejected the request")
	ErrCSRFMissing = errors.New("csrf token not found")
)
