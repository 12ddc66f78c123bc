package models

import "errors"

var (
	// ErrTransport covers unreachable endpoints, timeouts and non-2xx responses
	ErrTransport = errors.New("transport error")
	// ErrParse means the response was not JSON or lacked an expected field
	ErrParse = errors.New("parse error")
	// ErrAuthorizationDenied means a platform collaborator refused to supply data
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrSessionInactive means no live biometric session is running
	ErrSessionInactive = errors.New("session inactive")
	// ErrInvalidURL means an endpoint URL could not be constructed
	ErrInvalidURL = errors.New("invalid URL")
)
