package models

import "errors"

// Sentinel errors returned by the store layer. Handlers map these to HTTP
// status codes.
var (
	ErrSTPNotFound         = errors.New("stp not found")
	ErrSDPNotFound         = errors.New("sdp not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrDuplicateSTP        = errors.New("stp already exists")
)
