package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoProxies          = errors.New("no proxies available")
	ErrMalformedHistogram = errors.New("malformed order histogram")
	ErrMalformedListing   = errors.New("malformed listing payload")
	ErrLockHeld           = errors.New("lock already held")
	ErrPurchaseRejected   = errors.New("purchase rejected")
)
