// Package domain holds the shared types, interfaces, and sentinel errors used
// across the bot's packages.
package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoMarketData = errors.New("no usable market-data source configured")
	ErrStaleBook    = errors.New("order book stale")
)
