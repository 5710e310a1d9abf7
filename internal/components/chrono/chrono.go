package chrono

import (
	"time"
	// zone database for hosts without /usr/share/zoneinfo
	_ "time/tzdata"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	// Now returns the current time in Location().
	Now() time.Time
	Location() *time.Location
}

// StandardImpl is the implementation of API backed by the system clock.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl creates a StandardImpl in the given IANA zone, the dashboard
// reports dates in Boston local time so "America/New_York" is what callers
// normally want.
func NewStandardImpl(zone string) (StandardImpl, error) {
	location, err := time.LoadLocation(zone)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same instant.
type FixedImpl struct {
	now time.Time
}

func NewFixedImpl(now time.Time) FixedImpl {
	return FixedImpl{now: now}
}

func (f FixedImpl) Now() time.Time {
	return f.now
}

func (f FixedImpl) Location() *time.Location {
	return f.now.Location()
}
