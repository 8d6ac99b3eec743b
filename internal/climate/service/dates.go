package service

import (
	"fmt"
	"time"
)

// DateLayout is the storage format of measurement dates.
const DateLayout = "2006-01-02"

// lookback is the window of the precipitation and tobs routes.
const lookback = 365

// ParseDate validates that s is a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidInput, s)
	}
	return t, nil
}

// yearBefore returns the date 365 days before date, both as YYYY-MM-DD.
func yearBefore(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("stored date %q: %w", date, err)
	}
	return t.AddDate(0, 0, -lookback).Format(DateLayout), nil
}
