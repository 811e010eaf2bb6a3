// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the library.
var (
	// ErrNoSource is returned when neither a listing URL nor a manifest is given.
	ErrNoSource = errors.New("one of a listing URL or a manifest is required")

	// ErrConflictingSource is returned when both a listing URL and a manifest are given.
	ErrConflictingSource = errors.New("a listing URL and a manifest cannot be used together")

	// ErrNoEntries is returned when discovery yields nothing to work with.
	ErrNoEntries = errors.New("no matching files found")

	// ErrUnauthorized is returned when the page or file requires a token.
	ErrUnauthorized = errors.New("unauthorized: this repository requires authentication")

	// ErrNotFound is returned when the page or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the host answers 429.
	ErrRateLimited = errors.New("rate limited: too many requests")
)

// StatusError is a non-2xx answer from the hosting site.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Is implements errors.Is for common error comparisons.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return target == ErrUnauthorized
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	default:
		return false
	}
}

// ManifestError is returned when a manifest cannot be read or written.
type ManifestError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("%s manifest %s: %v", e.Op, e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// FetchError wraps an error with file context.
type FetchError struct {
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
