package performance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrParse marks a scraped cell or date that is not in the expected format.
	ErrParse = errors.New("parse failure")
	// ErrJoin marks a merge that could not produce exactly one row per canonical route.
	ErrJoin = errors.New("join failure")
)

type ParseError struct {
	Field string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// JoinError lists every canonical route that could not be joined.
type JoinError struct {
	MissingTrailing []Route
	MissingTarget   []Route
	Duplicates      []Route
	// Suggestions maps a route missing from the target data to the scraped
	// label that most resembles it, if any.
	Suggestions map[Route]string
}

func (e *JoinError) Error() string {
	var parts []string
	if len(e.MissingTrailing) > 0 {
		parts = append(parts, fmt.Sprintf("no trailing-window data for %s", joinRoutes(e.MissingTrailing)))
	}
	if len(e.MissingTarget) > 0 {
		parts = append(parts, fmt.Sprintf("no target data for %s", joinRoutes(e.MissingTarget)))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate target data for %s", joinRoutes(e.Duplicates)))
	}
	if len(e.Suggestions) > 0 {
		routes := make([]Route, 0, len(e.Suggestions))
		for r := range e.Suggestions {
			routes = append(routes, r)
		}
		sort.Slice(routes, func(i, j int) bool { return routes[i] < routes[j] })
		for _, r := range routes {
			parts = append(parts, fmt.Sprintf("%q looks like %q", e.Suggestions[r], r.String()))
		}
	}
	return fmt.Sprintf("merge: %s", strings.Join(parts, "; "))
}

func (e *JoinError) Unwrap() error {
	return ErrJoin
}

func joinRoutes(routes []Route) string {
	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
