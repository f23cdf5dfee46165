package upstream

import (
	"errors"
	"fmt"
)

// Source names one of the remote endpoints polled for a node.
type Source string

const (
	SourceInfo    Source = "info"
	SourceSpecs   Source = "specs"
	SourceMarkets Source = "markets"
	SourceJobs    Source = "jobs"
	SourceAccount Source = "account"
)

// ErrUnexpectedShape is returned when a body is valid JSON of the wrong kind.
var ErrUnexpectedShape = errors.New("unexpected response shape")

// FetchError describes a failed request to one source. StatusCode is zero
// when no response was received.
type FetchError struct {
	Source     Source
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch from %s: status %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch from %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is the outcome of fetching one source. Exactly one of Value and Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// ValueOr returns the fetched value, or fallback when the fetch failed.
func (r Result[T]) ValueOr(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}
