// Package nl2sql turns an HR question into candidate SQL via an external
// text-generation service. Anything a Generator returns is untrusted input
// for the validator, never executable text.
package nl2sql

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers network failures, quota exhaustion, and server
	// errors from the generation backend.
	ErrUnavailable = errors.New("generation unavailable")
	// ErrTimeout indicates the generation request exceeded its deadline.
	ErrTimeout = errors.New("generation timed out")
)

// Candidate is one generated SQL text plus provenance for the audit record.
type Candidate struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Candidate, error)
}
