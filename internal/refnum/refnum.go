// Package refnum mints human-readable reference numbers such as
// INV-00042. A candidate is derived from the current record count and
// committed against a unique index; collisions with concurrent writers
// are retried with the next ordinal.
package refnum

import (
	"context"
	"fmt"
	"log/slog"
)

// Allocation limits.
const (
	// MaxAttempts bounds the retries for one allocation.
	MaxAttempts = 25
	// SuffixAfter is the attempt from which candidates carry an
	// "-{attempt}" suffix.
	SuffixAfter = 10
	// DefaultWidth is the zero-padded width of the ordinal.
	DefaultWidth = 5
)

// Spec describes one numbering scope.
type Spec struct {
	// Prefix such as "INV".
	Prefix string
	// Width of the zero-padded ordinal. Zero means DefaultWidth.
	Width int
	// Count returns the number of records already in the scope.
	Count func(ctx context.Context) (int, error)
	// IsCollision reports whether a commit error is a uniqueness
	// violation worth retrying.
	IsCollision func(error) bool
	// Logger receives collision diagnostics. Optional.
	Logger *slog.Logger
}

// ExhaustedError is returned when every attempt collided.
type ExhaustedError struct {
	Prefix   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not allocate a unique %s number after %d attempts: %v", e.Prefix, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Candidate formats the reference number for a count and attempt.
func Candidate(prefix string, width, count, attempt int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	ref := fmt.Sprintf("%s-%0*d", prefix, width, count+1+attempt)
	if attempt >= SuffixAfter {
		ref = fmt.Sprintf("%s-%d", ref, attempt)
	}
	return ref
}

// Allocate mints a number in spec's scope and hands it to commit. Commit
// must persist the record under that number atomically, failing with a
// collision error if the number is taken. The committed number is
// returned. Errors that are not collisions are returned immediately.
func Allocate(ctx context.Context, spec Spec, commit func(ctx context.Context, ref string) error) (string, error) {
	if spec.Count == nil || spec.IsCollision == nil {
		return "", fmt.Errorf("refnum: spec for %s is missing Count or IsCollision", spec.Prefix)
	}

	var last error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		count, err := spec.Count(ctx)
		if err != nil {
			return "", fmt.Errorf("count %s records: %w", spec.Prefix, err)
		}

		ref := Candidate(spec.Prefix, spec.Width, count, attempt)
		err = commit(ctx, ref)
		if err == nil {
			return ref, nil
		}
		if !spec.IsCollision(err) {
			return "", err
		}

		last = err
		if spec.Logger != nil {
			spec.Logger.Debug("reference number collision",
				"prefix", spec.Prefix,
				"candidate", ref,
				"attempt", attempt,
			)
		}
	}

	return "", &ExhaustedError{Prefix: spec.Prefix, Attempts: MaxAttempts, Last: last}
}
