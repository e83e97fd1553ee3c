// Package errs defines the closed set of error kinds the core surfaces
// across package boundaries, per the propagation policy: batch operations
// carry one of these per failed item, single-file operations fail fast.
package errs

import "fmt"

type Kind string

const (
	KindParse    Kind = "ParseError"
	KindQuota    Kind = "QuotaExceeded"
	KindNotFound Kind = "NotFound"
	KindInUse    Kind = "InUse"
	KindEval     Kind = "EvalError"
	KindFit      Kind = "FitError"
	KindFormat   Kind = "FormatError"
)

// ParseError reports malformed input local to one file.
type ParseError struct {
	File   string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %s", KindParse, e.File, e.Detail)
}

func (e *ParseError) Kind() Kind { return KindParse }

// QuotaError reports a per-file or aggregate quota violation.
type QuotaError struct {
	ResourceKind string // "files", "file_size", "memory"
	Want         float64
	Have         float64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %s exceeded: have %.2f, want %.2f", KindQuota, e.ResourceKind, e.Have, e.Want)
}

func (e *QuotaError) Kind() Kind { return KindQuota }

// NotFoundError reports an unknown session, filename, scan, ROI, or reference.
type NotFoundError struct {
	ResourceKind string // "session", "filename", "scan", "roi", "reference"
	ID           string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", KindNotFound, e.ResourceKind, e.ID)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

// InUseError reports a deletion blocked by dependent records.
type InUseError struct {
	ResourceKind string
	ID           string
	Count        int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s: %s %q is referenced by %d record(s)", KindInUse, e.ResourceKind, e.ID, e.Count)
}

func (e *InUseError) Kind() Kind { return KindInUse }

// EvalError reports an expression evaluator failure.
type EvalError struct {
	Expression string
	Detail     string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %q: %s", KindEval, e.Expression, e.Detail)
}

func (e *EvalError) Kind() Kind { return KindEval }

// FitError reports a peak-fit solver failure or invalid input.
type FitError struct {
	Detail string
}

func (e *FitError) Error() string {
	return fmt.Sprintf("%s: %s", KindFit, e.Detail)
}

func (e *FitError) Kind() Kind { return KindFit }

// FormatError reports an unrecognized session import container.
type FormatError struct {
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", KindFormat, e.Detail)
}

func (e *FormatError) Kind() Kind { return KindFormat }
