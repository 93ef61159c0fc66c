package questionparser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned before any oracle call when the raw text is blank
	ErrEmptyInput = errors.New("raw text is empty")

	// ErrOracleUnavailable means the oracle could not be reached or failed at the transport level
	ErrOracleUnavailable = errors.New("extraction oracle unavailable")

	// ErrEmptyOutput means the oracle answered without a usable output object
	ErrEmptyOutput = errors.New("empty model output")

	// ErrUnparseableOutput means the oracle output held no decodable JSON object
	ErrUnparseableOutput = errors.New("unparseable model output")

	// ErrTimeout means the caller's deadline expired while the oracle call was in flight
	ErrTimeout = errors.New("extraction timed out")
)

// Violation is one field-level failure found by the validator
type Violation struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Block is the 1-based bulk block the violation belongs to, 0 otherwise
	Block int `json:"block,omitempty"`
}

// Violation codes
const (
	CodeRequired         = "required"
	CodeWrongType        = "wrong_type"
	CodeEmpty            = "empty"
	CodeTooFewOptions    = "too_few_options"
	CodeOptionCount      = "option_count"
	CodeIndexOutOfBounds = "index_out_of_bounds"
	CodeNotInteger       = "not_integer"
	CodeInvalidEnum      = "invalid_enum"
	CodeNotPositive      = "not_positive"
	CodeAmbiguousType    = "ambiguous_type"
	CodeUnclassifiable   = "unclassifiable_type"
	CodeSubQuestionCount = "sub_question_count"
	CodeMissingWrapper   = "missing_wrapper"
)

func (v Violation) String() string {
	prefix := v.Path
	if v.Block > 0 {
		prefix = fmt.Sprintf("block %d: %s", v.Block, v.Path)
	}
	if prefix == "" {
		return v.Message
	}
	return prefix + ": " + v.Message
}

// ValidationError carries every violation found in one candidate value
type ValidationError struct {
	Shape      Shape
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s validation failed (%d violations): %s", e.Shape, len(e.Violations), strings.Join(parts, "; "))
}

// HasCode reports whether any violation carries the given code
func (e *ValidationError) HasCode(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// ExtractionFailedError is the umbrella error returned to callers when the
// oracle produced nothing usable or its output failed validation.
type ExtractionFailedError struct {
	Op     string
	Reason string
	Err    error
	// Output is the oracle text that was rejected, empty for pre-oracle failures
	Output RawOutput
}

func (e *ExtractionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: extraction failed: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: extraction failed: %s", e.Op, e.Reason)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }

// Violations returns the validator's violation list when the failure came from validation
func (e *ExtractionFailedError) Violations() []Violation {
	var ve *ValidationError
	if errors.As(e.Err, &ve) {
		return ve.Violations
	}
	return nil
}

// InputTooLargeError is returned before any oracle call when the raw text
// exceeds the configured byte or block ceiling.
type InputTooLargeError struct {
	Bytes     int
	MaxBytes  int
	Blocks    int
	MaxBlocks int
}

func (e *InputTooLargeError) Error() string {
	if e.MaxBlocks > 0 && e.Blocks > e.MaxBlocks {
		return fmt.Sprintf("input too large: %d question blocks exceeds the limit of %d", e.Blocks, e.MaxBlocks)
	}
	return fmt.Sprintf("input too large: %d bytes exceeds the limit of %d", e.Bytes, e.MaxBytes)
}

func failed(op, reason string, err error) error {
	return &ExtractionFailedError{Op: op, Reason: reason, Err: err}
}

// withOutput attaches the rejected oracle text to an extraction failure
func withOutput(err error, out RawOutput) error {
	var ef *ExtractionFailedError
	if errors.As(err, &ef) {
		ef.Output = out
	}
	return err
}
