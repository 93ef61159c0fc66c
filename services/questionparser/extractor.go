package questionparser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

// BulkPolicy decides what happens to bulk elements that fail validation
type BulkPolicy string

const (
	// BulkPolicyLenient drops invalid elements and reports them; it fails only if none survive
	BulkPolicyLenient BulkPolicy = "lenient"
	// BulkPolicyStrict fails the whole batch on any invalid element
	BulkPolicyStrict BulkPolicy = "strict"
)

// ParseBulkPolicy parses a policy name; empty means lenient
func ParseBulkPolicy(s string) (BulkPolicy, error) {
	switch BulkPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BulkPolicyLenient:
		return BulkPolicyLenient, nil
	case BulkPolicyStrict:
		return BulkPolicyStrict, nil
	}
	return "", fmt.Errorf("unknown bulk policy %q (want lenient or strict)", s)
}

// Defaults
const (
	DefaultMaxInputBytes      = 64 * 1024
	DefaultMaxBulkBlocks      = 30
	DefaultSectionConcurrency = 4
)

// Config bounds what a single extraction call will accept
type Config struct {
	MaxInputBytes      int
	MaxBulkBlocks      int
	BulkPolicy         BulkPolicy
	SectionConcurrency int
}

// DefaultConfig returns the default extraction limits
func DefaultConfig() Config {
	return Config{
		MaxInputBytes:      DefaultMaxInputBytes,
		MaxBulkBlocks:      DefaultMaxBulkBlocks,
		BulkPolicy:         BulkPolicyLenient,
		SectionConcurrency: DefaultSectionConcurrency,
	}
}

// BulkResult is the outcome of one bulk extraction
type BulkResult struct {
	Records []model.BulkQuestionRecord `json:"records"`
	Dropped []DroppedRecord            `json:"dropped,omitempty"`
	Blocks  int                        `json:"blocks"`
	// RawOutput is the oracle text the records were validated from
	RawOutput RawOutput `json:"-"`
}

// Extractor turns raw pasted text into validated questions through an Oracle.
// It keeps no state between calls and is safe for concurrent use.
type Extractor struct {
	oracle Oracle
	cfg    Config
	log    *utils.Logger
}

// NewExtractor creates an extractor. Zero config fields take their defaults.
func NewExtractor(oracle Oracle, cfg Config, log *utils.Logger) *Extractor {
	def := DefaultConfig()
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = def.MaxInputBytes
	}
	if cfg.MaxBulkBlocks <= 0 {
		cfg.MaxBulkBlocks = def.MaxBulkBlocks
	}
	if cfg.BulkPolicy == "" {
		cfg.BulkPolicy = def.BulkPolicy
	}
	if cfg.SectionConcurrency <= 0 {
		cfg.SectionConcurrency = def.SectionConcurrency
	}
	if log == nil {
		log = utils.L()
	}
	return &Extractor{oracle: oracle, cfg: cfg, log: log}
}

// Config returns the effective configuration
func (e *Extractor) Config() Config {
	return e.cfg
}

// SplitBlocks splits bulk text on lines holding only ---, dropping blank blocks
func SplitBlocks(rawText string) []string {
	var blocks []string
	var current []string
	flush := func() {
		block := strings.TrimSpace(strings.Join(current, "\n"))
		if block != "" {
			blocks = append(blocks, block)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(rawText, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// ParseSingleQuestion extracts exactly one Standard or Reading-Comprehension
// question from rawText with one oracle call. The oracle decides the variant.
func (e *Extractor) ParseSingleQuestion(ctx context.Context, rawText string) (*model.Question, error) {
	const op = "ParseSingleQuestion"

	if err := e.checkInput(rawText, 0); err != nil {
		return nil, err
	}

	out, err := e.invoke(ctx, op, SingleQuestionInstructions, Descriptor(ShapeSingleQuestion), rawText)
	if err != nil {
		return nil, err
	}

	payload, err := extractPayload(op, out)
	if err != nil {
		return nil, withOutput(err, out)
	}

	q, err := ValidateSingle(payload)
	if err != nil {
		e.log.Warn("oracle output rejected", "op", op, "error", err)
		return nil, withOutput(failed(op, "oracle output failed validation", err), out)
	}

	return q, nil
}

// ParseBulkQuestions extracts one record per ---delimited block with a single
// oracle call. Records come back in input order; invalid elements are handled
// according to the configured BulkPolicy.
func (e *Extractor) ParseBulkQuestions(ctx context.Context, rawText string) (*BulkResult, error) {
	const op = "ParseBulkQuestions"

	blocks := SplitBlocks(rawText)
	if err := e.checkInput(rawText, len(blocks)); err != nil {
		return nil, err
	}

	out, err := e.invoke(ctx, op, BulkQuestionInstructions, Descriptor(ShapeBulkQuestionList), rawText)
	if err != nil {
		return nil, err
	}

	res, err := e.validateBulkOutput(op, out, len(blocks))
	if err != nil {
		return nil, withOutput(err, out)
	}
	return res, nil
}

func (e *Extractor) validateBulkOutput(op string, out RawOutput, blocks int) (*BulkResult, error) {
	payload, err := extractPayload(op, out)
	if err != nil {
		return nil, err
	}

	bv, err := ValidateBulkElements(payload)
	if err != nil {
		e.log.Warn("oracle output rejected", "op", op, "error", err)
		return nil, failed(op, "oracle output is not an object wrapping a questions array", err)
	}

	total := len(bv.Records) + len(bv.Dropped)
	if total != blocks {
		e.log.Debug("record count differs from block count", "op", op, "records", total, "blocks", blocks)
	}

	if len(bv.Dropped) > 0 {
		var violations []Violation
		for _, d := range bv.Dropped {
			violations = append(violations, d.Violations...)
		}
		verr := &ValidationError{Shape: ShapeBulkQuestionList, Violations: violations}

		if e.cfg.BulkPolicy == BulkPolicyStrict {
			return nil, failed(op, fmt.Sprintf("%d of %d question records are invalid", len(bv.Dropped), total), verr)
		}
		if len(bv.Records) == 0 {
			return nil, failed(op, "no question record passed validation", verr)
		}
		e.log.Info("dropped invalid bulk records", "op", op, "dropped", len(bv.Dropped), "kept", len(bv.Records))
	}

	if len(bv.Records) == 0 {
		return nil, failed(op, "empty model output", ErrEmptyOutput)
	}

	return &BulkResult{
		Records:   bv.Records,
		Dropped:   bv.Dropped,
		Blocks:    blocks,
		RawOutput: out,
	}, nil
}

func (e *Extractor) checkInput(rawText string, blocks int) error {
	if strings.TrimSpace(rawText) == "" {
		return ErrEmptyInput
	}
	if len(rawText) > e.cfg.MaxInputBytes {
		return &InputTooLargeError{Bytes: len(rawText), MaxBytes: e.cfg.MaxInputBytes, Blocks: blocks, MaxBlocks: e.cfg.MaxBulkBlocks}
	}
	if blocks > e.cfg.MaxBulkBlocks {
		return &InputTooLargeError{Bytes: len(rawText), MaxBytes: e.cfg.MaxInputBytes, Blocks: blocks, MaxBlocks: e.cfg.MaxBulkBlocks}
	}
	return nil
}

func (e *Extractor) invoke(ctx context.Context, op, instructions string, schema SchemaDescriptor, rawText string) (RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return "", contextError(op, err)
	}

	start := time.Now()
	out, err := e.oracle.Invoke(ctx, instructions, schema, rawText)
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", contextError(op, ctxErr)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", contextError(op, err)
		}
		e.log.Error("oracle call failed", "op", op, "duration_ms", elapsed.Milliseconds(), "error", err)
		if errors.Is(err, ErrOracleUnavailable) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", fmt.Errorf("%s: %w: %v", op, ErrOracleUnavailable, err)
	}

	e.log.Debug("oracle call completed",
		"op", op,
		"schema", schema.Name,
		"instructions_version", InstructionsVersion,
		"input_bytes", len(rawText),
		"output_bytes", len(out),
		"duration_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return err
}

// extractPayload salvages the JSON object from oracle text that may carry
// markdown fences or chatter around it.
func extractPayload(op string, out RawOutput) ([]byte, error) {
	text := strings.TrimSpace(string(out))
	if text == "" || text == "null" {
		return nil, failed(op, "empty model output", ErrEmptyOutput)
	}
	jsonStr, err := utils.ExtractJSON(text)
	if err != nil {
		return nil, failed(op, "oracle output holds no JSON", fmt.Errorf("%w: %v", ErrUnparseableOutput, err))
	}
	if strings.TrimSpace(jsonStr) == "null" {
		return nil, failed(op, "empty model output", ErrEmptyOutput)
	}
	return []byte(jsonStr), nil
}
