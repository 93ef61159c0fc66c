package questionparser

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SectionInput is one exam section's pasted bulk text
type SectionInput struct {
	Name    string
	RawText string
}

// SectionResult pairs a section name with its extracted records
type SectionResult struct {
	Name   string      `json:"name"`
	Result *BulkResult `json:"result"`
}

// ParseSections runs one bulk extraction per section concurrently. It is
// all-or-nothing: the first failure cancels the rest and no results are
// returned. Results keep the order of sections.
func (e *Extractor) ParseSections(ctx context.Context, sections []SectionInput) ([]SectionResult, error) {
	if len(sections) == 0 {
		return nil, ErrEmptyInput
	}

	// Pre-flight every section so a bad one costs no oracle calls
	for _, s := range sections {
		if err := e.checkInput(s.RawText, len(SplitBlocks(s.RawText))); err != nil {
			return nil, fmt.Errorf("section %q: %w", s.Name, err)
		}
	}

	results := make([]SectionResult, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SectionConcurrency)

	for i, s := range sections {
		g.Go(func() error {
			res, err := e.ParseBulkQuestions(gctx, s.RawText)
			if err != nil {
				return fmt.Errorf("section %q: %w", s.Name, err)
			}
			results[i] = SectionResult{Name: s.Name, Result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
