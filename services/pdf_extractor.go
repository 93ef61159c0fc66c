package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"github.com/sahilchouksey/exam-prep-api/utils/pdfvalidation"
)

var (
	// ErrScannedPDF means the PDF yielded almost no text, usually because it is image-based
	ErrScannedPDF = errors.New("insufficient text extracted from PDF, it may be scanned and need OCR")
	// ErrUnreadablePDF means the content could not be opened as a PDF
	ErrUnreadablePDF = errors.New("unreadable PDF")
)

// minPDFTextChars is the least extracted text accepted from a question paper
const minPDFTextChars = 50

// PDFExtractor turns a text-based question paper into the plain text the
// bulk extractor reads
type PDFExtractor struct {
	log *utils.Logger
}

func NewPDFExtractor(log *utils.Logger) *PDFExtractor {
	if log == nil {
		log = utils.L()
	}
	return &PDFExtractor{log: log.With("component", "pdf")}
}

// ExtractText returns one line per text row and a blank line between pages,
// so question numbering and typed "---" delimiters survive
func (p *PDFExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrUnreadablePDF)
	}
	content = pdfvalidation.Sanitize(content)

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	pages := reader.NumPage()
	if pages == 0 {
		return "", fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}

	var out strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		p.writePage(&out, page, i)
	}

	text := strings.TrimSpace(out.String())
	if len(text) < minPDFTextChars {
		return "", fmt.Errorf("%w (only %d characters)", ErrScannedPDF, len(text))
	}

	p.log.Debug("extracted PDF text", "pages", pages, "chars", len(text))
	return text, nil
}

func (p *PDFExtractor) writePage(out *strings.Builder, page pdf.Page, num int) {
	rows, err := page.GetTextByRow()
	if err != nil {
		// Some producers only work with the plain text walker
		text, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			p.log.Warn("page text extraction failed", "page", num, "error", plainErr)
			return
		}
		out.WriteString(strings.TrimSpace(text))
		out.WriteString("\n\n")
		return
	}

	for _, row := range rows {
		if line := joinRow(row.Content); line != "" {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	out.WriteByte('\n')
}

// joinRow concatenates the fragments of one row, adding a space where the
// gap between two fragments is wider than a quarter of the font size
func joinRow(texts []pdf.Text) string {
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			prev := texts[i-1]
			gap := t.X - (prev.X + prev.W)
			if gap > prev.FontSize/4 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
