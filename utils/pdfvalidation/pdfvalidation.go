package pdfvalidation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLimits bounds what an upload may contain
type PDFLimits struct {
	MaxFileSizeMB    int
	MaxPages         int
	DocumentTypeName string // used in rejection messages, e.g. "question paper"
}

// QuestionPaperLimits bound a question paper uploaded for bulk import.
// Thirty questions rarely span more than a handful of pages.
var QuestionPaperLimits = PDFLimits{
	MaxFileSizeMB:    10,
	MaxPages:         20,
	DocumentTypeName: "question paper",
}

func (l PDFLimits) maxBytes() int64 { return int64(l.MaxFileSizeMB) << 20 }

var pdfHeader = []byte("%PDF-")

// Rejection reasons
var (
	ErrTooLarge     = errors.New("file too large")
	ErrNotPDF       = errors.New("not a PDF")
	ErrTooManyPages = errors.New("too many pages")
	ErrNoPages      = errors.New("no pages")
	ErrUnparseable  = errors.New("unparseable PDF")
)

// RejectedError is an upload that failed validation. Message is safe to
// show to the uploader; errors.Is matches the reason.
type RejectedError struct {
	Reason  error
	Message string
}

func (e *RejectedError) Error() string { return e.Message }
func (e *RejectedError) Unwrap() error { return e.Reason }

func reject(reason error, format string, args ...interface{}) *RejectedError {
	return &RejectedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ValidatePDFFile reads a multipart upload and validates it against limits.
// It returns the file content and page count so callers read the upload once.
// Validation failures are *RejectedError; any other error is an I/O failure.
func ValidatePDFFile(file *multipart.FileHeader, limits PDFLimits) ([]byte, int, error) {
	if file.Size > limits.maxBytes() {
		return nil, 0, reject(ErrTooLarge, "File size exceeds maximum allowed size of %dMB", limits.MaxFileSizeMB)
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return nil, 0, reject(ErrNotPDF, "Only PDF files are supported")
	}

	f, err := file.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit so a lying Size header is still caught
	content, err := io.ReadAll(io.LimitReader(f, limits.maxBytes()+1))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read file: %w", err)
	}

	pages, err := ValidatePDFBytes(content, limits)
	if err != nil {
		return nil, 0, err
	}
	return content, pages, nil
}

// ValidatePDFBytes checks size, header and page count and returns the page count
func ValidatePDFBytes(content []byte, limits PDFLimits) (int, error) {
	if int64(len(content)) > limits.maxBytes() {
		return 0, reject(ErrTooLarge, "File size exceeds maximum allowed size of %dMB", limits.MaxFileSizeMB)
	}
	if !bytes.HasPrefix(content, pdfHeader) {
		return 0, reject(ErrNotPDF, "Invalid PDF file: missing PDF header")
	}

	pages, err := PageCount(content)
	switch {
	case err != nil:
		return 0, reject(ErrUnparseable, "Failed to read PDF: %v", err)
	case pages == 0:
		return 0, reject(ErrNoPages, "PDF has no pages")
	case pages > limits.MaxPages:
		return 0, reject(ErrTooManyPages, "PDF has %d pages, which exceeds the maximum of %d pages for %s",
			pages, limits.MaxPages, limits.DocumentTypeName)
	}
	return pages, nil
}

// Sanitize cuts anything after the last %%EOF marker (and its line ending).
// PDFs saved from the web often have HTML appended.
func Sanitize(content []byte) []byte {
	if !bytes.HasPrefix(content, pdfHeader) {
		return content
	}

	end := bytes.LastIndex(content, []byte("%%EOF"))
	if end < 0 {
		return content
	}
	end += len("%%EOF")
	for end < len(content) && (content[end] == '\n' || content[end] == '\r') {
		end++
	}
	return content[:end]
}

// PageCount returns the number of pages in a PDF
func PageCount(content []byte) (int, error) {
	content = Sanitize(content)

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return r.NumPage(), nil
}
