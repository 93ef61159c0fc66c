package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Error codes recorded on ingestion logs and returned by the API
const (
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeInputTooLarge     = "INPUT_TOO_LARGE"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeOracleUnavailable = "ORACLE_UNAVAILABLE"
	CodeOracleTimeout     = "ORACLE_TIMEOUT"
	CodeCanceled          = "CANCELED"
	CodeInternal          = "INTERNAL_ERROR"
)

var (
	ErrIngestionNotFound = errors.New("ingestion not found")
	ErrDuplicateInput    = errors.New("section submitted more than once")
	ErrNotArchived       = errors.New("ingestion has no archived copy")
)

// maxStoredOutput caps the rejected oracle output kept on a failed log
const maxStoredOutput = 64 * 1024

// ErrorCode classifies an ingestion error
func ErrorCode(err error) string {
	var tooLarge *questionparser.InputTooLargeError
	var failed *questionparser.ExtractionFailedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, questionparser.ErrEmptyInput):
		return CodeEmptyInput
	case errors.As(err, &tooLarge):
		return CodeInputTooLarge
	case errors.Is(err, questionparser.ErrTimeout):
		return CodeOracleTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, questionparser.ErrOracleUnavailable):
		return CodeOracleUnavailable
	case errors.As(err, &failed):
		return CodeExtractionFailed
	}
	return CodeInternal
}

// IngestionArchive keeps a copy of each extraction call outside the database
type IngestionArchive interface {
	Put(ctx context.Context, key string, doc []byte) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// IngestionOptions configures an IngestionService
type IngestionOptions struct {
	// Timeout bounds each extraction call, including the oracle round trip
	Timeout time.Duration
	// Archive, when set, receives the submitted text and result of every call
	Archive       IngestionArchive
	ArchivePrefix string
	Logger        *utils.Logger
}

// IngestionService turns pasted text into stored exam questions and keeps an
// audit log of every extraction call
type IngestionService struct {
	db        *gorm.DB
	exams     *ExamService
	extractor *questionparser.Extractor
	pdf       *PDFExtractor
	opts      IngestionOptions
	log       *utils.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(db *gorm.DB, exams *ExamService, extractor *questionparser.Extractor, opts IngestionOptions) *IngestionService {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "ingestions"
	}
	log := opts.Logger
	if log == nil {
		log = utils.L()
	}
	return &IngestionService{
		db:        db,
		exams:     exams,
		extractor: extractor,
		pdf:       NewPDFExtractor(log),
		opts:      opts,
		log:       log.With("component", "ingestion"),
	}
}

// SingleParseResult is a parsed, unsaved question
type SingleParseResult struct {
	IngestionID uuid.UUID       `json:"ingestion_id"`
	Question    *model.Question `json:"question"`
}

// BulkParseResult holds parsed, unsaved bulk records
type BulkParseResult struct {
	IngestionID uuid.UUID                      `json:"ingestion_id"`
	Records     []model.BulkQuestionRecord     `json:"records"`
	Dropped     []questionparser.DroppedRecord `json:"dropped,omitempty"`
	Blocks      int                            `json:"blocks"`
}

// SectionImport lists what one section received from an import
type SectionImport struct {
	Name      string                         `json:"name"`
	Questions []model.ExamQuestion           `json:"questions"`
	Dropped   []questionparser.DroppedRecord `json:"dropped,omitempty"`
}

// ImportResult is the outcome of an import into an exam
type ImportResult struct {
	IngestionID uuid.UUID       `json:"ingestion_id"`
	ExamID      uint            `json:"exam_id"`
	Sections    []SectionImport `json:"sections"`
}

// outcome is what a finished call records on its log and archive
type outcome struct {
	records int
	dropped int
	result  interface{}
	output  questionparser.RawOutput
}

// ParseSingle extracts one question without saving it
func (s *IngestionService) ParseSingle(ctx context.Context, userID uint, rawText string) (*SingleParseResult, error) {
	entry := s.begin(ctx, model.IngestionModeSingle, userID, nil, "", rawText, 1)
	start := time.Now()

	q, err := s.parseSingle(ctx, rawText)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	s.finish(ctx, entry, rawText, start, outcome{records: 1, result: q}, nil)
	return &SingleParseResult{IngestionID: entry.ID, Question: q}, nil
}

// ParseBulk extracts bulk records without saving them
func (s *IngestionService) ParseBulk(ctx context.Context, userID uint, rawText string) (*BulkParseResult, error) {
	entry := s.begin(ctx, model.IngestionModeBulk, userID, nil, "", rawText, len(questionparser.SplitBlocks(rawText)))
	start := time.Now()

	res, err := s.parseBulk(ctx, rawText)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	s.finish(ctx, entry, rawText, start, bulkOutcome(res), nil)
	return &BulkParseResult{
		IngestionID: entry.ID,
		Records:     res.Records,
		Dropped:     res.Dropped,
		Blocks:      res.Blocks,
	}, nil
}

// ImportSingle extracts one question and appends it to an exam section
func (s *IngestionService) ImportSingle(ctx context.Context, userID, examID uint, section, rawText string) (*ImportResult, error) {
	if err := s.checkSection(ctx, examID, section); err != nil {
		return nil, err
	}

	entry := s.begin(ctx, model.IngestionModeSingle, userID, &examID, section, rawText, 1)
	start := time.Now()

	q, err := s.parseSingle(ctx, rawText)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	ingestionID := entry.ID.String()
	stored, err := s.exams.AddQuestions(ctx, examID, section, []model.Question{*q}, &ingestionID)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	s.finish(ctx, entry, rawText, start, outcome{records: 1, result: q}, nil)
	return &ImportResult{
		IngestionID: entry.ID,
		ExamID:      examID,
		Sections:    []SectionImport{{Name: section, Questions: stored}},
	}, nil
}

// ImportBulk extracts ---delimited questions and appends them to a section
func (s *IngestionService) ImportBulk(ctx context.Context, userID, examID uint, section, rawText string) (*ImportResult, error) {
	if err := s.checkSection(ctx, examID, section); err != nil {
		return nil, err
	}
	return s.importBulk(ctx, model.IngestionModeBulk, userID, examID, section, rawText)
}

// ImportBulkPDF extracts the text of a question paper PDF and imports it as bulk text
func (s *IngestionService) ImportBulkPDF(ctx context.Context, userID, examID uint, section string, content []byte) (*ImportResult, error) {
	if err := s.checkSection(ctx, examID, section); err != nil {
		return nil, err
	}

	text, err := s.pdf.ExtractText(ctx, content)
	if err != nil {
		return nil, err
	}

	return s.importBulk(ctx, model.IngestionModePDF, userID, examID, section, text)
}

// ImportSections runs one bulk extraction per section concurrently and stores
// every section in one transaction. Nothing is stored unless all succeed.
func (s *IngestionService) ImportSections(ctx context.Context, userID, examID uint, sections []questionparser.SectionInput) (*ImportResult, error) {
	seen := make(map[string]bool, len(sections))
	for _, sec := range sections {
		if seen[sec.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateInput, sec.Name)
		}
		seen[sec.Name] = true
		if err := s.checkSection(ctx, examID, sec.Name); err != nil {
			return nil, err
		}
	}

	combined, blocks := combineSections(sections)
	entry := s.begin(ctx, model.IngestionModeSections, userID, &examID, "", combined, blocks)
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	results, err := s.extractor.ParseSections(tctx, sections)
	cancel()
	if err != nil {
		s.finish(ctx, entry, combined, start, outcome{}, err)
		return nil, err
	}

	batches := make([]SectionQuestions, len(results))
	var total outcome
	for i, r := range results {
		batches[i] = SectionQuestions{Section: r.Name, Questions: recordsToQuestions(r.Result.Records, r.Name)}
		total.records += len(r.Result.Records)
		total.dropped += len(r.Result.Dropped)
	}
	total.result = results

	ingestionID := entry.ID.String()
	stored, err := s.exams.AddSectionQuestions(ctx, examID, batches, &ingestionID)
	if err != nil {
		s.finish(ctx, entry, combined, start, outcome{}, err)
		return nil, err
	}

	s.finish(ctx, entry, combined, start, total, nil)

	out := &ImportResult{IngestionID: entry.ID, ExamID: examID, Sections: make([]SectionImport, len(results))}
	for i, r := range results {
		out.Sections[i] = SectionImport{Name: r.Name, Questions: stored[i], Dropped: r.Result.Dropped}
	}
	return out, nil
}

// AddManualQuestion validates a hand-entered question and appends it to a
// section. No oracle is involved so no ingestion is logged.
func (s *IngestionService) AddManualQuestion(ctx context.Context, examID uint, section string, raw []byte) (*model.ExamQuestion, error) {
	q, err := questionparser.ValidateQuestion(raw, questionparser.ShapeManualQuestion)
	if err != nil {
		return nil, err
	}

	stored, err := s.exams.AddQuestions(ctx, examID, section, []model.Question{*q}, nil)
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// GetIngestion loads one ingestion log
func (s *IngestionService) GetIngestion(ctx context.Context, id uuid.UUID) (*model.IngestionLog, error) {
	var entry model.IngestionLog
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIngestionNotFound
		}
		return nil, fmt.Errorf("failed to fetch ingestion: %w", err)
	}
	return &entry, nil
}

// GetIngestionArchive returns the archived submission and result of one call.
// ErrNotArchived means the call was made while archiving was off, or the
// upload failed.
func (s *IngestionService) GetIngestionArchive(ctx context.Context, id uuid.UUID) ([]byte, error) {
	entry, err := s.GetIngestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.ArchiveKey == "" || s.opts.Archive == nil {
		return nil, ErrNotArchived
	}

	doc, err := s.opts.Archive.Fetch(ctx, entry.ArchiveKey)
	if errors.Is(err, digitalocean.ErrObjectNotFound) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archive: %w", err)
	}
	return doc, nil
}

// IngestionFilter narrows ListIngestions. Zero values match everything.
type IngestionFilter struct {
	ExamID *uint
	Status model.IngestionStatus
	Mode   model.IngestionMode
	Page   int
	Limit  int
}

// ListIngestions returns ingestion logs newest first with the total match count
func (s *IngestionService) ListIngestions(ctx context.Context, filter IngestionFilter) ([]model.IngestionLog, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	q := s.db.WithContext(ctx).Model(&model.IngestionLog{})
	if filter.ExamID != nil {
		q = q.Where("exam_id = ?", *filter.ExamID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Mode != "" {
		q = q.Where("mode = ?", filter.Mode)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ingestions: %w", err)
	}

	var entries []model.IngestionLog
	err := q.Omit("raw_output").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ingestions: %w", err)
	}
	return entries, total, nil
}

func (s *IngestionService) importBulk(ctx context.Context, mode model.IngestionMode, userID, examID uint, section, rawText string) (*ImportResult, error) {
	entry := s.begin(ctx, mode, userID, &examID, section, rawText, len(questionparser.SplitBlocks(rawText)))
	start := time.Now()

	res, err := s.parseBulk(ctx, rawText)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	ingestionID := entry.ID.String()
	stored, err := s.exams.AddQuestions(ctx, examID, section, recordsToQuestions(res.Records, section), &ingestionID)
	if err != nil {
		s.finish(ctx, entry, rawText, start, outcome{}, err)
		return nil, err
	}

	s.finish(ctx, entry, rawText, start, bulkOutcome(res), nil)
	return &ImportResult{
		IngestionID: entry.ID,
		ExamID:      examID,
		Sections:    []SectionImport{{Name: section, Questions: stored, Dropped: res.Dropped}},
	}, nil
}

func (s *IngestionService) parseSingle(ctx context.Context, rawText string) (*model.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.extractor.ParseSingleQuestion(ctx, rawText)
}

func (s *IngestionService) parseBulk(ctx context.Context, rawText string) (*questionparser.BulkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.extractor.ParseBulkQuestions(ctx, rawText)
}

// checkSection fails fast, before any oracle call, on an unknown exam or section
func (s *IngestionService) checkSection(ctx context.Context, examID uint, section string) error {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if !exam.HasSection(section) {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, section)
	}
	return nil
}

// begin records a processing ingestion. A failed write is logged and the
// call goes on with an unsaved entry; finish retries the write.
func (s *IngestionService) begin(ctx context.Context, mode model.IngestionMode, userID uint, examID *uint, section, rawText string, blocks int) *model.IngestionLog {
	sum := sha256.Sum256([]byte(rawText))
	entry := &model.IngestionLog{
		ID:           uuid.New(),
		Mode:         mode,
		ExamID:       examID,
		SectionName:  section,
		UserID:       userID,
		InputBytes:   len(rawText),
		InputDigest:  hex.EncodeToString(sum[:]),
		BlockCount:   blocks,
		Instructions: questionparser.InstructionsVersion,
		Status:       model.IngestionStatusProcessing,
	}

	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		s.log.Warn("failed to record ingestion start", "ingestion_id", entry.ID, "error", err)
	}

	s.log.Info("ingestion started",
		"ingestion_id", entry.ID,
		"mode", mode,
		"user_id", userID,
		"input_bytes", entry.InputBytes,
		"input_digest", entry.InputDigest,
		"blocks", blocks,
	)
	return entry
}

// finish records the outcome of a call and archives it when configured
func (s *IngestionService) finish(ctx context.Context, entry *model.IngestionLog, rawText string, start time.Time, out outcome, callErr error) {
	ctx = context.WithoutCancel(ctx)
	entry.DurationMs = time.Since(start).Milliseconds()

	if callErr != nil {
		entry.Status = model.IngestionStatusFailed
		entry.ErrorCode = ErrorCode(callErr)
		entry.ErrorMessage = callErr.Error()

		var failed *questionparser.ExtractionFailedError
		if errors.As(callErr, &failed) {
			out.output = failed.Output
			if violations := failed.Violations(); len(violations) > 0 {
				if data, err := json.Marshal(violations); err == nil {
					entry.Violations = datatypes.JSON(data)
				}
			}
		}
		entry.RawOutput = truncate(string(out.output), maxStoredOutput)
	} else {
		entry.Status = model.IngestionStatusSucceeded
		entry.RecordCount = out.records
		entry.DroppedCount = out.dropped
	}

	if s.opts.Archive != nil {
		entry.ArchiveKey = s.archive(ctx, entry, rawText, out)
	}

	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		s.log.Warn("failed to record ingestion outcome", "ingestion_id", entry.ID, "error", err)
	}

	if callErr != nil {
		s.log.Warn("ingestion failed",
			"ingestion_id", entry.ID,
			"error_code", entry.ErrorCode,
			"duration_ms", entry.DurationMs,
			"error", callErr,
		)
		return
	}
	s.log.Info("ingestion succeeded",
		"ingestion_id", entry.ID,
		"records", entry.RecordCount,
		"dropped", entry.DroppedCount,
		"duration_ms", entry.DurationMs,
	)
}

// archivedIngestion is the document written to the archive bucket
type archivedIngestion struct {
	ID           uuid.UUID           `json:"id"`
	Mode         model.IngestionMode `json:"mode"`
	Instructions string              `json:"instructions_version"`
	Status       string              `json:"status"`
	ErrorCode    string              `json:"error_code,omitempty"`
	RawText      string              `json:"raw_text"`
	RawOutput    string              `json:"raw_output,omitempty"`
	Result       interface{}         `json:"result,omitempty"`
	ArchivedAt   time.Time           `json:"archived_at"`
}

// archive uploads the submission and returns its key, or "" on failure
func (s *IngestionService) archive(ctx context.Context, entry *model.IngestionLog, rawText string, out outcome) string {
	now := time.Now()
	doc := archivedIngestion{
		ID:           entry.ID,
		Mode:         entry.Mode,
		Instructions: entry.Instructions,
		Status:       string(entry.Status),
		ErrorCode:    entry.ErrorCode,
		RawText:      rawText,
		RawOutput:    string(out.output),
		Result:       out.result,
		ArchivedAt:   now,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		s.log.Warn("failed to encode ingestion archive", "ingestion_id", entry.ID, "error", err)
		return ""
	}

	key := digitalocean.ArchiveKey(s.opts.ArchivePrefix, entry.ID.String(), now)
	if err := s.opts.Archive.Put(ctx, key, data); err != nil {
		s.log.Warn("failed to archive ingestion", "ingestion_id", entry.ID, "error", err)
		return ""
	}
	return key
}

func bulkOutcome(res *questionparser.BulkResult) outcome {
	return outcome{
		records: len(res.Records),
		dropped: len(res.Dropped),
		result:  res,
		output:  res.RawOutput,
	}
}

func recordsToQuestions(records []model.BulkQuestionRecord, section string) []model.Question {
	questions := make([]model.Question, len(records))
	for i, r := range records {
		questions[i] = r.ToQuestion(section)
	}
	return questions
}

// combineSections joins section texts for digesting and counts their blocks
func combineSections(sections []questionparser.SectionInput) (string, int) {
	var b strings.Builder
	blocks := 0
	for _, sec := range sections {
		b.WriteString("## ")
		b.WriteString(sec.Name)
		b.WriteString("\n")
		b.WriteString(sec.RawText)
		b.WriteString("\n")
		blocks += len(questionparser.SplitBlocks(sec.RawText))
	}
	return b.String(), blocks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
