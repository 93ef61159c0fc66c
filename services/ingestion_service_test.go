package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"gorm.io/gorm"
)

const bulkOutput = `{"questions": [
	{"questionText": "2+2?", "options": ["3", "4"], "correctOptionIndex": 1},
	{"questionText": "3+3?", "options": ["6", "7"], "correctOptionIndex": 0, "marks": 2}
]}`

const singleOutput = `{"questionText": "Capital of France?", "options": [{"text": "Paris"}, {"text": "Rome"}], "correctOptionIndex": 0, "difficulty": "Easy"}`

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryArchive) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.objects[key]
	if !ok {
		return nil, digitalocean.ErrObjectNotFound
	}
	return doc, nil
}

func (m *memoryArchive) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return nil
}

type ingestionFixture struct {
	db      *gorm.DB
	exams   *ExamService
	svc     *IngestionService
	exam    *model.Exam
	calls   *atomic.Int32
	archive *memoryArchive
}

func newIngestionFixture(t *testing.T, output func(rawText string) (questionparser.RawOutput, error)) *ingestionFixture {
	t.Helper()
	db := newTestDB(t)
	exams := NewExamService(db)
	exam := createTestExam(t, exams, "Mock", "Banking", "English", "Quant")

	calls := &atomic.Int32{}
	oracle := questionparser.OracleFunc(func(ctx context.Context, instructions string, schema questionparser.SchemaDescriptor, rawText string) (questionparser.RawOutput, error) {
		calls.Add(1)
		return output(rawText)
	})
	extractor := questionparser.NewExtractor(oracle, questionparser.DefaultConfig(), utils.NewNopLogger())
	archive := &memoryArchive{}

	svc := NewIngestionService(db, exams, extractor, IngestionOptions{
		Timeout: time.Second,
		Archive: archive,
		Logger:  utils.NewNopLogger(),
	})
	return &ingestionFixture{db: db, exams: exams, svc: svc, exam: exam, calls: calls, archive: archive}
}

func staticOutput(out string) func(string) (questionparser.RawOutput, error) {
	return func(string) (questionparser.RawOutput, error) { return questionparser.RawOutput(out), nil }
}

func TestParseSingle_RecordsIngestion(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(singleOutput))

	res, err := f.svc.ParseSingle(context.Background(), 7, "Capital of France?\nA) Paris\nB) Rome")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Question.Difficulty != model.DifficultyEasy {
		t.Errorf("expected normalised difficulty, got %q", res.Question.Difficulty)
	}

	entry, err := f.svc.GetIngestion(context.Background(), res.IngestionID)
	if err != nil {
		t.Fatalf("get ingestion: %v", err)
	}
	if entry.Status != model.IngestionStatusSucceeded || entry.UserID != 7 || entry.RecordCount != 1 {
		t.Errorf("unexpected log: %+v", entry)
	}
	if len(entry.InputDigest) != 64 || entry.Instructions != questionparser.InstructionsVersion {
		t.Errorf("digest or instructions version missing: %+v", entry)
	}
	if entry.ArchiveKey == "" {
		t.Fatal("expected the call to be archived")
	}

	raw, err := f.svc.GetIngestionArchive(context.Background(), res.IngestionID)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("archive is not JSON: %v", err)
	}
	if !strings.Contains(doc["raw_text"].(string), "Capital of France?") {
		t.Errorf("archive should hold the submitted text: %v", doc)
	}
}

func TestParseSingle_FailureIsLogged(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(`{"questionText": "Q", "options": ["a", "b"], "correctOptionIndex": 9}`))

	_, err := f.svc.ParseSingle(context.Background(), 1, "Q\na\nb")
	var failed *questionparser.ExtractionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected extraction failure, got %v", err)
	}

	var entry model.IngestionLog
	if err := f.db.Order("created_at DESC").First(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if entry.Status != model.IngestionStatusFailed || entry.ErrorCode != CodeExtractionFailed {
		t.Errorf("unexpected log: status=%s code=%s", entry.Status, entry.ErrorCode)
	}
	if !strings.Contains(entry.RawOutput, `"correctOptionIndex": 9`) {
		t.Errorf("rejected output should be kept, got %q", entry.RawOutput)
	}
	if !strings.Contains(string(entry.Violations), questionparser.CodeIndexOutOfBounds) {
		t.Errorf("violations not recorded: %s", entry.Violations)
	}
}

func TestImportBulk_StoresRecordsInOrder(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(bulkOutput))
	ctx := context.Background()

	res, err := f.svc.ImportBulk(ctx, 1, f.exam.ID, "Quant", "2+2?\n3\n4\n---\n3+3?\n6\n7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := res.Sections[0].Questions
	if len(stored) != 2 || stored[0].QuestionText != "2+2?" || stored[1].Marks != 2 {
		t.Fatalf("unexpected stored questions: %+v", stored)
	}
	if stored[0].Subject != "Quant" {
		t.Errorf("bulk records take the section as subject, got %q", stored[0].Subject)
	}
	if stored[0].IngestionID == nil || *stored[0].IngestionID != res.IngestionID.String() {
		t.Errorf("stored question should reference its ingestion")
	}

	exam, _ := f.exams.GetExam(ctx, f.exam.ID)
	if exam.TotalMarks != 3 || exam.TotalQuestions != 2 {
		t.Errorf("unexpected totals: %v / %d", exam.TotalMarks, exam.TotalQuestions)
	}

	entry, _ := f.svc.GetIngestion(ctx, res.IngestionID)
	if entry.BlockCount != 2 || entry.RecordCount != 2 || entry.SectionName != "Quant" {
		t.Errorf("unexpected log: %+v", entry)
	}
}

func TestImportBulk_UnknownSectionSkipsOracle(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(bulkOutput))

	_, err := f.svc.ImportBulk(context.Background(), 1, f.exam.ID, "History", "Q\n---\nQ")
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Errorf("oracle must not be called for an unknown section")
	}

	_, err = f.svc.ImportBulk(context.Background(), 1, 4242, "Quant", "Q")
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestImportSingle_ReadingComprehension(t *testing.T) {
	output := `{"passage": "Bees make honey.", "subQuestions": [
		{"questionText": "Who makes honey?", "options": ["Bees", "Ants", "Cows", "Birds"], "correctOptionIndex": 0},
		{"questionText": "What do bees make?", "options": ["Milk", "Honey", "Silk", "Wax"], "correctOptionIndex": 1, "marks": 2},
		{"questionText": "Pick the insect", "options": ["Cow", "Bee", "Dog", "Cat"], "correctOptionIndex": 1}
	]}`
	f := newIngestionFixture(t, staticOutput(output))

	res, err := f.svc.ImportSingle(context.Background(), 1, f.exam.ID, "English", "Bees make honey. Q1... Q2... Q3...")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := res.Sections[0].Questions[0]
	if q.Kind != model.QuestionKindReadingComprehension || len(q.SubQuestions) != 3 || q.Marks != 4 {
		t.Errorf("unexpected stored RC question: kind=%s subs=%d marks=%v", q.Kind, len(q.SubQuestions), q.Marks)
	}
}

func TestImportSections(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(bulkOutput))
	ctx := context.Background()

	res, err := f.svc.ImportSections(ctx, 1, f.exam.ID, []questionparser.SectionInput{
		{Name: "English", RawText: "a\n---\nb"},
		{Name: "Quant", RawText: "c\n---\nd"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected one oracle call per section, got %d", f.calls.Load())
	}
	if len(res.Sections) != 2 || res.Sections[0].Name != "English" || len(res.Sections[1].Questions) != 2 {
		t.Fatalf("unexpected result: %+v", res.Sections)
	}

	entry, _ := f.svc.GetIngestion(ctx, res.IngestionID)
	if entry.Mode != model.IngestionModeSections || entry.BlockCount != 4 || entry.RecordCount != 4 {
		t.Errorf("unexpected log: %+v", entry)
	}
}

func TestImportSections_FailureStoresNothing(t *testing.T) {
	f := newIngestionFixture(t, func(rawText string) (questionparser.RawOutput, error) {
		if strings.HasPrefix(rawText, "bad") {
			return `{"items": []}`, nil
		}
		return questionparser.RawOutput(bulkOutput), nil
	})
	ctx := context.Background()

	_, err := f.svc.ImportSections(ctx, 1, f.exam.ID, []questionparser.SectionInput{
		{Name: "English", RawText: "a\n---\nb"},
		{Name: "Quant", RawText: "bad\n---\nd"},
	})
	if ErrorCode(err) != CodeExtractionFailed {
		t.Fatalf("expected extraction failure, got %v", err)
	}

	questions, _ := f.exams.ListQuestions(ctx, f.exam.ID, "")
	if len(questions) != 0 {
		t.Errorf("no section may be stored when one fails, got %d questions", len(questions))
	}
}

func TestImportSections_DuplicateSection(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(bulkOutput))
	_, err := f.svc.ImportSections(context.Background(), 1, f.exam.ID, []questionparser.SectionInput{
		{Name: "English", RawText: "a"},
		{Name: "English", RawText: "b"},
	})
	if !errors.Is(err, ErrDuplicateInput) {
		t.Fatalf("expected ErrDuplicateInput, got %v", err)
	}
}

func TestIngestion_TimeoutIsRecorded(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(singleOutput))
	f.svc.opts.Timeout = 20 * time.Millisecond
	f.svc.extractor = questionparser.NewExtractor(questionparser.OracleFunc(
		func(ctx context.Context, _ string, _ questionparser.SchemaDescriptor, _ string) (questionparser.RawOutput, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), questionparser.DefaultConfig(), utils.NewNopLogger())

	_, err := f.svc.ParseSingle(context.Background(), 1, "slow question")
	if !errors.Is(err, questionparser.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	var entry model.IngestionLog
	f.db.First(&entry)
	if entry.ErrorCode != CodeOracleTimeout {
		t.Errorf("expected %s, got %s", CodeOracleTimeout, entry.ErrorCode)
	}
}

func TestIngestion_ArchiveFailureDoesNotFailCall(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(singleOutput))
	f.archive.err = errors.New("bucket gone")

	res, err := f.svc.ParseSingle(context.Background(), 1, "Capital of France?")
	if err != nil {
		t.Fatalf("archive errors must not fail the call: %v", err)
	}
	entry, _ := f.svc.GetIngestion(context.Background(), res.IngestionID)
	if entry.ArchiveKey != "" {
		t.Errorf("failed archive should leave no key, got %q", entry.ArchiveKey)
	}
	if _, err := f.svc.GetIngestionArchive(context.Background(), res.IngestionID); !errors.Is(err, ErrNotArchived) {
		t.Errorf("expected ErrNotArchived, got %v", err)
	}
}

func TestAddManualQuestion(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(""))
	ctx := context.Background()

	q, err := f.svc.AddManualQuestion(ctx, f.exam.ID, "English", []byte(`{"passage": "P", "subQuestions": [{"questionText": "Q", "options": ["a", "b"], "correctOptionIndex": 1}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != model.QuestionKindReadingComprehension || len(q.SubQuestions) != 1 {
		t.Errorf("unexpected question: %+v", q)
	}

	_, err = f.svc.AddManualQuestion(ctx, f.exam.ID, "English", []byte(`{"questionText": "Q", "options": [], "correctOptionIndex": 0}`))
	var verr *questionparser.ValidationError
	if !errors.As(err, &verr) || !verr.HasCode(questionparser.CodeTooFewOptions) {
		t.Fatalf("expected too-few-options violation, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Errorf("manual questions never reach the oracle")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{questionparser.ErrEmptyInput, CodeEmptyInput},
		{&questionparser.InputTooLargeError{Bytes: 10, MaxBytes: 5}, CodeInputTooLarge},
		{questionparser.ErrOracleUnavailable, CodeOracleUnavailable},
		{&questionparser.ExtractionFailedError{Op: "op", Reason: "r"}, CodeExtractionFailed},
		{context.Canceled, CodeCanceled},
		{errors.New("disk full"), CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestListIngestions_Filters(t *testing.T) {
	f := newIngestionFixture(t, staticOutput(bulkOutput))
	ctx := context.Background()

	if _, err := f.svc.ImportBulk(ctx, 1, f.exam.ID, "Quant", "2+2?\n---\n3+3?"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := f.svc.ParseBulk(ctx, 1, "   "); err == nil {
		t.Fatal("expected empty input error")
	}

	all, total, err := f.svc.ListIngestions(ctx, IngestionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 logs, got %d (total %d)", len(all), total)
	}

	failed, total, _ := f.svc.ListIngestions(ctx, IngestionFilter{Status: model.IngestionStatusFailed})
	if total != 1 || failed[0].ErrorCode != CodeEmptyInput {
		t.Errorf("unexpected failed logs: %+v", failed)
	}

	examID := f.exam.ID
	forExam, total, _ := f.svc.ListIngestions(ctx, IngestionFilter{ExamID: &examID})
	if total != 1 || forExam[0].Mode != model.IngestionModeBulk {
		t.Errorf("unexpected exam logs: %+v", forExam)
	}

	if _, err := f.svc.ParseSingle(ctx, 1, "  "); err == nil {
		t.Fatal("expected empty input error")
	}
	bulk, total, _ := f.svc.ListIngestions(ctx, IngestionFilter{Mode: model.IngestionModeBulk})
	if total != 2 || len(bulk) != 2 {
		t.Errorf("expected 2 bulk logs, got %d (total %d)", len(bulk), total)
	}
	single, total, _ := f.svc.ListIngestions(ctx, IngestionFilter{Mode: model.IngestionModeSingle, Status: model.IngestionStatusFailed})
	if total != 1 || single[0].Mode != model.IngestionModeSingle {
		t.Errorf("unexpected single logs: %+v", single)
	}

	page, total, _ := f.svc.ListIngestions(ctx, IngestionFilter{Page: 2, Limit: 1})
	if total != 3 || len(page) != 1 {
		t.Errorf("expected second page of one, got %d", len(page))
	}
}
