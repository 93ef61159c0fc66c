package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/model"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.DB()
}

func createTestExam(t *testing.T, svc *ExamService, name, category string, sections ...string) *model.Exam {
	t.Helper()
	req := CreateExamRequest{Name: name, Category: category, SubCategories: []string{"IBPS PO"}}
	for _, s := range sections {
		req.Sections = append(req.Sections, CreateSectionRequest{Name: s})
	}
	exam, err := svc.CreateExam(context.Background(), req, 1)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func standardQuestion(text string, marks float64) model.Question {
	idx := 1
	return model.Question{
		Kind:               model.QuestionKindStandard,
		QuestionText:       text,
		Options:            []model.Option{{Text: "A"}, {Text: "B"}, {Text: "C"}, {Text: "D"}},
		CorrectOptionIndex: &idx,
		Marks:              marks,
	}
}

func rcQuestion(subMarks ...float64) model.Question {
	q := model.Question{Kind: model.QuestionKindReadingComprehension, Passage: "A short passage."}
	for i, m := range subMarks {
		q.SubQuestions = append(q.SubQuestions, model.SubQuestion{
			QuestionText:       "Sub question",
			Options:            []model.Option{{Text: "A"}, {Text: "B"}, {Text: "C"}, {Text: "D"}},
			CorrectOptionIndex: i % 4,
			Marks:              m,
		})
	}
	return q
}

func TestCreateExam(t *testing.T) {
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "SBI PO Prelims Mock 1", "Banking", "Quantitative Aptitude", "Reasoning")

	if exam.Status != model.ExamStatusDraft {
		t.Errorf("new exams should be drafts, got %s", exam.Status)
	}

	got, err := svc.GetExam(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if len(got.Sections) != 2 || got.Sections[0].Name != "Quantitative Aptitude" || got.Sections[1].Position != 1 {
		t.Errorf("unexpected sections: %+v", got.Sections)
	}
	if len(got.SubCategories) != 1 || got.SubCategories[0] != "IBPS PO" {
		t.Errorf("sub categories not persisted: %v", got.SubCategories)
	}
}

func TestCreateExam_DuplicateSection(t *testing.T) {
	svc := NewExamService(newTestDB(t))
	req := CreateExamRequest{
		Name:     "Mock",
		Category: "SSC",
		Sections: []CreateSectionRequest{{Name: "English"}, {Name: " English "}},
	}
	if _, err := svc.CreateExam(context.Background(), req, 1); !errors.Is(err, ErrDuplicateSection) {
		t.Fatalf("expected ErrDuplicateSection, got %v", err)
	}
}

func TestGetExam_NotFound(t *testing.T) {
	svc := NewExamService(newTestDB(t))
	if _, err := svc.GetExam(context.Background(), 999); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestAddQuestions_AppendsAndRecomputesTotals(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English", "Quant")

	first, err := svc.AddQuestions(ctx, exam.ID, "English", []model.Question{
		standardQuestion("Q1", 1),
		rcQuestion(1, 1, 2),
	}, nil)
	if err != nil {
		t.Fatalf("add questions: %v", err)
	}
	if first[0].Position != 0 || first[1].Position != 1 {
		t.Errorf("unexpected positions: %d, %d", first[0].Position, first[1].Position)
	}

	second, err := svc.AddQuestions(ctx, exam.ID, "English", []model.Question{standardQuestion("Q3", 2)}, nil)
	if err != nil {
		t.Fatalf("add questions: %v", err)
	}
	if second[0].Position != 2 {
		t.Errorf("expected appended position 2, got %d", second[0].Position)
	}

	got, _ := svc.GetExam(ctx, exam.ID)
	if got.TotalMarks != 7 {
		t.Errorf("expected total marks 7, got %v", got.TotalMarks)
	}
	if got.TotalQuestions != 5 {
		t.Errorf("expected 5 answerable questions, got %d", got.TotalQuestions)
	}
}

func TestAddQuestions_UnknownSection(t *testing.T) {
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English")

	_, err := svc.AddQuestions(context.Background(), exam.ID, "General Awareness", []model.Question{standardQuestion("Q", 1)}, nil)
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}

	questions, _ := svc.ListQuestions(context.Background(), exam.ID, "")
	if len(questions) != 0 {
		t.Errorf("nothing should be stored, got %d questions", len(questions))
	}
}

func TestListQuestions_OrderedBySection(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English", "Quant")

	if _, err := svc.AddQuestions(ctx, exam.ID, "Quant", []model.Question{standardQuestion("Q-a", 1), standardQuestion("Q-b", 1)}, nil); err != nil {
		t.Fatalf("add quant: %v", err)
	}
	if _, err := svc.AddQuestions(ctx, exam.ID, "English", []model.Question{standardQuestion("E-a", 1)}, nil); err != nil {
		t.Fatalf("add english: %v", err)
	}

	questions, err := svc.ListQuestions(ctx, exam.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"E-a", "Q-a", "Q-b"}
	if len(questions) != len(want) {
		t.Fatalf("expected %d questions, got %d", len(want), len(questions))
	}
	for i, text := range want {
		if questions[i].QuestionText != text {
			t.Errorf("position %d: expected %q, got %q", i, text, questions[i].QuestionText)
		}
	}

	quant, _ := svc.ListQuestions(ctx, exam.ID, "Quant")
	if len(quant) != 2 {
		t.Errorf("expected 2 quant questions, got %d", len(quant))
	}
	if q := quant[0].ToQuestion(); q.CorrectOptionIndex == nil || *q.CorrectOptionIndex != 1 || len(q.Options) != 4 {
		t.Errorf("question did not round-trip: %+v", q)
	}
}

func TestDeleteQuestion(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English")

	stored, err := svc.AddQuestions(ctx, exam.ID, "English", []model.Question{standardQuestion("Q1", 1), standardQuestion("Q2", 2)}, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.DeleteQuestion(ctx, exam.ID, stored[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteQuestion(ctx, exam.ID, stored[1].ID); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("second delete should be not found, got %v", err)
	}

	got, _ := svc.GetExam(ctx, exam.ID)
	if got.TotalMarks != 1 || got.TotalQuestions != 1 {
		t.Errorf("totals not recomputed: marks=%v questions=%d", got.TotalMarks, got.TotalQuestions)
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English")

	if _, err := svc.UpdateStatus(ctx, exam.ID, "live"); !errors.Is(err, ErrInvalidExamStatus) {
		t.Errorf("expected ErrInvalidExamStatus, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, exam.ID, model.ExamStatusPublished); !errors.Is(err, ErrExamHasNoQuestion) {
		t.Errorf("publishing an empty exam should fail, got %v", err)
	}

	if _, err := svc.AddQuestions(ctx, exam.ID, "English", []model.Question{standardQuestion("Q1", 1)}, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	updated, err := svc.UpdateStatus(ctx, exam.ID, model.ExamStatusPublished)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if updated.Status != model.ExamStatusPublished {
		t.Errorf("expected published, got %s", updated.Status)
	}
}

func TestListExams_Filters(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))

	banking := createTestExam(t, svc, "Bank Mock", "Banking", "English")
	createTestExam(t, svc, "SSC Mock", "SSC", "English")

	if _, err := svc.AddQuestions(ctx, banking.ID, "English", []model.Question{standardQuestion("Q1", 1)}, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, banking.ID, model.ExamStatusPublished); err != nil {
		t.Fatalf("publish: %v", err)
	}

	all, err := svc.ListExams(ctx, "", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 exams, got %d", len(all))
	}

	published, _ := svc.ListExams(ctx, "", true)
	if len(published) != 1 || published[0].ID != banking.ID {
		t.Errorf("expected only the published exam, got %d", len(published))
	}

	bySub, _ := svc.ListExams(ctx, "IBPS PO", false)
	if len(bySub) != 2 {
		t.Errorf("sub-category filter should match both exams, got %d", len(bySub))
	}

	byCategory, _ := svc.ListExams(ctx, "SSC", false)
	if len(byCategory) != 1 || byCategory[0].Name != "SSC Mock" {
		t.Errorf("category filter failed: %+v", byCategory)
	}
}

func TestAddSectionQuestions_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English", "Quant")

	_, err := svc.AddSectionQuestions(ctx, exam.ID, []SectionQuestions{
		{Section: "English", Questions: []model.Question{standardQuestion("E1", 1)}},
		{Section: "Reasoning", Questions: []model.Question{standardQuestion("R1", 1)}},
	}, nil)
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}

	questions, _ := svc.ListQuestions(ctx, exam.ID, "")
	if len(questions) != 0 {
		t.Errorf("failed batch must not store anything, got %d questions", len(questions))
	}

	ingestion := "4f5c3a53-8a3c-4c55-9c55-1d2a4b7f9e10"
	stored, err := svc.AddSectionQuestions(ctx, exam.ID, []SectionQuestions{
		{Section: "English", Questions: []model.Question{standardQuestion("E1", 1)}},
		{Section: "Quant", Questions: []model.Question{standardQuestion("Q1", 1), standardQuestion("Q2", 1)}},
	}, &ingestion)
	if err != nil {
		t.Fatalf("add sections: %v", err)
	}
	if len(stored) != 2 || len(stored[0]) != 1 || len(stored[1]) != 2 {
		t.Fatalf("unexpected stored shape: %v", stored)
	}
	if stored[1][1].IngestionID == nil || *stored[1][1].IngestionID != ingestion {
		t.Errorf("ingestion id not recorded")
	}
}

func TestAddQuestions_Empty(t *testing.T) {
	svc := NewExamService(newTestDB(t))
	exam := createTestExam(t, svc, "Mock", "Banking", "English")
	if _, err := svc.AddQuestions(context.Background(), exam.ID, "English", nil, nil); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}
