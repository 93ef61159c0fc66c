package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilchouksey/exam-prep-api/model"
	"gorm.io/gorm"
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrSectionNotFound   = errors.New("section not found in exam")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrInvalidExamStatus = errors.New("invalid exam status")
	ErrExamHasNoQuestion = errors.New("exam has no questions")
	ErrDuplicateSection  = errors.New("duplicate section name")
	ErrNoQuestions       = errors.New("no questions to add")
)

// ExamService handles exam, section and question persistence
type ExamService struct {
	db *gorm.DB
}

// NewExamService creates a new exam service
func NewExamService(db *gorm.DB) *ExamService {
	return &ExamService{db: db}
}

// CreateSectionRequest describes one section of a new exam
type CreateSectionRequest struct {
	Name              string  `json:"name" validate:"required,max=100"`
	TimeLimitMin      int     `json:"time_limit_min" validate:"gte=0"`
	NegativeMarking   bool    `json:"negative_marking"`
	NegativeMarkValue float64 `json:"negative_mark_value" validate:"gte=0"`
	Instructions      string  `json:"instructions"`
}

// CreateExamRequest represents the request to create an exam
type CreateExamRequest struct {
	Name          string                 `json:"name" validate:"required,max=255"`
	Category      string                 `json:"category" validate:"required,max=100"`
	SubCategories []string               `json:"sub_categories"`
	ExamType      string                 `json:"exam_type" validate:"omitempty,oneof=Prelims Mains 'Mock Test' Practice"`
	Year          int                    `json:"year" validate:"gte=0"`
	DurationMin   int                    `json:"duration_min" validate:"gte=0"`
	Sections      []CreateSectionRequest `json:"sections" validate:"required,min=1,dive"`
}

// CreateExam creates a draft exam with its sections
func (s *ExamService) CreateExam(ctx context.Context, req CreateExamRequest, createdBy uint) (*model.Exam, error) {
	seen := make(map[string]bool, len(req.Sections))
	sections := make([]model.ExamSection, 0, len(req.Sections))
	for i, sec := range req.Sections {
		name := strings.TrimSpace(sec.Name)
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSection, name)
		}
		seen[name] = true
		sections = append(sections, model.ExamSection{
			Name:              name,
			Position:          i,
			TimeLimitMin:      sec.TimeLimitMin,
			NegativeMarking:   sec.NegativeMarking,
			NegativeMarkValue: sec.NegativeMarkValue,
			Instructions:      sec.Instructions,
		})
	}

	exam := model.Exam{
		Name:          strings.TrimSpace(req.Name),
		Category:      strings.TrimSpace(req.Category),
		SubCategories: model.StringList(req.SubCategories),
		ExamType:      req.ExamType,
		Year:          req.Year,
		Status:        model.ExamStatusDraft,
		DurationMin:   req.DurationMin,
		CreatedByID:   createdBy,
		Sections:      sections,
	}

	if err := s.db.WithContext(ctx).Create(&exam).Error; err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	return &exam, nil
}

// ListExams returns exams newest first. category matches either the main
// category or one of the sub-categories.
func (s *ExamService) ListExams(ctx context.Context, category string, publishedOnly bool) ([]model.Exam, error) {
	query := s.db.WithContext(ctx).Model(&model.Exam{}).
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})

	if publishedOnly {
		query = query.Where("status = ?", model.ExamStatusPublished)
	}

	if category = strings.TrimSpace(category); category != "" {
		if s.db.Dialector.Name() == "postgres" {
			query = query.Where("category = ? OR ? = ANY(sub_categories)", category, category)
		} else {
			query = query.Where("category = ? OR sub_categories LIKE ?", category, `%"`+category+`"%`)
		}
	}

	var exams []model.Exam
	if err := query.Order("created_at DESC").Order("id DESC").Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	return exams, nil
}

// GetExam loads an exam with its sections in order
func (s *ExamService) GetExam(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	err := s.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&exam, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to fetch exam: %w", err)
	}
	return &exam, nil
}

// UpdateStatus moves an exam between draft, published and archived.
// An exam cannot be published while it has no questions.
func (s *ExamService) UpdateStatus(ctx context.Context, id uint, status model.ExamStatus) (*model.Exam, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExamStatus, status)
	}

	exam, err := s.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == model.ExamStatusPublished && exam.TotalQuestions == 0 {
		return nil, ErrExamHasNoQuestion
	}

	if err := s.db.WithContext(ctx).Model(exam).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update exam status: %w", err)
	}
	exam.Status = status
	return exam, nil
}

// SectionQuestions is a batch of questions bound for one section
type SectionQuestions struct {
	Section   string
	Questions []model.Question
}

// AddQuestions appends questions to a section in the given order and
// recomputes the exam totals, all in one transaction.
func (s *ExamService) AddQuestions(ctx context.Context, examID uint, sectionName string, questions []model.Question, ingestionID *string) ([]model.ExamQuestion, error) {
	stored, err := s.AddSectionQuestions(ctx, examID, []SectionQuestions{{Section: sectionName, Questions: questions}}, ingestionID)
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// AddSectionQuestions stores several section batches in one transaction.
// Either every batch is stored or none is.
func (s *ExamService) AddSectionQuestions(ctx context.Context, examID uint, batches []SectionQuestions, ingestionID *string) ([][]model.ExamQuestion, error) {
	if len(batches) == 0 {
		return nil, ErrNoQuestions
	}
	for _, b := range batches {
		if len(b.Questions) == 0 {
			return nil, fmt.Errorf("%w: section %q", ErrNoQuestions, b.Section)
		}
	}

	stored := make([][]model.ExamQuestion, len(batches))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exam model.Exam
		if err := tx.Preload("Sections").First(&exam, examID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExamNotFound
			}
			return err
		}

		for i, b := range batches {
			if !exam.HasSection(b.Section) {
				return fmt.Errorf("%w: %q", ErrSectionNotFound, b.Section)
			}
			rows, err := appendToSection(tx, examID, b, ingestionID)
			if err != nil {
				return err
			}
			stored[i] = rows
		}

		return recomputeTotals(tx, examID)
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// appendToSection inserts a batch after the section's current last position
func appendToSection(tx *gorm.DB, examID uint, batch SectionQuestions, ingestionID *string) ([]model.ExamQuestion, error) {
	var maxPos sql.NullInt64
	err := tx.Model(&model.ExamQuestion{}).
		Where("exam_id = ? AND section_name = ?", examID, batch.Section).
		Select("MAX(position)").
		Row().Scan(&maxPos)
	if err != nil {
		return nil, fmt.Errorf("failed to read section positions: %w", err)
	}
	next := 0
	if maxPos.Valid {
		next = int(maxPos.Int64) + 1
	}

	rows := make([]model.ExamQuestion, len(batch.Questions))
	for i, q := range batch.Questions {
		eq := model.NewExamQuestion(examID, batch.Section, q)
		eq.Position = next + i
		eq.IngestionID = ingestionID
		rows[i] = eq
	}

	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to store questions: %w", err)
	}
	return rows, nil
}

// ListQuestions returns an exam's questions ordered by section then position.
// An empty sectionName returns every section.
func (s *ExamService) ListQuestions(ctx context.Context, examID uint, sectionName string) ([]model.ExamQuestion, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	var questions []model.ExamQuestion
	query := s.db.WithContext(ctx).Where("exam_id = ?", examID)
	if sectionName != "" {
		if !exam.HasSection(sectionName) {
			return nil, fmt.Errorf("%w: %q", ErrSectionNotFound, sectionName)
		}
		query = query.Where("section_name = ?", sectionName)
	}
	if err := query.Order("position ASC").Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	order := make(map[string]int, len(exam.Sections))
	for _, sec := range exam.Sections {
		order[sec.Name] = sec.Position
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return order[questions[i].SectionName] < order[questions[j].SectionName]
	})

	return questions, nil
}

// DeleteQuestion soft-deletes one question and recomputes the exam totals
func (s *ExamService) DeleteQuestion(ctx context.Context, examID, questionID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND exam_id = ?", questionID, examID).Delete(&model.ExamQuestion{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete question: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrQuestionNotFound
		}
		return recomputeTotals(tx, examID)
	})
}

// recomputeTotals sets TotalMarks and TotalQuestions from the stored questions.
// A reading-comprehension passage counts once per sub-question.
func recomputeTotals(tx *gorm.DB, examID uint) error {
	var rows []model.ExamQuestion
	if err := tx.Select("kind", "marks", "sub_questions").Where("exam_id = ?", examID).Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load questions for totals: %w", err)
	}

	totalMarks := 0.0
	totalQuestions := 0
	for _, r := range rows {
		totalMarks += r.Marks
		if r.Kind == model.QuestionKindReadingComprehension {
			totalQuestions += len(r.SubQuestions)
		} else {
			totalQuestions++
		}
	}

	err := tx.Model(&model.Exam{}).Where("id = ?", examID).Updates(map[string]interface{}{
		"total_marks":     totalMarks,
		"total_questions": totalQuestions,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update exam totals: %w", err)
	}
	return nil
}
