package model

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ExamStatus is the publication state of an exam
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// Valid reports whether s is a known status
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusDraft, ExamStatusPublished, ExamStatusArchived:
		return true
	}
	return false
}

// StringList is stored as text[] on postgres and as the array literal text elsewhere
type StringList pq.StringArray

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

// GormDBDataType picks the column type per dialect
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Exam is an admin-authored exam made of named sections
type Exam struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Category       string         `gorm:"type:varchar(100);index;not null" json:"category"`
	SubCategories  StringList     `json:"sub_categories,omitempty"`
	ExamType       string         `gorm:"type:varchar(30)" json:"exam_type,omitempty"` // Prelims, Mains, Mock Test, Practice
	Year           int            `gorm:"default:0" json:"year,omitempty"`
	Status         ExamStatus     `gorm:"type:varchar(20);default:'draft';index" json:"status"`
	DurationMin    int            `gorm:"default:0" json:"duration_min"`
	TotalMarks     float64        `gorm:"default:0" json:"total_marks"`
	TotalQuestions int            `gorm:"default:0" json:"total_questions"`
	CreatedByID    uint           `gorm:"index" json:"created_by_id,omitempty"`

	// Relationships
	Sections  []ExamSection  `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"sections,omitempty"`
	Questions []ExamQuestion `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"-"`
}

// ExamSection is a named part of an exam; questions reference it by name
type ExamSection struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	ExamID            uint      `gorm:"not null;index;uniqueIndex:idx_exam_section_name" json:"exam_id"`
	Name              string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_exam_section_name" json:"name"`
	Position          int       `gorm:"default:0" json:"position"`
	TimeLimitMin      int       `gorm:"default:0" json:"time_limit_min,omitempty"`
	NegativeMarking   bool      `gorm:"default:false" json:"negative_marking"`
	NegativeMarkValue float64   `gorm:"default:0" json:"negative_mark_value,omitempty"`
	Instructions      string    `gorm:"type:text" json:"instructions,omitempty"`
}

// ExamQuestion is a stored question of either variant
type ExamQuestion struct {
	ID                 uint                             `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
	DeletedAt          gorm.DeletedAt                   `gorm:"index" json:"-"`
	ExamID             uint                             `gorm:"not null;index" json:"exam_id"`
	SectionName        string                           `gorm:"type:varchar(100);index" json:"section_name"`
	Position           int                              `gorm:"default:0" json:"position"`
	Kind               QuestionKind                     `gorm:"type:varchar(30);not null" json:"kind"`
	QuestionText       string                           `gorm:"type:text" json:"question_text,omitempty"`
	Options            datatypes.JSONSlice[Option]      `json:"options,omitempty"`
	CorrectOptionIndex *int                             `json:"correct_option_index,omitempty"`
	Passage            string                           `gorm:"type:text" json:"passage,omitempty"`
	SubQuestions       datatypes.JSONSlice[SubQuestion] `json:"sub_questions,omitempty"`
	Subject            string                           `gorm:"type:varchar(100)" json:"subject,omitempty"`
	Topic              string                           `gorm:"type:varchar(255)" json:"topic,omitempty"`
	Difficulty         Difficulty                       `gorm:"type:varchar(10)" json:"difficulty,omitempty"`
	Explanation        string                           `gorm:"type:text" json:"explanation,omitempty"`
	Marks              float64                          `gorm:"default:1" json:"marks"`
	IngestionID        *string                          `gorm:"type:varchar(36);index" json:"ingestion_id,omitempty"`
}

// NewExamQuestion converts a validated Question into its stored form
func NewExamQuestion(examID uint, sectionName string, q Question) ExamQuestion {
	eq := ExamQuestion{
		ExamID:      examID,
		SectionName: sectionName,
		Kind:        q.Kind,
		Subject:     q.Subject,
		Topic:       q.Topic,
		Difficulty:  q.Difficulty,
		Explanation: q.Explanation,
		Marks:       q.TotalMarks(),
	}
	if eq.Subject == "" {
		eq.Subject = sectionName
	}

	switch q.Kind {
	case QuestionKindReadingComprehension:
		eq.Passage = q.Passage
		eq.SubQuestions = datatypes.NewJSONSlice(q.SubQuestions)
	default:
		eq.QuestionText = q.QuestionText
		eq.Options = datatypes.NewJSONSlice(q.Options)
		if q.CorrectOptionIndex != nil {
			idx := *q.CorrectOptionIndex
			eq.CorrectOptionIndex = &idx
		}
	}

	return eq
}

// ToQuestion converts the stored form back into a Question
func (eq *ExamQuestion) ToQuestion() Question {
	q := Question{
		Kind:        eq.Kind,
		Subject:     eq.Subject,
		Topic:       eq.Topic,
		Difficulty:  eq.Difficulty,
		Explanation: eq.Explanation,
	}
	if eq.Kind == QuestionKindReadingComprehension {
		q.Passage = eq.Passage
		q.SubQuestions = []SubQuestion(eq.SubQuestions)
		return q
	}
	q.QuestionText = eq.QuestionText
	q.Options = []Option(eq.Options)
	q.CorrectOptionIndex = eq.CorrectOptionIndex
	q.Marks = eq.Marks
	return q
}

// ============= Response Types =============

// ExamSummary is a lightweight version for listing
type ExamSummary struct {
	ID             uint       `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	SubCategories  []string   `json:"sub_categories,omitempty"`
	ExamType       string     `json:"exam_type,omitempty"`
	Status         ExamStatus `json:"status"`
	DurationMin    int        `json:"duration_min"`
	TotalMarks     float64    `json:"total_marks"`
	TotalQuestions int        `json:"total_questions"`
	SectionCount   int        `json:"section_count"`
}

// ToSummary converts Exam to ExamSummary
func (e *Exam) ToSummary() ExamSummary {
	return ExamSummary{
		ID:             e.ID,
		Name:           e.Name,
		Category:       e.Category,
		SubCategories:  []string(e.SubCategories),
		ExamType:       e.ExamType,
		Status:         e.Status,
		DurationMin:    e.DurationMin,
		TotalMarks:     e.TotalMarks,
		TotalQuestions: e.TotalQuestions,
		SectionCount:   len(e.Sections),
	}
}

// HasSection reports whether the exam defines a section with the given name
func (e *Exam) HasSection(name string) bool {
	for _, s := range e.Sections {
		if s.Name == name {
			return true
		}
	}
	return false
}
