package model

// QuestionKind tags which variant a Question holds
type QuestionKind string

const (
	QuestionKindStandard             QuestionKind = "standard"
	QuestionKindReadingComprehension QuestionKind = "reading_comprehension"
)

// Difficulty is the optional difficulty classification of a question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DefaultMarks is applied to any question, sub-question or bulk record with no stated marks
const DefaultMarks = 1.0

// Valid reports whether d is one of the enumerated levels
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Option is one selectable answer choice; it has no identity beyond its position
type Option struct {
	Text string `json:"text"`
}

// SubQuestion is a question body owned by a reading-comprehension passage
type SubQuestion struct {
	QuestionText       string   `json:"questionText"`
	Options            []Option `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Explanation        string   `json:"explanation,omitempty"`
	Marks              float64  `json:"marks"`
}

// Question is either a Standard multiple-choice question or a
// Reading-Comprehension passage with sub-questions, selected by Kind.
//
// Standard: QuestionText, Options and CorrectOptionIndex are set, Passage and
// SubQuestions are empty. Reading comprehension: the reverse.
type Question struct {
	Kind QuestionKind `json:"kind"`

	// Standard variant
	QuestionText       string   `json:"questionText,omitempty"`
	Options            []Option `json:"options,omitempty"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`

	// Reading-comprehension variant
	Passage      string        `json:"passage,omitempty"`
	SubQuestions []SubQuestion `json:"subQuestions,omitempty"`

	// Classification, applied at the passage level for RC
	Subject     string     `json:"subject,omitempty"`
	Topic       string     `json:"topic,omitempty"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Marks       float64    `json:"marks,omitempty"`
}

// IsStandard reports whether q is the Standard variant
func (q *Question) IsStandard() bool {
	return q.Kind == QuestionKindStandard
}

// IsReadingComprehension reports whether q is the RC variant
func (q *Question) IsReadingComprehension() bool {
	return q.Kind == QuestionKindReadingComprehension
}

// TotalMarks returns the marks the question contributes to an exam.
// RC questions are worth the sum of their sub-questions.
func (q *Question) TotalMarks() float64 {
	if q.IsReadingComprehension() {
		total := 0.0
		for _, sq := range q.SubQuestions {
			total += sq.Marks
		}
		return total
	}
	return q.Marks
}

// BulkQuestionRecord is the flat record produced by bulk extraction, one per
// delimited block. It only ever carries the Standard shape.
type BulkQuestionRecord struct {
	QuestionText       string     `json:"questionText"`
	Options            []Option   `json:"options"`
	CorrectOptionIndex int        `json:"correctOptionIndex"`
	Topic              string     `json:"topic,omitempty"`
	Difficulty         Difficulty `json:"difficulty,omitempty"`
	Explanation        string     `json:"explanation,omitempty"`
	Marks              float64    `json:"marks"`
}

// ToQuestion lifts a bulk record into a Standard Question under the given subject
func (r BulkQuestionRecord) ToQuestion(subject string) Question {
	idx := r.CorrectOptionIndex
	options := make([]Option, len(r.Options))
	copy(options, r.Options)
	return Question{
		Kind:               QuestionKindStandard,
		QuestionText:       r.QuestionText,
		Options:            options,
		CorrectOptionIndex: &idx,
		Subject:            subject,
		Topic:              r.Topic,
		Difficulty:         r.Difficulty,
		Explanation:        r.Explanation,
		Marks:              r.Marks,
	}
}
