package questionparser

import "github.com/sahilchouksey/exam-prep-api/model"

// Shape names a structural contract a candidate value is validated against
type Shape string

const (
	// ShapeSingleQuestion is one machine-extracted question of either variant
	ShapeSingleQuestion Shape = "SingleQuestion"
	// ShapeBulkQuestionList is an object wrapping a "questions" array of Standard records
	ShapeBulkQuestionList Shape = "BulkQuestionList"
	// ShapeManualQuestion is a hand-entered question; RC sub-question counts are free
	ShapeManualQuestion Shape = "ManualQuestion"
)

// Generated reading-comprehension bounds
const (
	MinGeneratedSubQuestions = 3
	MaxGeneratedSubQuestions = 5
	GeneratedOptionCount     = 4
	MinOptions               = 2
)

// bulkWrapperKey is the single array field the bulk output must be wrapped in
const bulkWrapperKey = "questions"

// SchemaDescriptor tells the oracle what to produce. Definition is a JSON
// schema document and doubles as the validator's target.
type SchemaDescriptor struct {
	Name        string
	Description string
	Definition  map[string]interface{}
}

// Descriptor returns the schema descriptor registered for shape
func Descriptor(shape Shape) SchemaDescriptor {
	switch shape {
	case ShapeBulkQuestionList:
		return SchemaDescriptor{
			Name:        "bulk_question_list",
			Description: "All multiple-choice questions found in the input, one per --- separated block, in input order",
			Definition: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					bulkWrapperKey: map[string]interface{}{
						"type":  "array",
						"items": bulkRecordSchema(),
					},
				},
				"required":             []string{bulkWrapperKey},
				"additionalProperties": false,
			},
		}
	case ShapeManualQuestion:
		return SchemaDescriptor{
			Name:        "manual_question",
			Description: "A hand-entered standard or reading comprehension question",
			Definition:  questionSchema(1, 0, 0),
		}
	default:
		return SchemaDescriptor{
			Name:        "single_question",
			Description: "One standard multiple-choice question, or a reading comprehension passage with generated sub-questions",
			Definition:  questionSchema(MinGeneratedSubQuestions, MaxGeneratedSubQuestions, GeneratedOptionCount),
		}
	}
}

func optionsSchema(exact int) map[string]interface{} {
	s := map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string", "minLength": 1},
			},
			"required": []string{"text"},
		},
		"minItems": MinOptions,
	}
	if exact > 0 {
		s["minItems"] = exact
		s["maxItems"] = exact
	}
	return s
}

func difficultySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "string",
		"enum": []string{string(model.DifficultyEasy), string(model.DifficultyMedium), string(model.DifficultyHard)},
	}
}

func questionSchema(minSub, maxSub, subOptions int) map[string]interface{} {
	subQuestions := map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"questionText":       map[string]interface{}{"type": "string", "minLength": 1},
				"options":            optionsSchema(subOptions),
				"correctOptionIndex": map[string]interface{}{"type": "integer", "minimum": 0},
				"explanation":        map[string]interface{}{"type": "string"},
				"marks":              map[string]interface{}{"type": "number", "exclusiveMinimum": 0, "default": model.DefaultMarks},
			},
			"required": []string{"questionText", "options", "correctOptionIndex"},
		},
		"minItems": minSub,
	}
	if maxSub > 0 {
		subQuestions["maxItems"] = maxSub
	}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"questionText":       map[string]interface{}{"type": "string", "description": "Standard questions only"},
			"options":            optionsSchema(0),
			"correctOptionIndex": map[string]interface{}{"type": "integer", "minimum": 0, "description": "0-based index into options"},
			"passage":            map[string]interface{}{"type": "string", "description": "Reading comprehension only, the input copied verbatim"},
			"subQuestions":       subQuestions,
			"subject":            map[string]interface{}{"type": "string"},
			"topic":              map[string]interface{}{"type": "string"},
			"difficulty":         difficultySchema(),
			"explanation":        map[string]interface{}{"type": "string"},
			"marks":              map[string]interface{}{"type": "number", "exclusiveMinimum": 0, "default": model.DefaultMarks},
		},
	}
}

func bulkRecordSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"questionText":       map[string]interface{}{"type": "string", "minLength": 1},
			"options":            optionsSchema(0),
			"correctOptionIndex": map[string]interface{}{"type": "integer", "minimum": 0},
			"topic":              map[string]interface{}{"type": "string"},
			"difficulty":         difficultySchema(),
			"explanation":        map[string]interface{}{"type": "string"},
			"marks":              map[string]interface{}{"type": "number", "exclusiveMinimum": 0, "default": model.DefaultMarks},
		},
		"required": []string{"questionText", "options", "correctOptionIndex"},
	}
}
