package questionparser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sahilchouksey/exam-prep-api/model"
)

// Value is a validated, defaulted structured value. Exactly one field is set,
// depending on the shape it was validated against.
type Value struct {
	Question *model.Question
	Records  []model.BulkQuestionRecord
}

// DroppedRecord is a bulk element that failed validation
type DroppedRecord struct {
	Index      int         `json:"index"`
	Block      int         `json:"block"`
	Violations []Violation `json:"violations"`
}

// BulkValidation is the per-element outcome of validating a bulk list.
// Records keep the order of the oracle's array.
type BulkValidation struct {
	Records []model.BulkQuestionRecord
	Indexes []int
	Dropped []DroppedRecord
}

// Validate checks raw oracle output against shape and applies declared
// defaults. It returns every violation found, never just the first.
// For ShapeBulkQuestionList any invalid element fails the whole value.
func Validate(raw []byte, shape Shape) (Value, error) {
	switch shape {
	case ShapeSingleQuestion, ShapeManualQuestion:
		q, err := ValidateQuestion(raw, shape)
		if err != nil {
			return Value{}, err
		}
		return Value{Question: q}, nil
	case ShapeBulkQuestionList:
		records, err := ValidateBulk(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Records: records}, nil
	}
	return Value{}, fmt.Errorf("unknown shape %q", shape)
}

// ValidateSingle validates one machine-extracted question
func ValidateSingle(raw []byte) (*model.Question, error) {
	return ValidateQuestion(raw, ShapeSingleQuestion)
}

// ValidateQuestion validates a question under the single or manual shape
func ValidateQuestion(raw []byte, shape Shape) (*model.Question, error) {
	candidate, err := decodeCandidate(raw)
	if err != nil {
		return nil, &ValidationError{Shape: shape, Violations: []Violation{{Code: CodeWrongType, Message: err.Error()}}}
	}
	return validateQuestionValue(candidate, shape)
}

// ValidateBulk validates a bulk list strictly: one bad element fails all
func ValidateBulk(raw []byte) ([]model.BulkQuestionRecord, error) {
	bv, err := ValidateBulkElements(raw)
	if err != nil {
		return nil, err
	}
	if len(bv.Dropped) > 0 {
		var violations []Violation
		for _, d := range bv.Dropped {
			violations = append(violations, d.Violations...)
		}
		return nil, &ValidationError{Shape: ShapeBulkQuestionList, Violations: violations}
	}
	return bv.Records, nil
}

// ValidateBulkElements checks the wrapper and then every element on its own.
// A missing or malformed wrapper is an error; element failures are reported
// in Dropped so the caller can apply its own policy.
func ValidateBulkElements(raw []byte) (*BulkValidation, error) {
	candidate, err := decodeCandidate(raw)
	if err != nil {
		return nil, &ValidationError{Shape: ShapeBulkQuestionList, Violations: []Violation{{Code: CodeWrongType, Message: err.Error()}}}
	}

	obj, ok := candidate.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Shape: ShapeBulkQuestionList, Violations: []Violation{{
			Code:    CodeMissingWrapper,
			Message: fmt.Sprintf("expected an object with a %q array, got %s", bulkWrapperKey, jsonKind(candidate)),
		}}}
	}
	list, ok := obj[bulkWrapperKey].([]interface{})
	if !ok {
		msg := fmt.Sprintf("missing %q array", bulkWrapperKey)
		if present(obj, bulkWrapperKey) {
			msg = fmt.Sprintf("%q must be an array, got %s", bulkWrapperKey, jsonKind(obj[bulkWrapperKey]))
		}
		return nil, &ValidationError{Shape: ShapeBulkQuestionList, Violations: []Violation{{
			Path: bulkWrapperKey, Code: CodeMissingWrapper, Message: msg,
		}}}
	}

	bv := &BulkValidation{}
	for i, elem := range list {
		c := &checker{block: i + 1}
		path := fmt.Sprintf("%s[%d]", bulkWrapperKey, i)
		rec, ok := c.bulkRecord(elem, path)
		if !ok || len(c.violations) > 0 {
			bv.Dropped = append(bv.Dropped, DroppedRecord{Index: i, Block: i + 1, Violations: c.violations})
			continue
		}
		bv.Records = append(bv.Records, rec)
		bv.Indexes = append(bv.Indexes, i)
	}
	return bv, nil
}

func decodeCandidate(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	return v, nil
}

func validateQuestionValue(candidate interface{}, shape Shape) (*model.Question, error) {
	c := &checker{}
	obj, ok := candidate.(map[string]interface{})
	if !ok {
		c.add("", CodeWrongType, "expected a JSON object, got %s", jsonKind(candidate))
		return nil, &ValidationError{Shape: shape, Violations: c.violations}
	}

	standard, rc := classify(obj, substantive)
	if !standard && !rc {
		// only empty values on either side: fall back so the field rules report them
		standard, rc = classify(obj, present)
	}

	q := &model.Question{}
	switch {
	case standard && rc:
		c.add("", CodeAmbiguousType, "ambiguous question type: both standard fields and passage fields are present")
	case !standard && !rc:
		c.add("", CodeUnclassifiable, "unclassifiable question type: neither standard fields nor passage fields are present")
	case standard:
		q.Kind = model.QuestionKindStandard
		q.QuestionText = c.requiredString(obj, "questionText", "questionText")
		q.Options = c.options(obj, "options", "options", 0)
		if idx, ok := c.correctIndex(obj, "correctOptionIndex", len(q.Options)); ok {
			q.CorrectOptionIndex = &idx
		}
		q.Marks = c.marks(obj, "marks")
	default:
		q.Kind = model.QuestionKindReadingComprehension
		q.Passage = c.requiredString(obj, "passage", "passage")
		q.SubQuestions = c.subQuestions(obj, shape)
	}

	q.Subject = c.optionalString(obj, "subject", "subject")
	q.Topic = c.optionalString(obj, "topic", "topic")
	q.Difficulty = c.difficulty(obj, "difficulty")
	q.Explanation = c.optionalString(obj, "explanation", "explanation")

	if len(c.violations) > 0 {
		return nil, &ValidationError{Shape: shape, Violations: c.violations}
	}
	return q, nil
}

type checker struct {
	violations []Violation
	block      int
}

func (c *checker) add(path, code, format string, args ...interface{}) {
	c.violations = append(c.violations, Violation{
		Path:    path,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Block:   c.block,
	})
}

func (c *checker) subQuestions(obj map[string]interface{}, shape Shape) []model.SubQuestion {
	raw, ok := obj["subQuestions"]
	if !ok || raw == nil {
		c.add("subQuestions", CodeRequired, "subQuestions is required for a reading comprehension question")
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		c.add("subQuestions", CodeWrongType, "subQuestions must be an array, got %s", jsonKind(raw))
		return nil
	}

	optionCount := 0
	if shape == ShapeManualQuestion {
		if len(list) < 1 {
			c.add("subQuestions", CodeSubQuestionCount, "a passage needs at least 1 sub-question")
		}
	} else {
		optionCount = GeneratedOptionCount
		if len(list) < MinGeneratedSubQuestions || len(list) > MaxGeneratedSubQuestions {
			c.add("subQuestions", CodeSubQuestionCount, "generated passages need %d to %d sub-questions, got %d",
				MinGeneratedSubQuestions, MaxGeneratedSubQuestions, len(list))
		}
	}

	subs := make([]model.SubQuestion, 0, len(list))
	for i, elem := range list {
		path := fmt.Sprintf("subQuestions[%d]", i)
		sobj, ok := elem.(map[string]interface{})
		if !ok {
			c.add(path, CodeWrongType, "expected an object, got %s", jsonKind(elem))
			continue
		}
		sq := model.SubQuestion{
			QuestionText: c.requiredString(sobj, "questionText", path+".questionText"),
			Options:      c.options(sobj, "options", path+".options", optionCount),
			Explanation:  c.optionalString(sobj, "explanation", path+".explanation"),
			Marks:        c.marks(sobj, path+".marks"),
		}
		if idx, ok := c.correctIndex(sobj, path+".correctOptionIndex", len(sq.Options)); ok {
			sq.CorrectOptionIndex = idx
		}
		subs = append(subs, sq)
	}
	return subs
}

func (c *checker) bulkRecord(elem interface{}, path string) (model.BulkQuestionRecord, bool) {
	obj, ok := elem.(map[string]interface{})
	if !ok {
		c.add(path, CodeWrongType, "expected an object, got %s", jsonKind(elem))
		return model.BulkQuestionRecord{}, false
	}
	rec := model.BulkQuestionRecord{
		QuestionText: c.requiredString(obj, "questionText", path+".questionText"),
		Options:      c.options(obj, "options", path+".options", 0),
		Topic:        c.optionalString(obj, "topic", path+".topic"),
		Difficulty:   c.difficulty(obj, path+".difficulty"),
		Explanation:  c.optionalString(obj, "explanation", path+".explanation"),
		Marks:        c.marks(obj, path+".marks"),
	}
	idx, ok := c.correctIndex(obj, path+".correctOptionIndex", len(rec.Options))
	rec.CorrectOptionIndex = idx
	return rec, ok
}

func (c *checker) requiredString(obj map[string]interface{}, key, path string) string {
	raw, ok := obj[key]
	if !ok || raw == nil {
		c.add(path, CodeRequired, "%s is required", key)
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, CodeWrongType, "%s must be a string, got %s", key, jsonKind(raw))
		return ""
	}
	if strings.TrimSpace(s) == "" {
		c.add(path, CodeEmpty, "%s must not be empty", key)
		return ""
	}
	return s
}

func (c *checker) optionalString(obj map[string]interface{}, key, path string) string {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, CodeWrongType, "%s must be a string, got %s", key, jsonKind(raw))
		return ""
	}
	return strings.TrimSpace(s)
}

// options reads an option list. exact > 0 demands that many options.
// Bare strings are accepted as option text.
func (c *checker) options(obj map[string]interface{}, key, path string, exact int) []model.Option {
	raw, ok := obj[key]
	if !ok || raw == nil {
		c.add(path, CodeRequired, "%s is required", key)
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		c.add(path, CodeWrongType, "%s must be an array, got %s", key, jsonKind(raw))
		return nil
	}

	switch {
	case len(list) < MinOptions:
		c.add(path, CodeTooFewOptions, "too few options: need at least %d, got %d", MinOptions, len(list))
	case exact > 0 && len(list) != exact:
		c.add(path, CodeOptionCount, "expected exactly %d options, got %d", exact, len(list))
	}

	opts := make([]model.Option, 0, len(list))
	for i, elem := range list {
		opath := fmt.Sprintf("%s[%d]", path, i)
		var text string
		switch v := elem.(type) {
		case string:
			text = v
		case map[string]interface{}:
			t, ok := v["text"].(string)
			if !ok {
				if v["text"] == nil {
					c.add(opath+".text", CodeRequired, "option text is required")
				} else {
					c.add(opath+".text", CodeWrongType, "option text must be a string, got %s", jsonKind(v["text"]))
				}
				opts = append(opts, model.Option{})
				continue
			}
			text = t
		default:
			c.add(opath, CodeWrongType, "option must be an object with text, got %s", jsonKind(elem))
			opts = append(opts, model.Option{})
			continue
		}
		if strings.TrimSpace(text) == "" {
			c.add(opath+".text", CodeEmpty, "option text must not be empty")
		}
		opts = append(opts, model.Option{Text: strings.TrimSpace(text)})
	}
	return opts
}

// correctIndex reads an integral index and checks it against n options.
// The value is never clamped; a bad index is a violation.
func (c *checker) correctIndex(obj map[string]interface{}, path string, n int) (int, bool) {
	raw, ok := obj["correctOptionIndex"]
	if !ok || raw == nil {
		c.add(path, CodeRequired, "correctOptionIndex is required: could not detect a valid correct-answer index")
		return 0, false
	}
	num, ok := raw.(json.Number)
	if !ok {
		c.add(path, CodeWrongType, "correctOptionIndex must be an integer, got %s", jsonKind(raw))
		return 0, false
	}

	var idx int64
	if i, err := num.Int64(); err == nil {
		idx = i
	} else {
		f, ferr := num.Float64()
		if ferr != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
			c.add(path, CodeNotInteger, "correctOptionIndex must be an integer, got %s", num.String())
			return 0, false
		}
		if math.Abs(f) > math.MaxInt32 {
			c.add(path, CodeIndexOutOfBounds, "index out of bounds: %s is not within [0, %d)", num.String(), n)
			return 0, false
		}
		idx = int64(f)
	}

	if idx < 0 || idx >= int64(n) {
		c.add(path, CodeIndexOutOfBounds, "index out of bounds: %d is not within [0, %d)", idx, n)
		return 0, false
	}
	return int(idx), true
}

// marks reads an optional positive number, defaulting to model.DefaultMarks
func (c *checker) marks(obj map[string]interface{}, path string) float64 {
	raw, ok := obj["marks"]
	if !ok || raw == nil {
		return model.DefaultMarks
	}
	num, ok := raw.(json.Number)
	if !ok {
		c.add(path, CodeWrongType, "marks must be a number, got %s", jsonKind(raw))
		return 0
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		c.add(path, CodeWrongType, "marks must be a finite number, got %s", num.String())
		return 0
	}
	if f <= 0 {
		c.add(path, CodeNotPositive, "marks must be positive, got %s", num.String())
		return 0
	}
	return f
}

func (c *checker) difficulty(obj map[string]interface{}, path string) model.Difficulty {
	raw, ok := obj["difficulty"]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, CodeWrongType, "difficulty must be a string, got %s", jsonKind(raw))
		return ""
	}
	d := model.Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return ""
	}
	if !d.Valid() {
		c.add(path, CodeInvalidEnum, "difficulty must be one of easy, medium or hard, got %q", s)
		return ""
	}
	return d
}

var (
	standardKeys = []string{"questionText", "options", "correctOptionIndex"}
	passageKeys  = []string{"passage", "subQuestions"}
)

func classify(obj map[string]interface{}, has func(map[string]interface{}, string) bool) (standard, rc bool) {
	for _, k := range standardKeys {
		standard = standard || has(obj, k)
	}
	for _, k := range passageKeys {
		rc = rc || has(obj, k)
	}
	return standard, rc
}

func present(obj map[string]interface{}, key string) bool {
	v, ok := obj[key]
	return ok && v != nil
}

// substantive is present, minus blank strings and empty arrays
func substantive(obj map[string]interface{}, key string) bool {
	switch v := obj[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []interface{}:
		return len(v) > 0
	}
	return true
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
