package questionparser

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

// The oracle relies on these phrases; changing them changes extraction behaviour
func TestSingleQuestionInstructions_Contract(t *testing.T) {
	phrases := []string{
		"STANDARD",
		"READING COMPREHENSION",
		"numbered (1, 2, 3), lettered (A, B, C)",
		`"Answer: C" and "Correct: 3"`,
		"0-based",
		"verbatim",
		"between 3 and 5 sub-questions",
		"exactly 4",
		`Omit "passage" and "subQuestions"`,
		`Omit the top-level "questionText", "options" and "correctOptionIndex"`,
		"Never guess it",
	}
	for _, p := range phrases {
		if !strings.Contains(SingleQuestionInstructions, p) {
			t.Errorf("single-question instructions lost the phrase %q", p)
		}
	}
}

func TestBulkQuestionInstructions_Contract(t *testing.T) {
	phrases := []string{
		"Treat --- on its own line as the only question delimiter",
		"same order as the input",
		`"Answer: C", "Correct: 2", "Ans: Option A"`,
		"0-based index",
		"options list you created for that block",
		"defaults to 1",
		`single JSON object with a "questions" key`,
		"Never return a bare array",
	}
	for _, p := range phrases {
		if !strings.Contains(BulkQuestionInstructions, p) {
			t.Errorf("bulk instructions lost the phrase %q", p)
		}
	}
	if InstructionsVersion == "" {
		t.Error("instructions must carry a version")
	}
}

// TestLiveExtraction runs the pinned instructions against the real inference API.
// Requires RUN_INTEGRATION_TESTS=true and MODEL_ACCESS_KEY.
func TestLiveExtraction(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}
	apiKey := os.Getenv("MODEL_ACCESS_KEY")
	if apiKey == "" {
		t.Skip("MODEL_ACCESS_KEY not set")
	}

	client := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("INFERENCE_BASE_URL"),
		Model:   os.Getenv("INFERENCE_MODEL"),
	})
	ex := NewExtractor(NewInferenceOracle(client), DefaultConfig(), utils.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	q, err := ex.ParseSingleQuestion(ctx, "What is 2+2?\n1) 3\n2) 4\n3) 5\nAnswer: 2")
	if err != nil {
		t.Fatalf("single extraction failed: %v", err)
	}
	if !q.IsStandard() || *q.CorrectOptionIndex != 1 || len(q.Options) != 3 {
		t.Errorf("unexpected question: %+v", q)
	}

	res, err := ex.ParseBulkQuestions(ctx, scenarioBInput)
	if err != nil {
		t.Fatalf("bulk extraction failed: %v", err)
	}
	t.Logf("bulk: %d records, %d dropped", len(res.Records), len(res.Dropped))
	if len(res.Records) == 0 || len(res.Records) > 3 {
		t.Errorf("unexpected record count %d", len(res.Records))
	}
}
