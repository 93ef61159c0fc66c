// Command parsequestions runs the question extractor against a text file or
// stdin and prints the validated result as JSON. With -validate it skips the
// inference call and checks an existing JSON document against a shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sahilchouksey/exam-prep-api/config"
	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

func main() {
	mode := flag.String("mode", "single", "extraction mode: single or bulk")
	validate := flag.String("validate", "", "validate a JSON file against SingleQuestion, BulkQuestionList or ManualQuestion instead of calling the model")
	timeout := flag.Duration("timeout", 0, "per-call timeout (defaults to ORACLE_TIMEOUT)")
	flag.Parse()

	// .env is optional here
	_ = godotenv.Load()

	log, err := utils.NewLogger(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	utils.SetDefault(log)
	defer log.Sync()

	input, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatal("failed to read input", "error", err)
	}

	if *validate != "" {
		v, err := questionparser.Validate(input, questionparser.Shape(*validate))
		if err != nil {
			printJSON(map[string]interface{}{"valid": false, "error": err})
			os.Exit(2)
		}
		printJSON(map[string]interface{}{"valid": true, "value": v})
		return
	}

	env, err := config.Get()
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if env.MODEL_ACCESS_KEY == "" {
		log.Fatal("MODEL_ACCESS_KEY must be set")
	}
	if *timeout <= 0 {
		*timeout = env.ORACLE_TIMEOUT
	}

	policy, err := questionparser.ParseBulkPolicy(env.INGEST_BULK_POLICY)
	if err != nil {
		log.Fatal("invalid INGEST_BULK_POLICY", "error", err)
	}

	client := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey:  env.MODEL_ACCESS_KEY,
		BaseURL: env.INFERENCE_BASE_URL,
		Model:   env.INFERENCE_MODEL,
		Timeout: *timeout,
	})
	oracle := questionparser.NewInferenceOracle(client, questionparser.WithOracleLogger(log))
	extractor := questionparser.NewExtractor(oracle, questionparser.Config{
		MaxInputBytes: env.INGEST_MAX_INPUT_BYTES,
		MaxBulkBlocks: env.INGEST_MAX_BULK_BLOCKS,
		BulkPolicy:    policy,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var result interface{}
	switch *mode {
	case "single":
		result, err = extractor.ParseSingleQuestion(ctx, string(input))
	case "bulk":
		result, err = extractor.ParseBulkQuestions(ctx, string(input))
	default:
		log.Fatal("unknown mode", "mode", *mode)
	}
	if err != nil {
		printJSON(map[string]interface{}{"error": err.Error(), "details": err})
		log.Error("extraction failed", "mode", *mode, "duration", time.Since(start), "error", err)
		os.Exit(2)
	}

	log.Info("extraction succeeded", "mode", *mode, "duration", time.Since(start))
	printJSON(result)
}

// readInput reads path, or stdin when path is empty or "-"
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
