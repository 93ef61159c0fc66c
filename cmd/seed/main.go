// Command seed migrates the schema and inserts the bootstrap rows: the first
// admin from ADMIN_EMAIL/ADMIN_PASSWORD and, with SEED_DEMO_EXAM=true, a
// draft demo exam.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sahilchouksey/exam-prep-api/config"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

func main() {
	if err := config.LoadENV(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	env, err := config.Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := utils.NewLogger(env.LOG_MODE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	utils.SetDefault(log)
	defer log.Sync()

	store, err := database.StartGORM()
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	err = database.RunSeeds(context.Background(), store.DB(), database.SeedOptions{
		AdminEmail:    env.ADMIN_EMAIL,
		AdminPassword: env.ADMIN_PASSWORD,
		DemoExam:      env.SEED_DEMO_EXAM,
	})
	if err != nil {
		log.Fatal("seeding failed", "error", err)
	}
	log.Info("seeding completed", "driver", env.DB_DRIVER, "demo_exam", env.SEED_DEMO_EXAM)
}
