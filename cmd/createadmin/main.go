// Command createadmin creates an admin account, or promotes and resets the
// password of an existing one. Existing sessions of that user are revoked.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sahilchouksey/exam-prep-api/config"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"github.com/sahilchouksey/exam-prep-api/utils/validation"
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

	email := flag.String("email", env.ADMIN_EMAIL, "admin email")
	password := flag.String("password", env.ADMIN_PASSWORD, "admin password")
	name := flag.String("name", "System Administrator", "display name")
	flag.Parse()

	log, err := utils.NewLogger(env.LOG_MODE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	utils.SetDefault(log)
	defer log.Sync()

	addr := strings.ToLower(strings.TrimSpace(*email))
	if !validation.ValidateEmail(addr) {
		log.Fatal("a valid -email is required")
	}
	if ok, problems := validation.ValidatePassword(*password); !ok {
		log.Fatal("password rejected", "problems", problems)
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer store.Close()
	if err := store.Init(); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	created, err := database.NewSeeder(store.DB()).UpsertAdmin(context.Background(), addr, *password, *name)
	if err != nil {
		log.Fatal("failed to create admin", "email", addr, "error", err)
	}

	if created {
		fmt.Printf("Created admin %s\n", addr)
	} else {
		fmt.Printf("Updated admin %s; existing sessions were revoked\n", addr)
	}
}
