package main

import (
	"os"

	"github.com/sahilchouksey/exam-prep-api/app"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		utils.L().Error("server exited", "error", err)
		os.Exit(1)
	}
}
