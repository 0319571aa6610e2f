// Package main is the entry point for the jslib CLI.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/git-pkgs/jslib/internal/cmd"
	"github.com/git-pkgs/jslib/internal/output"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.NewRootCmd().ExecuteContext(ctx); err != nil {
		output.Error(err.Error())
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
