package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gleaner/internal/orchestrator"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
	if errors.Is(err, orchestrator.ErrInterrupted) || errors.Is(err, context.Canceled) {
		// Progress is durable; rerunning resumes from the ledger.
		os.Exit(2)
	}
	os.Exit(1)
}
