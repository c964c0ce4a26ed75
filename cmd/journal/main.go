// journal uploads trading journals, asks a model to review them and answers
// follow-up questions, keeping everything in the TradeLens store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradelens/backend/cmd/journal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
