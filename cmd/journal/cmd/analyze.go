package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tradelens/backend/internal/session"
)

// now stamps uploaded files.
var now = time.Now

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file-id>",
	Short: "Run the model over a journal and print the review",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.selectFile(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "analyzing %s with %s...\n", id, a.provider.Name())
	if err := a.session.Analyze(ctx); err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), a.session.Snapshot().DisplayedResult())
}

var askCmd = &cobra.Command{
	Use:   "ask <file-id> <question>...",
	Short: "Ask a follow-up question about an analyzed journal",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	printer := &streamPrinter{w: cmd.OutOrStdout()}
	stream := strings.EqualFold(outputFormat, "text")

	var onChange func(session.State)
	if stream {
		onChange = printer.onChange
	}
	a, err := newApp(ctx, onChange)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.selectFile(ctx, args[0])
	if err != nil {
		return err
	}
	printer.reset(id)

	err = a.session.SendChat(ctx, strings.Join(args[1:], " "))
	if stream {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "reply interrupted; your question was kept")
		return err
	}
	if stream {
		return nil
	}
	return printValue(cmd.OutOrStdout(), a.session.Snapshot().DisplayedHistory(), nil)
}
