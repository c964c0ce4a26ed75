package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tradelens/backend/internal/services"
	"github.com/tradelens/backend/internal/session"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session: select, analyze and chat about journals",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

const shellHelp = `Commands:
  files                 list journals (* marks the selection)
  select <id>           select a journal
  upload <path>         upload and select a journal
  analyze               analyze the selected journal
  report                show the selected journal's review
  history               show the chat for the selected journal
  delete <id>           delete a journal
  status                show the session mode and last error
  reconnect             retry the store after it was unreachable
  calls [clear]         list or forget recent model calls (ollama only)
  models                list models installed on the server (ollama only)
  help                  show this help
  quit                  leave the shell
Anything else is sent as a question about the selected journal.`

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	printer := &streamPrinter{w: out}

	a, err := newApp(ctx, printer.onChange)
	if err != nil {
		return err
	}
	defer a.Close()

	sh := &shell{app: a, out: out, printer: printer}
	fmt.Fprintf(out, "TradeLens shell (%s, model: %s). Type 'help' for commands.\n", a.session.Mode(), a.provider.Name())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, sh.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sh.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

var errQuit = errors.New("quit")

type shell struct {
	app     *app
	out     io.Writer
	printer *streamPrinter
}

func (s *shell) prompt() string {
	st := s.app.session.Snapshot()
	mode := ""
	if st.Mode == session.ModeDegraded {
		mode = " [offline]"
	}
	if f := st.SelectedFile(); f != nil {
		return fmt.Sprintf("%s%s> ", f.Name, mode)
	}
	return fmt.Sprintf("journal%s> ", mode)
}

func (s *shell) exec(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	sess := s.app.session

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "files", "ls":
		return printFiles(s.out, sess.Snapshot())
	case "select":
		if arg == "" {
			return errors.New("usage: select <id>")
		}
		_, err := s.app.selectFile(ctx, arg)
		return err
	case "upload":
		if arg == "" {
			return errors.New("usage: upload <path>")
		}
		f, err := session.NewFileFromPath(arg, now())
		if err != nil {
			return err
		}
		if err := sess.Upload(ctx, f); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "uploaded as %s\n", f.ID)
	case "analyze":
		fmt.Fprintln(s.out, "analyzing...")
		if err := sess.Analyze(ctx); err != nil {
			return err
		}
		return s.report()
	case "report":
		return s.report()
	case "history":
		for _, m := range sess.Snapshot().DisplayedHistory() {
			fmt.Fprintf(s.out, "%s: %s\n", m.Role, m.Text)
		}
	case "delete", "rm":
		full, err := resolveFileID(sess.Snapshot().Files, arg)
		if err != nil {
			return err
		}
		return sess.Delete(ctx, full)
	case "status":
		st := sess.Snapshot()
		fmt.Fprintf(s.out, "mode: %s\nfiles: %d\n", st.Mode, len(st.Files))
		if st.LastError != "" {
			fmt.Fprintf(s.out, "last error: %s\n", st.LastError)
		}
	case "reconnect":
		if err := sess.Reconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "mode: %s\n", sess.Mode())
	case "calls":
		return s.calls(arg)
	case "models":
		ls, ok := s.app.provider.(*services.LLMService)
		if !ok {
			return fmt.Errorf("model listing is not available for %s", s.app.provider.Name())
		}
		names, err := ls.GetAvailableModels(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(s.out, n)
		}
	default:
		return s.ask(ctx, line)
	}
	return nil
}

func (s *shell) report() error {
	r := s.app.session.Snapshot().DisplayedResult()
	if r == nil {
		return errors.New("the selected journal has not been analyzed")
	}
	return printReport(s.out, r)
}

func (s *shell) ask(ctx context.Context, question string) error {
	st := s.app.session.Snapshot()
	s.printer.reset(st.SelectedFileID)
	defer s.printer.reset("")

	err := s.app.session.SendChat(ctx, question)
	fmt.Fprintln(s.out)
	if errors.Is(err, session.ErrChatFailed) {
		return fmt.Errorf("%w (your question was kept)", err)
	}
	return err
}

func (s *shell) calls(arg string) error {
	ls, ok := s.app.provider.(*services.LLMService)
	if !ok {
		return fmt.Errorf("call tracking is not available for %s", s.app.provider.Name())
	}
	switch arg {
	case "":
	case "clear":
		ls.ClearAPICalls()
		fmt.Fprintln(s.out, "model call history cleared")
		return nil
	default:
		return errors.New("usage: calls [clear]")
	}
	calls := ls.GetAPICalls()
	if len(calls) == 0 {
		fmt.Fprintln(s.out, "no model calls yet")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tFILE\tSTATUS\tDURATION\tERROR")
	for _, c := range calls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", c.Timestamp.Format("15:04:05"), c.CallType, c.FileID, c.Status, c.Duration.Round(time.Millisecond), c.Error)
	}
	return tw.Flush()
}
