package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tradelens/backend/internal/session"
)

var filesCmd = &cobra.Command{
	Use:     "files",
	Aliases: []string{"ls"},
	Short:   "List uploaded journals, most recent first",
	Args:    cobra.NoArgs,
	RunE:    runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return printFiles(cmd.OutOrStdout(), a.session.Snapshot())
}

var uploadAnalyze bool

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload one or more journal files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadAnalyze, "analyze", false, "analyze each file after uploading it")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, path := range args {
		f, err := session.NewFileFromPath(path, now())
		if err == nil {
			err = a.session.Upload(ctx, f)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "upload %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s as %s\n", path, f.ID)

		if uploadAnalyze {
			if err := a.session.Analyze(ctx); err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "analyze %s: %v\n", f.ID, err)
			}
		}
	}

	if err := printFiles(cmd.OutOrStdout(), a.session.Snapshot()); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d operations failed", failed, len(args))
	}
	return nil
}

var deleteCmd = &cobra.Command{
	Use:     "delete <file-id>...",
	Aliases: []string{"rm"},
	Short:   "Delete journals with their analyses and chats",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		full, err := resolveFileID(a.session.Snapshot().Files, id)
		if err != nil {
			return err
		}
		if err := a.session.Delete(ctx, full); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "deleted %s\n", full)
	}
	return nil
}
