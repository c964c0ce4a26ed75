package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tradelens/backend/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), st, func(w io.Writer) {
		fmt.Fprintf(w, "Mode:      %s\n", a.session.Mode())
		fmt.Fprintf(w, "Files:     %d\n", st.FileCount)
		fmt.Fprintf(w, "Analyses:  %d\n", st.AnalysisCount)
		fmt.Fprintf(w, "Messages:  %d\n", st.MessageCount)
		fmt.Fprintf(w, "Storage:   %s\n", humanBytes(st.StorageSize))
	})
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

var backupUpload bool

var backupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Write a backup of the store",
	Long:  "Write a backup of the store. Without a path a timestamped file is written to BACKUP_DIR.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupUpload, "upload", false, "also upload the backup to object storage (MINIO_* settings)")
}

type backupResult struct {
	Path string `json:"path" yaml:"path"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.backuper == nil {
		return errors.New("store is not available, nothing to back up")
	}
	var dest string
	if len(args) == 1 {
		dest = args[0]
	}

	res := backupResult{}
	if res.Path, err = a.backuper.Backup(ctx, dest); err != nil {
		return err
	}

	if backupUpload {
		if a.cfg.StoreURL != "" {
			return errors.New("--upload works with the embedded store only; the server uploads its own backups")
		}
		if !a.cfg.MinioEnabled() {
			return errors.New("--upload needs MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
		uctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		uploader, err := storage.NewMinio(uctx, a.cfg)
		if err != nil {
			return err
		}
		if res.URL, err = uploader.UploadBackup(uctx, res.Path); err != nil {
			return err
		}
	}

	return printValue(cmd.OutOrStdout(), res, func(w io.Writer) {
		fmt.Fprintf(w, "Backup written to %s\n", res.Path)
		if res.URL != "" {
			fmt.Fprintf(w, "Uploaded to %s\n", res.URL)
		}
	})
}
