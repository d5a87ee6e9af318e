package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/ingest"
)

var (
	folderDir      string
	folderWatch    bool
	folderOwner    string
	folderPatterns string
	folderFromEnd  bool
)

// ingestFolderCmd represents the ingest-folder command
var ingestFolderCmd = &cobra.Command{
	Use:   "ingest-folder",
	Short: "Create cases from raw case files in a directory (optionally watch for changes)",
	Long: `Create cases from raw case records in a directory. Supports JSONL (one record
per line) and JSON files holding one record or an array of records. A record
may name an image file with "image_file"; it is read relative to the directory
and attached to the new case.

Examples:
  # One-shot: ingest existing files and exit
  case-console ingest-folder --dir ./incoming

  # Watch mode: tail JSONL appends and reprocess JSON changes
  case-console ingest-folder --dir ./incoming --watch

  # Ingest uploads on behalf of a radiologist
  case-console ingest-folder --dir ./uploads --owner 7c1e... --pattern "*.json"`,
	RunE: runIngestFolder,
}

func init() {
	rootCmd.AddCommand(ingestFolderCmd)

	ingestFolderCmd.Flags().StringVar(&folderDir, "dir", "", "Directory to read files from (default ingest.dir)")
	ingestFolderCmd.Flags().BoolVar(&folderWatch, "watch", false, "Watch directory for changes and tail JSONL files")
	ingestFolderCmd.Flags().StringVar(&folderOwner, "owner", "", "Owner id stamped on records without user_id (manual uploads)")
	ingestFolderCmd.Flags().StringVar(&folderPatterns, "pattern", "", "Comma-separated glob patterns to match (default ingest.pattern)")
	ingestFolderCmd.Flags().BoolVar(&folderFromEnd, "from-end", false, "In watch mode, skip lines already present in JSONL files")
}

// splitPatterns parses a comma-separated glob list.
func splitPatterns(s string) []string {
	var patterns []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			patterns = append(patterns, v)
		}
	}
	if len(patterns) == 0 {
		patterns = []string{"*.jsonl", "*.json"}
	}
	return patterns
}

func runIngestFolder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	dir := folderDir
	if dir == "" {
		dir = cfg.Ingest.Dir
	}
	if dir == "" {
		return errors.New("no directory: set --dir or ingest.dir")
	}
	patterns := folderPatterns
	if patterns == "" {
		patterns = cfg.Ingest.Pattern
	}

	logger, err := newLogger(cfg, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := ingest.FolderOptions{
		Dir:         dir,
		Watch:       folderWatch,
		Patterns:    splitPatterns(patterns),
		OwnerID:     folderOwner,
		TailFromEnd: folderFromEnd,
		Metrics:     b.metrics,
		Logger:      logger,
	}

	logger.Info("starting ingest-folder",
		zap.String("dir", opts.Dir),
		zap.Bool("watch", opts.Watch),
		zap.Strings("patterns", opts.Patterns))

	ingestor := ingest.NewFolderIngestor(b.repo, opts)
	if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingest-folder error: %w", err)
	}

	st := ingestor.Stats()
	fmt.Printf("Ingested %d case(s), %d error(s).\n", st.Ingested, st.Errors)
	return nil
}
