package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cinder/internal/index"
)

var syncCmd = &cobra.Command{
	Use:   "sync <path>",
	Short: "Incrementally sync the index with the files on disk",
	Long: `Sync compares file fingerprints against the index, reprocesses only new or
changed files, and purges records for files that were deleted. Interrupted
runs are safe: calling sync again continues where the last pass stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(dbPathFor(root))
		if err != nil {
			return err
		}
		defer st.Close()

		ix := index.New(st, newEmbedder(), index.Config{})

		start := time.Now()
		summary, err := ix.Sync(cmd.Context(), root)
		if err != nil {
			return err
		}

		fmt.Printf("Sync %s in %s\n", summary.Status, time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Root:    %s\n", summary.Root)
		fmt.Printf("  Files:   %d on disk, %d updated, %d deleted\n",
			summary.TotalFiles, summary.UpdatedFiles, summary.DeletedFiles)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current or most recent indexing progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := workingDBPath()
		if err != nil {
			return err
		}
		st, err := openExistingStore(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ix := index.New(st, newEmbedder(), index.Config{})
		p, err := ix.Progress()
		if err != nil {
			return err
		}

		fmt.Printf("State: %s\n", p.State)
		if p.Root != "" {
			fmt.Printf("Root:  %s\n", p.Root)
			fmt.Printf("Files: %d/%d processed\n", p.ProcessedFiles, p.TotalFiles)
		}
		if p.FinishedAt != nil {
			fmt.Printf("Finished: %s\n", p.FinishedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
