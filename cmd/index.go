package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cinder/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Fully (re)index a codebase",
	Args:  cobra.ExactArgs(1),
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

		fmt.Printf("Indexing %s...\n", root)
		start := time.Now()

		stats, err := ix.IndexAll(cmd.Context(), root)
		elapsed := time.Since(start)

		if stats != nil {
			fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
			fmt.Printf("  Files:   %d total, %d indexed, %d skipped\n",
				stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped)
			fmt.Printf("  Chunks:  %d\n", stats.ChunksTotal)
		}

		return err
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <path>...",
	Short: "Reindex the named files or directories, ignoring fingerprints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := make([]string, len(args))
		for i, a := range args {
			p, err := filepath.Abs(a)
			if err != nil {
				return err
			}
			paths[i] = p
		}

		dbPath, err := workingDBPath()
		if err != nil {
			return err
		}
		st, err := openStore(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ix := index.New(st, newEmbedder(), index.Config{})
		stats, err := ix.ReindexPaths(cmd.Context(), paths)
		if stats != nil {
			fmt.Printf("Reindexed %d files (%d chunks)\n", stats.FilesIndexed, stats.ChunksTotal)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(reindexCmd)
}
