package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cinder/internal/model"
	"cinder/internal/search"
)

var (
	flagK     int
	flagAlpha float64
	flagMode  string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed codebase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		dbPath, err := workingDBPath()
		if err != nil {
			return err
		}
		st, err := openExistingStore(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := search.New(st, newEmbedder(), search.Options{})

		var results []model.SearchResult
		switch flagMode {
		case model.ModeHybrid:
			results, err = eng.Hybrid(cmd.Context(), query, flagK, flagAlpha)
		case model.ModeLexical:
			results, err = eng.Lexical(query, flagK)
		case model.ModeVector:
			results, err = eng.Vector(cmd.Context(), query, flagK)
		default:
			return fmt.Errorf("unknown mode %q (want hybrid, lexical, or vector)", flagMode)
		}
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		chunks, err := st.GetChunksByIDs(ids)
		if err != nil {
			return err
		}
		byID := make(map[string]model.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}

		for i, r := range results {
			fmt.Printf("%2d. [%.4f] %s\n", i+1, r.Score, r.ID)
			if c, ok := byID[r.ID]; ok {
				fmt.Printf("    %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagK, "k", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&flagAlpha, "alpha", 0.5, "hybrid blend factor: 0 = lexical only, 1 = vector only")
	searchCmd.Flags().StringVar(&flagMode, "mode", model.ModeHybrid, "search mode: hybrid, lexical, or vector")
	rootCmd.AddCommand(searchCmd)
}
