package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cinder/internal/config"
	"cinder/internal/embedder"
	"cinder/internal/store"
)

var (
	flagDB       string
	flagEmbedURL string
	flagModel    string
	flagAPIKey   string
	flagDim      int
)

var rootCmd = &cobra.Command{
	Use:   "cinder",
	Short: "Index C# codebases and search them with hybrid lexical + vector retrieval",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", cfg.DBPath, "database path (default <root>/.cinder/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagEmbedURL, "embed-url", cfg.EmbedBaseURL, "OpenAI-compatible embeddings base URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "embed-model", cfg.EmbedModel, "embedding model name")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "embed-api-key", cfg.EmbedAPIKey, "API key for the embeddings endpoint (optional)")
	rootCmd.PersistentFlags().IntVar(&flagDim, "embed-dim", cfg.EmbedDim, "embedding vector dimension")
}

// dbPathFor resolves the database location: the --db flag (or CINDER_DB) if
// set, otherwise <root>/.cinder/index.db.
func dbPathFor(root string) string {
	if flagDB != "" {
		return flagDB
	}
	return filepath.Join(root, ".cinder", "index.db")
}

// openStore opens (creating if needed) the index database at dbPath.
func openStore(dbPath string) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	st, err := store.Open(dbPath, flagDim)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return st, nil
}

// openExistingStore refuses to create a fresh database; read paths use it so
// a typo'd path fails loudly instead of searching an empty index.
func openExistingStore(dbPath string) (*store.SQLiteStore, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("index not found at %s\nRun 'cinder index <path>' first to build the index", dbPath)
	}
	return openStore(dbPath)
}

func newEmbedder() *embedder.Client {
	cfg := config.Load()
	return embedder.New(embedder.Config{
		BaseURL: flagEmbedURL,
		APIKey:  flagAPIKey,
		Model:   flagModel,
		Timeout: cfg.EmbedTimeout,
	})
}

// workingDBPath resolves the database for commands that run without a root
// argument (search, status, mcp): the flag if set, else ./.cinder/index.db.
func workingDBPath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, ".cinder", "index.db"), nil
}
