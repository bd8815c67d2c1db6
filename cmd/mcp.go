package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"cinder/internal/index"
	"cinder/internal/model"
	"cinder/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing indexing and search tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	dbPath, err := workingDBPath()
	if err != nil {
		return err
	}
	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	emb := newEmbedder()
	ix := index.New(st, emb, index.Config{})
	eng := search.New(st, emb, search.Options{})

	s := mcpserver.NewMCPServer("cinder", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(indexProjectTool(), makeIndexProjectHandler(ix))
	s.AddTool(syncIndexTool(), makeSyncHandler(ix))
	s.AddTool(reindexPathsTool(), makeReindexHandler(ix))
	s.AddTool(indexStatusTool(), makeStatusHandler(ix))
	s.AddTool(searchCodeTool(), makeSearchHandler(eng))
	s.AddTool(buildContextTool(), makeContextHandler(eng))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

var indexingAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(false),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func indexProjectTool() mcp.Tool {
	return mcp.NewTool("index_project",
		mcp.WithDescription("Fully (re)index all C# files under a root directory."),
		mcp.WithToolAnnotation(indexingAnnotation),
		mcp.WithString("root",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to index"),
		),
	)
}

func syncIndexTool() mcp.Tool {
	return mcp.NewTool("sync_index",
		mcp.WithDescription("Smart sync: reindex only new or changed files under a root, purge records of deleted files. Resumable and safe to call repeatedly."),
		mcp.WithToolAnnotation(indexingAnnotation),
		mcp.WithString("root",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to sync"),
		),
	)
}

func reindexPathsTool() mcp.Tool {
	return mcp.NewTool("reindex_paths",
		mcp.WithDescription("Explicitly reindex the named files or directories, ignoring fingerprints."),
		mcp.WithToolAnnotation(indexingAnnotation),
		mcp.WithString("paths",
			mcp.Required(),
			mcp.Description("Comma-separated list of files or directories to reindex"),
		),
	)
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool("index_status",
		mcp.WithDescription("Report the current or most recent indexing progress."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool("search_code",
		mcp.WithDescription("Search the indexed codebase. Hybrid mode blends BM25 full-text rank with vector similarity; lexical and vector modes run each side alone."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of results (default 20)"),
		),
		mcp.WithString("mode",
			mcp.Description("hybrid, lexical, or vector (default hybrid)"),
		),
		mcp.WithNumber("alpha",
			mcp.Description("Hybrid blend factor in [0,1]: 0 = lexical only, 1 = vector only (default 0.5)"),
		),
	)
}

func buildContextTool() mcp.Tool {
	return mcp.NewTool("build_context",
		mcp.WithDescription("Fetch chunks for search result ids and render them into a context prompt with per-snippet relation summaries."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The original user question"),
		),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated chunk ids, in ranking order"),
		),
		mcp.WithString("template",
			mcp.Description("Optional prompt template containing {query} and {contexts}"),
		),
	)
}

// --- Handler factories ---

func makeIndexProjectHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		root := req.GetString("root", "")
		if root == "" {
			return mcp.NewToolResultError("root is required"), nil
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		stats, err := ix.IndexAll(ctx, root)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Indexed %s: %d files (%d skipped), %d chunks",
			root, stats.FilesIndexed, stats.FilesSkipped, stats.ChunksTotal)), nil
	}
}

func makeSyncHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		root := req.GetString("root", "")
		if root == "" {
			return mcp.NewToolResultError("root is required"), nil
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		summary, err := ix.Sync(ctx, root)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Sync %s: %d files on disk, %d updated, %d deleted",
			summary.Status, summary.TotalFiles, summary.UpdatedFiles, summary.DeletedFiles)), nil
	}
}

func makeReindexHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("paths", "")
		paths := splitList(raw)
		if len(paths) == 0 {
			return mcp.NewToolResultError("paths is required"), nil
		}
		for i, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			paths[i] = abs
		}
		stats, err := ix.ReindexPaths(ctx, paths)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reindex failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Reindexed %d files (%d chunks)", stats.FilesIndexed, stats.ChunksTotal)), nil
	}
}

func makeStatusHandler(ix *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := ix.Progress()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read progress failed: %v", err)), nil
		}
		if p.Root == "" {
			return mcp.NewToolResultText(fmt.Sprintf("State: %s", p.State)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"State: %s\nRoot: %s\nProcessed: %d/%d",
			p.State, p.Root, p.ProcessedFiles, p.TotalFiles)), nil
	}
}

func makeSearchHandler(eng *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", 20)
		if k <= 0 {
			k = 20
		}
		mode := req.GetString("mode", model.ModeHybrid)
		alpha := req.GetFloat("alpha", 0.5)

		var results []model.SearchResult
		var err error
		switch mode {
		case model.ModeHybrid:
			results, err = eng.Hybrid(ctx, query, k, alpha)
		case model.ModeLexical:
			results, err = eng.Lexical(query, k)
		case model.ModeVector:
			results, err = eng.Vector(ctx, query, k)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(results) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No results for query: %q", query)), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "## Results for %q (%d, mode %s)\n\n", query, len(results), mode)
		for i, r := range results {
			fmt.Fprintf(&sb, "%d. `%s` score=%.4f\n", i+1, r.ID, r.Score)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeContextHandler(eng *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		ids := splitList(req.GetString("ids", ""))
		if len(ids) == 0 {
			return mcp.NewToolResultError("ids is required"), nil
		}
		prompt, _, err := eng.AssembleContext(query, ids, req.GetString("template", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("build context failed: %v", err)), nil
		}
		return mcp.NewToolResultText(prompt), nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
