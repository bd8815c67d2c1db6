// Package chunker turns a file's symbols and source text into bounded,
// retrieval-sized chunks. Chunk ids are deterministic functions of the file
// path and the symbol or window position, so re-indexing an unchanged file
// reproduces identical ids.
package chunker

import (
	"fmt"
	"strings"

	"cinder/internal/model"
)

// Chunking policy defaults.
const (
	MaxSymbolLines = 300
	WindowSize     = 120
	WindowOverlap  = 20
)

// Builder applies the chunking policy for one language.
type Builder struct {
	Language string
}

func New(language string) *Builder {
	return &Builder{Language: language}
}

// Build produces the chunks for one file.
//
// Each symbol span of at most MaxSymbolLines becomes a single chunk; larger
// spans split into WindowSize-line windows with WindowOverlap lines of
// overlap. A file with no symbols gets the same windowed treatment over its
// whole line range. An empty file yields no chunks.
func (b *Builder) Build(filePath string, lines []string, symbols []model.Symbol, relations []model.Relation) []model.Chunk {
	totalLines := len(lines)
	var chunks []model.Chunk

	add := func(startLine, endLine int, label string) {
		s := max(1, startLine)
		e := min(totalLines, endLine)
		if e < s {
			return
		}
		chunkSymbols := overlappingSymbols(symbols, s, e)
		chunks = append(chunks, model.Chunk{
			ID:        fmt.Sprintf("%s:%s", filePath, label),
			FilePath:  filePath,
			StartLine: s,
			EndLine:   e,
			Content:   strings.Join(lines[s-1:e], "\n"),
			Language:  b.Language,
			Symbols:   chunkSymbols,
			Relations: touchingRelations(relations, chunkSymbols),
		})
	}

	if len(symbols) > 0 {
		for idx, sym := range symbols {
			span := sym.EndLine - sym.StartLine + 1
			if span <= MaxSymbolLines {
				add(sym.StartLine, sym.EndLine, fmt.Sprintf("symbol:%d:%s:%s", idx, sym.Kind, sym.Name))
				continue
			}
			// Oversized symbol: overlapping fixed windows until the span
			// is covered, final window clamped to the span end.
			start := sym.StartLine
			for windowIdx := 0; start <= sym.EndLine; windowIdx++ {
				end := start + WindowSize - 1
				add(start, min(end, sym.EndLine),
					fmt.Sprintf("symbol:%d:%s:%s:win%d", idx, sym.Kind, sym.Name, windowIdx))
				if end >= sym.EndLine {
					break
				}
				start = end - WindowOverlap + 1
			}
		}
		return chunks
	}

	// No symbols at all: script-like files still get retrievable chunks.
	if totalLines == 0 {
		return nil
	}
	if totalLines <= WindowSize {
		add(1, totalLines, "file:0")
		return chunks
	}
	start := 1
	for windowIdx := 0; start <= totalLines; windowIdx++ {
		end := start + WindowSize - 1
		add(start, min(end, totalLines), fmt.Sprintf("file:win%d", windowIdx))
		if end >= totalLines {
			break
		}
		start = end - WindowOverlap + 1
	}
	return chunks
}

// overlappingSymbols returns the symbols whose span overlaps [startLine,
// endLine]; partial overlap counts.
func overlappingSymbols(symbols []model.Symbol, startLine, endLine int) []model.Symbol {
	var out []model.Symbol
	for _, s := range symbols {
		if s.EndLine < startLine || s.StartLine > endLine {
			continue
		}
		out = append(out, s)
	}
	return out
}

// touchingRelations returns the relations with either endpoint among the
// given symbols. A relation whose endpoints land in different chunks appears
// in both.
func touchingRelations(relations []model.Relation, symbols []model.Symbol) []model.Relation {
	if len(symbols) == 0 {
		return nil
	}
	ids := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		ids[s.ID] = true
	}
	var out []model.Relation
	for _, r := range relations {
		if ids[r.FromSymbolID] || ids[r.ToSymbolID] {
			out = append(out, r)
		}
	}
	return out
}

// SplitLines splits source text the way the chunk line math expects: no
// synthetic empty final line for a trailing newline, and no lines at all for
// empty input.
func SplitLines(src string) []string {
	if src == "" {
		return nil
	}
	lines := strings.Split(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
