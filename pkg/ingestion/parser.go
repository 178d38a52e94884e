// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parser extracts definitions, imports, and name occurrences from source
// files using Tree-sitter.
//
// Supported languages: Go, Python, JavaScript, TypeScript (TSX through the
// TypeScript grammar).
type Parser struct {
	logger *slog.Logger

	// Language parser pools (tree-sitter parsers are not thread-safe).
	goPool     sync.Pool
	pyPool     sync.Pool
	jsPool     sync.Pool
	tsPool     sync.Pool
	parserInit sync.Once
}

// NewParser creates a Tree-sitter based parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) initPools() {
	p.parserInit.Do(func() {
		p.goPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			return parser
		}
		p.pyPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(python.GetLanguage())
			return parser
		}
		p.jsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(javascript.GetLanguage())
			return parser
		}
		p.tsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(typescript.GetLanguage())
			return parser
		}
	})
}

// Parse extracts everything from one file. path is repository-relative and
// used for language detection and logging only.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*FileParse, error) {
	p.initPools()

	language := LanguageForPath(path)
	if language == "" {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	var pool *sync.Pool
	switch language {
	case LangGo:
		pool = &p.goPool
	case LangPython:
		pool = &p.pyPool
	case LangJavaScript:
		pool = &p.jsPool
	case LangTypeScript:
		pool = &p.tsPool
	}

	parserObj := pool.Get()
	parser, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("invalid parser type from %s pool", language)
	}
	defer pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			p.logger.Warn("parser.syntax_errors", "path", path, "language", language, "error_count", n)
		}
		// Tree-sitter is error-tolerant, keep going with what parsed.
	}

	fp := &FileParse{Path: path, Language: language}
	switch language {
	case LangGo:
		p.extractGo(root, content, fp)
	case LangPython:
		p.extractPython(root, content, fp)
	case LangJavaScript, LangTypeScript:
		p.extractJS(root, content, fp, language == LangTypeScript)
	}

	fp.Definitions = normalizeDefinitions(fp.Definitions)
	return fp, nil
}

// normalizeDefinitions sorts by position, drops duplicate start lines, and
// suppresses anonymous or variable definitions nested inside another
// emitted span. Nested helpers already travel with their enclosing
// definition's source text.
func normalizeDefinitions(defs []ParsedDefinition) []ParsedDefinition {
	if len(defs) == 0 {
		return defs
	}

	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].StartLine != defs[j].StartLine {
			return defs[i].StartLine < defs[j].StartLine
		}
		return defs[i].EndLine > defs[j].EndLine
	})

	seenStart := make(map[int]bool, len(defs))
	out := make([]ParsedDefinition, 0, len(defs))
	for _, d := range defs {
		if seenStart[d.StartLine] {
			continue
		}
		if d.Name == "anonymous" || d.Kind == "variable" {
			contained := false
			for _, kept := range out {
				if kept.StartLine < d.StartLine && d.EndLine <= kept.EndLine {
					contained = true
					break
				}
			}
			if contained {
				continue
			}
		}
		seenStart[d.StartLine] = true
		out = append(out, d)
	}
	return out
}

// countErrors counts ERROR nodes in the AST.
func countErrors(node *sitter.Node) int {
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// startLine and endLine convert tree-sitter rows to 1-based lines.
func startLine(node *sitter.Node) int { return int(node.StartPoint().Row) + 1 }
func endLine(node *sitter.Node) int   { return int(node.EndPoint().Row) + 1 }

// precedingComment collects the contiguous run of comment nodes directly
// above node. Used as the docstring in languages that document
// declarations with leading comments.
func precedingComment(node *sitter.Node, content []byte) string {
	var parts []string
	expect := int(node.StartPoint().Row)

	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Type() != "comment" {
			break
		}
		if int(prev.EndPoint().Row) < expect-1 {
			break
		}
		parts = append(parts, nodeText(prev, content))
		expect = int(prev.StartPoint().Row)
	}

	// Collected bottom-up, restore source order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}
