// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/store"
)

// parseSource is a helper that parses inline content.
func parseSource(t *testing.T, path, source string) *FileParse {
	t.Helper()
	parser := NewParser(nil)
	fp, err := parser.Parse(context.Background(), path, []byte(source))
	require.NoError(t, err)
	return fp
}

// findDef returns the definition with the given name, or nil.
func findDef(fp *FileParse, name string) *ParsedDefinition {
	for i := range fp.Definitions {
		if fp.Definitions[i].Name == name {
			return &fp.Definitions[i]
		}
	}
	return nil
}

// TestGoParser_Functions verifies function and method extraction.
func TestGoParser_Functions(t *testing.T) {
	fp := parseSource(t, "math.go", `package math

// Add sums two ints.
func Add(a, b int) int {
	return a + b
}

type Counter struct {
	n int
}

func (c *Counter) Incr() {
	c.n++
}

func helper() int { return 0 }
`)
	require.Equal(t, LangGo, fp.Language)

	add := findDef(fp, "Add")
	require.NotNil(t, add)
	assert.Equal(t, store.KindFunction, add.Kind)
	assert.True(t, add.IsExported)
	assert.Equal(t, 4, add.StartLine)
	assert.Greater(t, add.EndLine, add.StartLine)
	assert.Contains(t, add.SourceCode, "return a + b")
	assert.Contains(t, add.Docstring, "Add sums two ints.")

	incr := findDef(fp, "Incr")
	require.NotNil(t, incr)
	assert.Equal(t, store.KindMethod, incr.Kind)

	counter := findDef(fp, "Counter")
	require.NotNil(t, counter)
	assert.Equal(t, store.KindClass, counter.Kind)

	h := findDef(fp, "helper")
	require.NotNil(t, h)
	assert.False(t, h.IsExported)
}

// TestGoParser_TypesAndValues verifies interface, alias, const, and var
// extraction, including grouped declarations.
func TestGoParser_TypesAndValues(t *testing.T) {
	fp := parseSource(t, "types.go", `package types

type Reader interface {
	Read(p []byte) (int, error)
}

type ID = int64

const (
	MaxRetries = 5
	minDelay   = 10
)

var DefaultName = "anonymous"
`)
	reader := findDef(fp, "Reader")
	require.NotNil(t, reader)
	assert.Equal(t, store.KindInterface, reader.Kind)

	id := findDef(fp, "ID")
	require.NotNil(t, id)
	assert.Equal(t, store.KindTypeAlias, id.Kind)

	maxRetries := findDef(fp, "MaxRetries")
	require.NotNil(t, maxRetries)
	assert.Equal(t, store.KindConstant, maxRetries.Kind)

	minDelay := findDef(fp, "minDelay")
	require.NotNil(t, minDelay)
	assert.False(t, minDelay.IsExported)

	name := findDef(fp, "DefaultName")
	require.NotNil(t, name)
	assert.Equal(t, store.KindVariable, name.Kind)
}

// TestGoParser_Imports verifies import path and alias extraction.
func TestGoParser_Imports(t *testing.T) {
	fp := parseSource(t, "imports.go", `package app

import (
	"fmt"
	sq "database/sql"
)

func main() { fmt.Println(sq.ErrNoRows) }
`)
	require.Len(t, fp.Imports, 2)

	paths := map[string]string{}
	for _, imp := range fp.Imports {
		paths[imp.Path] = imp.Alias
	}
	assert.Contains(t, paths, "fmt")
	assert.Equal(t, "sq", paths["database/sql"])
}

// TestGoParser_Occurrences verifies call and type occurrence collection
// with line positions.
func TestGoParser_Occurrences(t *testing.T) {
	fp := parseSource(t, "calls.go", `package app

func process(c Config) {
	validate(c)
	c.store.Save()
}
`)
	names := map[string][]int{}
	for _, occ := range fp.Occurrences {
		names[occ.Name] = append(names[occ.Name], occ.Line)
	}
	assert.Contains(t, names, "validate")
	assert.Contains(t, names, "Save")
	assert.Contains(t, names, "Config")
	assert.Equal(t, []int{4}, names["validate"])
}

// TestGoParser_SyntaxErrorsTolerated verifies a broken file still yields
// the definitions around the damage.
func TestGoParser_SyntaxErrorsTolerated(t *testing.T) {
	fp := parseSource(t, "broken.go", `package app

func ok() int { return 1 }

func broken( {
`)
	require.NotNil(t, findDef(fp, "ok"))
}

// TestNormalizeDefinitions verifies start-line dedupe and suppression of
// variable definitions contained in an emitted span.
func TestNormalizeDefinitions(t *testing.T) {
	defs := []ParsedDefinition{
		{Name: "outer", Kind: store.KindFunction, StartLine: 1, EndLine: 10},
		{Name: "outer", Kind: store.KindFunction, StartLine: 1, EndLine: 10},
		{Name: "inner", Kind: store.KindVariable, StartLine: 3, EndLine: 5},
		{Name: "after", Kind: store.KindFunction, StartLine: 12, EndLine: 14},
	}
	out := normalizeDefinitions(defs)
	require.Len(t, out, 2)
	assert.Equal(t, "outer", out[0].Name)
	assert.Equal(t, "after", out[1].Name)
}

// TestLanguageForPath verifies the extension mapping.
func TestLanguageForPath(t *testing.T) {
	assert.Equal(t, LangGo, LanguageForPath("a/b/c.go"))
	assert.Equal(t, LangPython, LanguageForPath("x.py"))
	assert.Equal(t, LangTypeScript, LanguageForPath("src/app.tsx"))
	assert.Equal(t, LangJavaScript, LanguageForPath("web/index.jsx"))
	assert.Empty(t, LanguageForPath("README.md"))
	assert.True(t, SupportedPath("main.go"))
	assert.False(t, SupportedPath("Makefile"))
}
