// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/store"
)

// TestPythonParser_FunctionsAndClasses verifies module functions, classes,
// and methods, with docstrings and export rules.
func TestPythonParser_FunctionsAndClasses(t *testing.T) {
	fp := parseSource(t, "service.py", `"""Service module."""

def fetch(url):
    """Fetch a URL."""
    return url

def _internal():
    pass

class Client:
    """HTTP client."""

    def get(self, path):
        return fetch(path)
`)
	require.Equal(t, LangPython, fp.Language)

	fetch := findDef(fp, "fetch")
	require.NotNil(t, fetch)
	assert.Equal(t, store.KindFunction, fetch.Kind)
	assert.True(t, fetch.IsExported)
	assert.Contains(t, fetch.Docstring, "Fetch a URL.")

	internal := findDef(fp, "_internal")
	require.NotNil(t, internal)
	assert.False(t, internal.IsExported)

	client := findDef(fp, "Client")
	require.NotNil(t, client)
	assert.Equal(t, store.KindClass, client.Kind)
	assert.Contains(t, client.Docstring, "HTTP client.")

	get := findDef(fp, "get")
	require.NotNil(t, get)
	assert.Equal(t, store.KindMethod, get.Kind)
}

// TestPythonParser_Decorated verifies decorated definitions keep the
// decorator in their span.
func TestPythonParser_Decorated(t *testing.T) {
	fp := parseSource(t, "routes.py", `@app.route("/health")
def health():
    return "ok"
`)
	health := findDef(fp, "health")
	require.NotNil(t, health)
	assert.Equal(t, 1, health.StartLine)
	assert.Contains(t, health.SourceCode, "@app.route")
}

// TestPythonParser_ModuleAssignments verifies constant and variable
// classification of module-level assignments.
func TestPythonParser_ModuleAssignments(t *testing.T) {
	fp := parseSource(t, "config.py", `MAX_RETRIES = 5
default_timeout = 30

def noop():
    local_var = 1
    return local_var
`)
	maxRetries := findDef(fp, "MAX_RETRIES")
	require.NotNil(t, maxRetries)
	assert.Equal(t, store.KindConstant, maxRetries.Kind)

	timeout := findDef(fp, "default_timeout")
	require.NotNil(t, timeout)
	assert.Equal(t, store.KindVariable, timeout.Kind)

	// Function-local assignments are not definitions.
	assert.Nil(t, findDef(fp, "local_var"))
}

// TestPythonParser_Imports verifies plain, aliased, and from imports.
func TestPythonParser_Imports(t *testing.T) {
	fp := parseSource(t, "deps.py", `import os
import numpy as np
from collections import OrderedDict
`)
	byPath := map[string]string{}
	for _, imp := range fp.Imports {
		byPath[imp.Path] = imp.Alias
	}
	assert.Contains(t, byPath, "os")
	assert.Equal(t, "np", byPath["numpy"])
	assert.Contains(t, byPath, "collections")
}

// TestPythonParser_Occurrences verifies call collection, including
// attribute calls resolving to their final name.
func TestPythonParser_Occurrences(t *testing.T) {
	fp := parseSource(t, "calls.py", `def run():
    prepare()
    client.send("x")
`)
	names := map[string]bool{}
	for _, occ := range fp.Occurrences {
		names[occ.Name] = true
	}
	assert.True(t, names["prepare"])
	assert.True(t, names["send"])
}
