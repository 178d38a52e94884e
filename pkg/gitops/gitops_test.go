// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSlugFromRemote covers https, scp-like, and degenerate URLs.
func TestSlugFromRemote(t *testing.T) {
	cases := map[string]string{
		"https://github.com/golang/example":     "golang-example",
		"https://github.com/golang/example.git": "golang-example",
		"https://github.com/golang/example/":    "golang-example",
		"git@github.com:acme/api.git":           "acme-api",
		"ssh://git@github.com/acme/api":         "acme-api",
		"example":                               "example",
	}
	for url, want := range cases {
		assert.Equal(t, want, SlugFromRemote(url), "url %s", url)
	}
}

// TestGitChangesEmpty verifies the Empty predicate.
func TestGitChangesEmpty(t *testing.T) {
	assert.True(t, (&GitChanges{}).Empty())
	assert.False(t, (&GitChanges{Added: []string{"a.go"}}).Empty())
	assert.False(t, (&GitChanges{Renamed: []RenamedFile{{Old: "a.go", New: "b.go"}}}).Empty())
}
