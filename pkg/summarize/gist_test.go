// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseGistResponse verifies the well-formed case.
func TestParseGistResponse(t *testing.T) {
	gist, body, err := ParseGistResponse("<gist>Parses config files.</gist>\nLonger explanation\nacross lines.")
	require.NoError(t, err)
	assert.Equal(t, "Parses config files.", gist)
	assert.Contains(t, body, "Longer explanation")
}

// TestParseGistResponse_Malformed verifies every malformed shape errors so
// the retry loop re-asks the model.
func TestParseGistResponse_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing both tags": "just prose with no tags",
		"missing close":     "<gist>half open",
		"missing open":      "half closed</gist> body",
		"empty gist":        "<gist>   </gist>\nbody",
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseGistResponse(response)
			assert.Error(t, err)
		})
	}
}
