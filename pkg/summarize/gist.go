// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package summarize

import (
	"fmt"
	"strings"
)

const (
	gistOpen  = "<gist>"
	gistClose = "</gist>"
)

// ParseGistResponse splits a model response into the one-line gist and the
// markdown body. Both delimiters are required; a malformed response is an
// error so the retry policy can ask again.
func ParseGistResponse(response string) (gist, body string, err error) {
	start := strings.Index(response, gistOpen)
	if start < 0 {
		return "", "", fmt.Errorf("response missing %s delimiter", gistOpen)
	}
	rest := response[start+len(gistOpen):]

	end := strings.Index(rest, gistClose)
	if end < 0 {
		return "", "", fmt.Errorf("response missing %s delimiter", gistClose)
	}

	gist = strings.TrimSpace(rest[:end])
	body = strings.TrimSpace(rest[end+len(gistClose):])
	if gist == "" {
		return "", "", fmt.Errorf("response has empty gist")
	}
	return gist, body, nil
}
