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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// SourceHash computes the normalized content hash for a definition body.
// The normalization makes the hash stable across edits that do not change
// behavior: comment changes, whitespace shifts, line ending conversion, and
// a rename of the definition itself.
//
// Steps, in order: strip comments, remove tokens equal to name, trim each
// line, drop blank lines, then SHA-256 over the result.
func SourceHash(source, name, language string) string {
	norm := stripComments(source, language)
	if name != "" {
		norm = removeNameTokens(norm, name)
	}

	norm = strings.ReplaceAll(norm, "\r\n", "\n")
	lines := strings.Split(norm, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(kept, "\n")))
	return hex.EncodeToString(sum[:])
}

// removeNameTokens deletes whole-token occurrences of name. Substrings of
// longer identifiers survive, so renaming Foo leaves FooBar's hash alone.
func removeNameTokens(source, name string) string {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return source
	}
	return re.ReplaceAllString(source, "")
}

// stripComments removes comments without disturbing string literals.
func stripComments(source, language string) string {
	switch language {
	case LangPython:
		return stripHashComments(source)
	default:
		return stripSlashComments(source)
	}
}

// stripSlashComments removes // and /* */ comments from C-family source.
// Double-quoted, single-quoted, and backtick strings are passed through
// untouched, escapes included.
func stripSlashComments(source string) string {
	var out strings.Builder
	out.Grow(len(source))

	i := 0
	for i < len(source) {
		c := source[i]

		switch c {
		case '"', '\'':
			j := scanQuoted(source, i, c)
			out.WriteString(source[i:j])
			i = j
		case '`':
			j := i + 1
			for j < len(source) && source[j] != '`' {
				j++
			}
			if j < len(source) {
				j++
			}
			out.WriteString(source[i:j])
			i = j
		case '/':
			if i+1 < len(source) && source[i+1] == '/' {
				for i < len(source) && source[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < len(source) && source[i+1] == '*' {
				j := i + 2
				for j+1 < len(source) && !(source[j] == '*' && source[j+1] == '/') {
					// Keep newlines so line structure survives for trimming.
					if source[j] == '\n' {
						out.WriteByte('\n')
					}
					j++
				}
				if j+1 < len(source) {
					j += 2
				} else {
					j = len(source)
				}
				i = j
				continue
			}
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// stripHashComments removes # comments from Python source. Quoted strings,
// triple-quoted included, pass through untouched.
func stripHashComments(source string) string {
	var out strings.Builder
	out.Grow(len(source))

	i := 0
	for i < len(source) {
		c := source[i]

		switch c {
		case '"', '\'':
			if i+2 < len(source) && source[i+1] == c && source[i+2] == c {
				// Triple-quoted string.
				delim := source[i : i+3]
				j := strings.Index(source[i+3:], delim)
				if j < 0 {
					out.WriteString(source[i:])
					i = len(source)
					continue
				}
				end := i + 3 + j + 3
				out.WriteString(source[i:end])
				i = end
				continue
			}
			j := scanQuoted(source, i, c)
			out.WriteString(source[i:j])
			i = j
		case '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// scanQuoted returns the index just past a quoted literal starting at i.
func scanQuoted(source string, i int, quote byte) int {
	j := i + 1
	for j < len(source) {
		if source[j] == '\\' {
			j += 2
			continue
		}
		if source[j] == quote || source[j] == '\n' {
			return j + 1
		}
		j++
	}
	return len(source)
}
