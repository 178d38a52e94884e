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

package summarize

import (
	"fmt"
	"strings"

	"github.com/kraklabs/repograph/pkg/store"
)

const responseContract = `Respond in exactly this format:
<gist>one sentence, at most 120 characters, describing what this does</gist>
Then a markdown summary: purpose, behavior, notable interactions with its
dependencies. No preamble, no code fences around the whole answer.`

const definitionSystemPrompt = `You are a senior engineer documenting a codebase.
Summarize one code definition for an engineer who has never seen it.
Dependency summaries are provided; trust them instead of guessing.
` + responseContract

const cycleSystemPrompt = `You are a senior engineer documenting a codebase.
The definitions below form a dependency cycle and must be understood
together. Summarize the one definition marked TARGET, using the other cycle
members as context.
` + responseContract

const fileSystemPrompt = `You are a senior engineer documenting a codebase.
Summarize one source file from the summaries of its definitions and its
imports. Describe the file's role in the project, not each definition again.
` + responseContract

// depSummary pairs a dependency name with its gist for prompt assembly.
type depSummary struct {
	Name string
	Gist string
}

// definitionPrompt renders the user prompt for one definition.
func definitionPrompt(def *store.Definition, filePath string, deps []depSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Definition: %s (%s)\nFile: %s\nLines: %d-%d\n",
		def.Name, def.Kind, filePath, def.StartLine, def.EndLine)
	if def.Docstring != "" {
		fmt.Fprintf(&b, "\nDocumentation:\n%s\n", def.Docstring)
	}
	writeDeps(&b, deps)
	fmt.Fprintf(&b, "\nSource:\n```\n%s\n```\n", def.SourceCode)
	return b.String()
}

// cyclePrompt renders the user prompt for one member of a dependency cycle.
// The whole cycle's source is included so the model sees the loop.
func cyclePrompt(target *store.Definition, targetPath string, members []store.Definition, deps []depSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TARGET definition: %s (%s)\nFile: %s\n",
		target.Name, target.Kind, targetPath)
	writeDeps(&b, deps)

	b.WriteString("\nCycle members:\n")
	for i := range members {
		m := &members[i]
		marker := ""
		if m.ID == target.ID {
			marker = " [TARGET]"
		}
		fmt.Fprintf(&b, "\n--- %s (%s)%s ---\n```\n%s\n```\n", m.Name, m.Kind, marker, m.SourceCode)
	}
	return b.String()
}

// filePrompt renders the user prompt for one file. defGists holds the gist
// of every definition in the file; the caller guarantees completeness.
func filePrompt(file *store.File, defs []store.Definition, defGists map[int64]string, deps []depSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nLanguage: %s\n", file.Path, file.Language)
	writeDeps(&b, deps)

	if len(defs) > 0 {
		b.WriteString("\nDefinitions in this file:\n")
		for i := range defs {
			d := &defs[i]
			fmt.Fprintf(&b, "- %s (%s): %s\n", d.Name, d.Kind, defGists[d.ID])
		}
	}

	fmt.Fprintf(&b, "\nContent:\n```\n%s\n```\n", file.Content)
	return b.String()
}

func writeDeps(b *strings.Builder, deps []depSummary) {
	if len(deps) == 0 {
		return
	}
	b.WriteString("\nDependency summaries:\n")
	for _, d := range deps {
		fmt.Fprintf(b, "- %s: %s\n", d.Name, d.Gist)
	}
}
