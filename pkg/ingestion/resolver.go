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
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kraklabs/repograph/pkg/store"
)

// Resolver turns name occurrences into symbol_references rows. A reference
// is recorded when a use-site inside definition D names a definition in
// another file, or one in the same file outside D's span. Names that match
// nothing in the repository, or too many things, are recorded with a null
// target so unresolved use-sites stay inspectable.
type Resolver struct {
	store  *store.Store
	logger *slog.Logger
}

// NewResolver creates a resolver over one repository store.
func NewResolver(st *store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, logger: logger}
}

// ResolveStats summarizes one resolution pass.
type ResolveStats struct {
	Created   int
	Ambiguous int
	External  int
}

// indexedDef is a definition plus its file path for cross-file checks.
type indexedDef struct {
	def  store.Definition
	path string
}

// Resolve processes the occurrences of the given parses against the whole
// stored definition set. Duplicate source/target pairs collapse through
// the table's conflict clause.
func (r *Resolver) Resolve(ctx context.Context, parses []*FileParse) (*ResolveStats, error) {
	stats := &ResolveStats{}

	files, err := r.store.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	pathByID := make(map[int64]string, len(files))
	idByPath := make(map[string]int64, len(files))
	for _, f := range files {
		pathByID[f.ID] = f.Path
		idByPath[f.Path] = f.ID
	}

	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	// name -> every definition carrying it, and fileID -> defs by position
	// for enclosing-span lookup.
	byName := make(map[string][]indexedDef)
	byFile := make(map[int64][]store.Definition)
	for _, d := range defs {
		byName[d.Name] = append(byName[d.Name], indexedDef{def: d, path: pathByID[d.FileID]})
		byFile[d.FileID] = append(byFile[d.FileID], d)
	}
	for id := range byFile {
		list := byFile[id]
		sort.Slice(list, func(i, j int) bool { return list[i].StartLine < list[j].StartLine })
		byFile[id] = list
	}

	type unresolvedKey struct {
		sourceID int64
		name     string
	}
	unresolvedSeen := make(map[unresolvedKey]bool)

	var refs []store.Reference
	for _, fp := range parses {
		fileID, ok := idByPath[fp.Path]
		if !ok {
			continue
		}
		fileDefs := byFile[fileID]

		for _, occ := range fp.Occurrences {
			source := enclosingDefinition(fileDefs, occ.Line)
			if source == nil {
				continue
			}

			candidates := byName[occ.Name]
			target, verdict := pickTarget(candidates, source, fp.Path)
			switch verdict {
			case verdictExternal, verdictAmbiguous:
				if verdict == verdictExternal {
					stats.External++
				} else {
					stats.Ambiguous++
				}
				// A null target marks the use-site as unresolved. One row
				// per (source, name) is enough.
				k := unresolvedKey{sourceID: source.ID, name: occ.Name}
				if !unresolvedSeen[k] {
					unresolvedSeen[k] = true
					refs = append(refs, store.Reference{
						SourceID: source.ID,
						Name:     occ.Name,
						Type:     store.RefUnknown,
					})
				}
				continue
			case verdictSelf:
				continue
			}

			refType := store.RefImported
			if target.def.FileID == source.FileID {
				refType = store.RefLocal
			}
			targetID := target.def.ID
			refs = append(refs, store.Reference{
				SourceID: source.ID,
				TargetID: &targetID,
				Name:     occ.Name,
				Type:     refType,
			})
		}
	}

	err = r.store.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range refs {
			if err := r.store.InsertReference(ctx, tx, &refs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert references: %w", err)
	}

	stats.Created = len(refs)
	r.logger.Info("ingest.resolve.complete",
		"references", stats.Created,
		"ambiguous", stats.Ambiguous,
		"external", stats.External,
	)
	return stats, nil
}

type targetVerdict int

const (
	verdictResolved targetVerdict = iota
	verdictExternal
	verdictAmbiguous
	verdictSelf
)

// pickTarget selects the definition an occurrence refers to. A same-file
// candidate outside the source span wins over cross-file ones; otherwise a
// unique cross-file candidate resolves. Several cross-file candidates
// cannot be told apart by name alone.
func pickTarget(candidates []indexedDef, source *store.Definition, sourcePath string) (*indexedDef, targetVerdict) {
	if len(candidates) == 0 {
		return nil, verdictExternal
	}

	var sameFile, crossFile []*indexedDef
	onlySelf := true
	for i := range candidates {
		c := &candidates[i]
		if c.def.ID == source.ID {
			continue
		}
		onlySelf = false
		if c.path == sourcePath {
			// A nested definition inside the source span is part of the
			// source itself, not a dependency.
			if c.def.StartLine >= source.StartLine && c.def.EndLine <= source.EndLine {
				continue
			}
			sameFile = append(sameFile, c)
		} else {
			crossFile = append(crossFile, c)
		}
	}

	switch {
	case len(sameFile) == 1:
		return sameFile[0], verdictResolved
	case len(sameFile) > 1:
		return nil, verdictAmbiguous
	case len(crossFile) == 1:
		return crossFile[0], verdictResolved
	case len(crossFile) > 1:
		return nil, verdictAmbiguous
	case onlySelf:
		return nil, verdictSelf
	default:
		return nil, verdictSelf
	}
}

// enclosingDefinition returns the tightest definition whose span contains
// line, or nil when the line sits at module level.
func enclosingDefinition(defs []store.Definition, line int) *store.Definition {
	var best *store.Definition
	for i := range defs {
		d := &defs[i]
		if d.StartLine > line {
			break
		}
		if line > d.EndLine {
			continue
		}
		if best == nil || (d.EndLine-d.StartLine) < (best.EndLine-best.StartLine) {
			best = d
		}
	}
	return best
}
