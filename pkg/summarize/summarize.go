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

// Package summarize generates AI summaries for definitions and files in
// dependency order: every prompt may include the gists of what the target
// depends on, so dependencies are always summarized first. Cycles are
// summarized jointly, each member seeing the whole loop.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/levelpool"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
)

// Config bounds the summary executor.
type Config struct {
	MaxConcurrent int
	MinBatchSize  int
	RatePerSecond float64
	TaskTimeout   time.Duration
	// Retry overrides the default policy when MaxAttempts is set.
	Retry llm.RetryPolicy
}

// DefaultConfig matches the service defaults: 20 concurrent tasks, batches
// of 50, a budget of 15 requests per second, 10 minutes per task.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 20,
		MinBatchSize:  50,
		RatePerSecond: 15,
		TaskTimeout:   600 * time.Second,
	}
}

// Stats counts what a run produced.
type Stats struct {
	DefinitionSummaries atomic.Int64
	FileSummaries       atomic.Int64
	Requests            atomic.Int64
	PromptBytes         atomic.Int64
}

// Progress reports phase completion to the caller.
type Progress func(phase string, done, total int)

// Summarizer drives level-ordered summary generation.
type Summarizer struct {
	store  *store.Store
	chat   llm.ChatClient
	exec   *levelpool.Executor
	retry  llm.RetryPolicy
	logger *slog.Logger

	// Run caches hold gists produced this run so prompt assembly does not
	// re-read rows the run just wrote. Cleared on full runs only; an
	// incremental run may still reuse gists from the run before it.
	mu        sync.Mutex
	defGists  map[int64]string
	fileGists map[int64]string

	Stats Stats
}

// New creates a summarizer.
func New(st *store.Store, chat llm.ChatClient, cfg Config, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	retry := llm.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		retry = cfg.Retry
	}
	return &Summarizer{
		store: st,
		chat:  chat,
		exec: levelpool.New(levelpool.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MinBatchSize:  cfg.MinBatchSize,
			RatePerSecond: cfg.RatePerSecond,
			TaskTimeout:   cfg.TaskTimeout,
		}, logger),
		retry:     retry,
		logger:    logger,
		defGists:  make(map[int64]string),
		fileGists: make(map[int64]string),
	}
}

// ResetCaches drops the run caches. Full runs start from a clean slate.
func (s *Summarizer) ResetCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defGists = make(map[int64]string)
	s.fileGists = make(map[int64]string)
}

// RunFull summarizes every definition, then every file, level by level.
// Entities that already carry a persisted summary are skipped (their gists
// still prime the cache), so an interrupted full run resumes where it
// stopped.
func (s *Summarizer) RunFull(ctx context.Context, defGraph, fileGraph *graph.Graph, progress Progress) error {
	s.ResetCaches()

	paths, err := s.filePaths(ctx)
	if err != nil {
		return err
	}

	defLevels := graph.Levels(defGraph)
	if err := s.runDefinitionLevels(ctx, defLevels, defGraph, paths, false, progress, "summaries.definitions"); err != nil {
		return err
	}

	fileLevels := graph.Levels(fileGraph)
	return s.runFileLevels(ctx, fileLevels, fileGraph, false, progress, "summaries.files")
}

// RunIncremental regenerates only what an edit invalidated, in four
// phases: changed definitions, definitions that depend on them, changed
// files, then files that depend on those. Returns the definition and file
// ids whose summaries were regenerated, for embedding targeting.
func (s *Summarizer) RunIncremental(ctx context.Context, defGraph, fileGraph *graph.Graph, changedDefs, changedFiles []int64, progress Progress) ([]int64, []int64, error) {
	paths, err := s.filePaths(ctx)
	if err != nil {
		return nil, nil, err
	}

	changedDefSet := idSet(changedDefs)
	defAncestors := defGraph.AncestorClosure(changedDefs)
	ancestorDefSet := subtract(defAncestors, changedDefSet)

	defLevels := graph.Levels(defGraph)
	if err := s.runDefinitionLevels(ctx, graph.FilterLevels(defLevels, changedDefSet), defGraph, paths, true, progress, "summaries.definitions.changed"); err != nil {
		return nil, nil, err
	}
	if err := s.runDefinitionLevels(ctx, graph.FilterLevels(defLevels, ancestorDefSet), defGraph, paths, true, progress, "summaries.definitions.dependents"); err != nil {
		return nil, nil, err
	}

	changedFileSet := idSet(changedFiles)
	fileAncestors := fileGraph.AncestorClosure(changedFiles)
	ancestorFileSet := subtract(fileAncestors, changedFileSet)

	fileLevels := graph.Levels(fileGraph)
	if err := s.runFileLevels(ctx, graph.FilterLevels(fileLevels, changedFileSet), fileGraph, true, progress, "summaries.files.changed"); err != nil {
		return nil, nil, err
	}
	if err := s.runFileLevels(ctx, graph.FilterLevels(fileLevels, ancestorFileSet), fileGraph, true, progress, "summaries.files.dependents"); err != nil {
		return nil, nil, err
	}

	return graphMembers(defGraph, defAncestors), graphMembers(fileGraph, fileAncestors), nil
}

func (s *Summarizer) runDefinitionLevels(ctx context.Context, levels []graph.Level, defGraph *graph.Graph, paths map[int64]string, force bool, progress Progress, phase string) error {
	total := countGroups(levels)
	done := 0

	for _, level := range levels {
		_, err := s.exec.RunLevel(ctx, level, func(ctx context.Context, group graph.Group) (int, error) {
			n, err := s.summarizeDefinitionGroup(ctx, group, defGraph, paths, force)
			return n, err
		}, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
		done += len(level)
		if progress != nil {
			progress(phase, done, total)
		}
	}
	return nil
}

func (s *Summarizer) runFileLevels(ctx context.Context, levels []graph.Level, fileGraph *graph.Graph, force bool, progress Progress, phase string) error {
	total := countGroups(levels)
	done := 0

	for _, level := range levels {
		_, err := s.exec.RunLevel(ctx, level, func(ctx context.Context, group graph.Group) (int, error) {
			return s.summarizeFileGroup(ctx, group, fileGraph, force)
		}, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
		done += len(level)
		if progress != nil {
			progress(phase, done, total)
		}
	}
	return nil
}

// summarizeDefinitionGroup handles one group: a single definition, or a
// dependency cycle summarized jointly. Without force, members that already
// have a summary are skipped and their gist primes the cache.
func (s *Summarizer) summarizeDefinitionGroup(ctx context.Context, group graph.Group, defGraph *graph.Graph, paths map[int64]string, force bool) (int, error) {
	defs, err := s.store.DefinitionsByIDs(ctx, group)
	if err != nil {
		return 0, err
	}
	inGroup := idSet(group)

	calls := 0
	for i := range defs {
		def := &defs[i]

		if !force {
			s.mu.Lock()
			_, cached := s.defGists[def.ID]
			if !cached && def.AIShortSummary != nil && *def.AIShortSummary != "" {
				s.defGists[def.ID] = *def.AIShortSummary
				cached = true
			}
			s.mu.Unlock()
			if cached {
				continue
			}
		}

		deps, err := s.dependencyGists(ctx, defGraph.Successors(def.ID), inGroup, def.Name)
		if err != nil {
			return calls, err
		}

		var user, system string
		if len(defs) > 1 {
			system = cycleSystemPrompt
			user = cyclePrompt(def, paths[def.FileID], defs, deps)
		} else {
			system = definitionSystemPrompt
			user = definitionPrompt(def, paths[def.FileID], deps)
		}

		gist, body, err := s.generate(ctx, system, user, fmt.Sprintf("definition %s", def.Name))
		if err != nil {
			return calls, err
		}
		calls++

		if err := s.store.SetDefinitionSummary(ctx, def.ID, gist, body); err != nil {
			return calls, err
		}
		s.mu.Lock()
		s.defGists[def.ID] = gist
		s.mu.Unlock()
		s.Stats.DefinitionSummaries.Add(1)
	}
	return calls, nil
}

// summarizeFileGroup handles one file group. Files whose content is blank
// are skipped and never summarized.
func (s *Summarizer) summarizeFileGroup(ctx context.Context, group graph.Group, fileGraph *graph.Graph, force bool) (int, error) {
	calls := 0
	for _, fileID := range group {
		file, err := s.store.GetFile(ctx, fileID)
		if err != nil {
			return calls, err
		}
		if strings.TrimSpace(file.Content) == "" {
			s.logger.Debug("summaries.file.skip_empty", "path", file.Path)
			continue
		}
		if !force {
			s.mu.Lock()
			_, cached := s.fileGists[fileID]
			if !cached && file.AIShortSummary != nil && *file.AIShortSummary != "" {
				s.fileGists[fileID] = *file.AIShortSummary
				cached = true
			}
			s.mu.Unlock()
			if cached {
				continue
			}
		}

		defs, err := s.store.DefinitionsByFile(ctx, fileID)
		if err != nil {
			return calls, err
		}
		defGists, err := s.definitionGistsForFile(defs, file.Path)
		if err != nil {
			return calls, err
		}

		deps, err := s.fileDependencyGists(ctx, fileGraph.Successors(fileID), file.Path)
		if err != nil {
			return calls, err
		}

		gist, body, err := s.generate(ctx, fileSystemPrompt, filePrompt(file, defs, defGists, deps), fmt.Sprintf("file %s", file.Path))
		if err != nil {
			return calls, err
		}
		calls++

		if err := s.store.SetFileSummary(ctx, fileID, gist, body); err != nil {
			return calls, err
		}
		s.mu.Lock()
		s.fileGists[fileID] = gist
		s.mu.Unlock()
		s.Stats.FileSummaries.Add(1)
	}
	return calls, nil
}

// generate sends one exchange under the retry policy and parses the
// gist/body contract. A malformed response counts as a failure and burns a
// retry attempt.
func (s *Summarizer) generate(ctx context.Context, system, user, what string) (string, string, error) {
	s.Stats.PromptBytes.Add(int64(len(system) + len(user)))

	type parsed struct{ gist, body string }
	out, err := llm.Retry(ctx, s.logger, s.retry, what, func(ctx context.Context) (parsed, error) {
		s.Stats.Requests.Add(1)
		resp, err := s.chat.Chat(ctx, system, user)
		if err != nil {
			return parsed{}, err
		}
		gist, body, err := ParseGistResponse(resp)
		if err != nil {
			return parsed{}, fmt.Errorf("%s: %w", what, err)
		}
		return parsed{gist: gist, body: body}, nil
	})
	if err != nil {
		return "", "", err
	}
	return out.gist, out.body, nil
}

// dependencyGists collects the gists of a definition's dependencies. A
// dependency without a summary means level ordering was violated upstream,
// so it is an error naming the definition and what is missing.
func (s *Summarizer) dependencyGists(ctx context.Context, depIDs []int64, inGroup map[int64]struct{}, forName string) ([]depSummary, error) {
	var deps []depSummary
	var missing []string

	for _, depID := range depIDs {
		if _, ok := inGroup[depID]; ok {
			continue
		}

		dep, err := s.store.GetDefinition(ctx, depID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		gist, cached := s.defGists[depID]
		s.mu.Unlock()

		if !cached {
			if dep.AIShortSummary == nil || *dep.AIShortSummary == "" {
				missing = append(missing, dep.Name)
				continue
			}
			gist = *dep.AIShortSummary
		}
		deps = append(deps, depSummary{Name: dep.Name, Gist: gist})
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("summarize %s: missing dependency summaries: %s", forName, strings.Join(missing, ", "))
	}
	return deps, nil
}

// definitionGistsForFile resolves the gist of every definition inside a
// file, from the run cache or the persisted row. A file is summarized only
// after all of its definitions are, so a missing gist is an ordering
// violation, not something to paper over with a blank.
func (s *Summarizer) definitionGistsForFile(defs []store.Definition, forPath string) (map[int64]string, error) {
	gists := make(map[int64]string, len(defs))
	var missing []string

	for i := range defs {
		d := &defs[i]
		s.mu.Lock()
		gist, cached := s.defGists[d.ID]
		s.mu.Unlock()

		if !cached {
			if d.AIShortSummary == nil || *d.AIShortSummary == "" {
				missing = append(missing, d.Name)
				continue
			}
			gist = *d.AIShortSummary
		}
		gists[d.ID] = gist
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("summarize %s: missing definition summaries: %s", forPath, strings.Join(missing, ", "))
	}
	return gists, nil
}

func (s *Summarizer) fileDependencyGists(ctx context.Context, depIDs []int64, forPath string) ([]depSummary, error) {
	var deps []depSummary
	var missing []string

	for _, depID := range depIDs {
		s.mu.Lock()
		gist, cached := s.fileGists[depID]
		s.mu.Unlock()

		dep, err := s.store.GetFile(ctx, depID)
		if err != nil {
			return nil, err
		}
		if !cached {
			if dep.AIShortSummary == nil || *dep.AIShortSummary == "" {
				// Blank files never get summaries; they are not an
				// ordering violation.
				if strings.TrimSpace(dep.Content) == "" {
					continue
				}
				missing = append(missing, dep.Path)
				continue
			}
			gist = *dep.AIShortSummary
		}
		deps = append(deps, depSummary{Name: dep.Path, Gist: gist})
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("summarize %s: missing file summaries: %s", forPath, strings.Join(missing, ", "))
	}
	return deps, nil
}

func (s *Summarizer) filePaths(ctx context.Context) (map[int64]string, error) {
	files, err := s.store.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make(map[int64]string, len(files))
	for _, f := range files {
		out[f.ID] = f.Path
	}
	return out, nil
}

func countGroups(levels []graph.Level) int {
	n := 0
	for _, level := range levels {
		n += len(level)
	}
	return n
}

func idSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func subtract(a, b map[int64]struct{}) map[int64]struct{} {
	out := make(map[int64]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// graphMembers returns the set members present in the graph, sorted by the
// map iteration into a slice (order does not matter to the embedder).
func graphMembers(g *graph.Graph, set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		if g.HasNode(id) {
			out = append(out, id)
		}
	}
	return out
}
