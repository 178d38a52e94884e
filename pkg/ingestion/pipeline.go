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

// Package ingestion turns a git remote into a fully summarized, embedded,
// and searchable repository store. The pipeline runs five phases: clone,
// parse, summaries, embeddings, finalize. A repository that was ingested
// before goes through the incremental path driven by the git diff.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/gitops"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
	"github.com/kraklabs/repograph/pkg/summarize"
)

// Pipeline phases, in execution order.
const (
	PhaseClone      = "cloning_repo"
	PhaseParse      = "parse"
	PhaseSummaries  = "summaries"
	PhaseEmbeddings = "embeddings"
	PhaseFinalize   = "finalize"
)

// Ingestion modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
	ModeNoop        = "noop"
)

// ProgressCallback reports phase progress. total may be zero while a
// phase's size is still unknown.
type ProgressCallback func(phase string, current, total int)

// PipelineConfig configures one pipeline instance.
type PipelineConfig struct {
	// WorkspaceDir holds one <slug>.db per repository plus a clones/
	// directory with the working trees.
	WorkspaceDir string
	// ForceFull reparses and resummarizes everything even when a prior
	// commit exists.
	ForceFull bool
	// Summaries and Embeddings bound the model-facing executors.
	Summaries  summarize.Config
	Embeddings embed.Config
}

// Request identifies one repository to ingest.
type Request struct {
	RemoteURL string
	Slug      string
	// Branch overrides the remote default branch when set.
	Branch string
}

// Result summarizes one pipeline run.
type Result struct {
	Slug           string
	Mode           string
	CommitHash     string
	PreviousCommit string

	FilesParsed        int
	FilesDeleted       int
	DefinitionsAdded   int
	DefinitionsRemoved int
	ReferencesCreated  int
	PackagesDetected   int

	Summaries  int64
	Embeddings int64

	TotalFiles       int
	TotalDefinitions int
	TotalEmbeddings  int

	Duration time.Duration
}

// Pipeline orchestrates ingestion for one workspace.
type Pipeline struct {
	cfg        PipelineConfig
	logger     *slog.Logger
	git        *gitops.Client
	parser     *Parser
	chat       llm.ChatClient
	embeddings llm.EmbeddingsClient
	onProgress ProgressCallback
}

// NewPipeline creates a pipeline. chat and embeddings may be nil, which
// skips the corresponding phases; parse and graph state still update.
func NewPipeline(cfg PipelineConfig, chat llm.ChatClient, embeddings llm.EmbeddingsClient, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		git:        gitops.NewClient(logger),
		parser:     NewParser(logger),
		chat:       chat,
		embeddings: embeddings,
	}
}

// SetProgressCallback registers an observer for phase progress.
func (p *Pipeline) SetProgressCallback(cb ProgressCallback) { p.onProgress = cb }

func (p *Pipeline) progress(phase string, current, total int) {
	if p.onProgress != nil {
		p.onProgress(phase, current, total)
	}
}

// StorePath returns the database path for a slug.
func (p *Pipeline) StorePath(slug string) string {
	return filepath.Join(p.cfg.WorkspaceDir, slug+".db")
}

// ClonePath returns the working-tree path for a slug.
func (p *Pipeline) ClonePath(slug string) string {
	return filepath.Join(p.cfg.WorkspaceDir, "clones", slug)
}

// Run executes the full pipeline for one repository.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	result := &Result{Slug: req.Slug}

	// Clone.
	p.progress(PhaseClone, 0, 0)
	cloneStart := time.Now()
	info, err := p.git.EnsureClone(ctx, p.ClonePath(req.Slug), req.RemoteURL, req.Branch)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", req.Slug, err)
	}
	metricPhaseSeconds.WithLabelValues(PhaseClone).Observe(time.Since(cloneStart).Seconds())
	result.CommitHash = info.CommitHash

	st, err := store.Open(p.StorePath(req.Slug), p.logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	repo, err := st.UpsertRepository(ctx, req.RemoteURL, req.Slug, info.DefaultBranch)
	if err != nil {
		return nil, err
	}
	result.PreviousCommit = repo.CommitHash

	if repo.CommitHash == info.CommitHash && !p.cfg.ForceFull {
		result.Mode = ModeNoop
		result.Duration = time.Since(started)
		p.logger.Info("ingest.run.noop", "slug", req.Slug, "commit", info.CommitHash)
		return result, nil
	}

	full := p.cfg.ForceFull || repo.CommitHash == ""
	if full {
		result.Mode = ModeFull
	} else {
		result.Mode = ModeIncremental
	}

	// Parse.
	parseStart := time.Now()
	delta, parses, err := p.parse(ctx, st, repo, info, full)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.Slug, err)
	}
	result.FilesParsed = len(parses)
	result.FilesDeleted = len(delta.FilesDeleted)
	result.DefinitionsAdded = len(delta.DefinitionsAdded())
	result.DefinitionsRemoved = len(delta.DefinitionsRemoved())

	resolver := NewResolver(st, p.logger)
	stats, err := resolver.Resolve(ctx, parses)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", req.Slug, err)
	}
	result.ReferencesCreated = stats.Created

	packages, err := DetectPackages(ctx, st, repo.ID, p.ClonePath(req.Slug), p.logger)
	if err != nil {
		return nil, fmt.Errorf("detect packages %s: %w", req.Slug, err)
	}
	result.PackagesDetected = packages

	builder := graph.NewBuilder(st, p.logger)
	defGraph, err := builder.DefinitionGraph(ctx)
	if err != nil {
		return nil, err
	}
	fileGraph, err := builder.FileGraph(ctx, defGraph)
	if err != nil {
		return nil, err
	}
	if err := builder.Materialize(ctx, defGraph, fileGraph); err != nil {
		return nil, err
	}

	metricPhaseSeconds.WithLabelValues(PhaseParse).Observe(time.Since(parseStart).Seconds())
	metricFilesParsed.Add(float64(result.FilesParsed))
	metricDefinitionsAdded.Add(float64(result.DefinitionsAdded))
	metricDefinitionsRemoved.Add(float64(result.DefinitionsRemoved))
	metricReferencesCreated.Add(float64(result.ReferencesCreated))

	// Summaries and embeddings, unless the run was pure bookkeeping.
	scope, err := p.summaries(ctx, st, defGraph, fileGraph, delta, full, result)
	if err != nil {
		return nil, fmt.Errorf("summaries %s: %w", req.Slug, err)
	}
	if err := p.embed(ctx, st, scope, full, result); err != nil {
		return nil, fmt.Errorf("embeddings %s: %w", req.Slug, err)
	}

	// Finalize. The commit hash is written only now: a run that died in
	// summaries or embeddings keeps the old hash, so the next run at the
	// same commit reprocesses instead of short-circuiting as a noop.
	p.progress(PhaseFinalize, 0, 0)
	if err := st.SetCommitHash(ctx, repo.ID, info.CommitHash); err != nil {
		return nil, err
	}
	if result.TotalFiles, err = st.CountFiles(ctx); err != nil {
		return nil, err
	}
	if result.TotalDefinitions, err = st.CountDefinitions(ctx); err != nil {
		return nil, err
	}
	if result.TotalEmbeddings, err = st.CountEmbeddings(ctx); err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	p.logger.Info("ingest.run.complete",
		"slug", req.Slug,
		"mode", result.Mode,
		"commit", result.CommitHash,
		"files", result.TotalFiles,
		"definitions", result.TotalDefinitions,
		"embeddings", result.TotalEmbeddings,
		"duration", result.Duration,
	)
	return result, nil
}

// parse syncs the working tree into the store and returns the delta plus
// the parses of every current file (the resolver needs whole-repository
// occurrences regardless of mode).
func (p *Pipeline) parse(ctx context.Context, st *store.Store, repo *store.Repository, info *gitops.RepoInfo, full bool) (*ParseDelta, []*FileParse, error) {
	clonePath := p.ClonePath(repo.Slug)
	syncer := NewSyncer(st, p.parser, p.logger)
	delta := &ParseDelta{PerFile: make(map[string]FileDefDelta)}

	if full {
		parses, err := p.parseFull(ctx, st, syncer, clonePath, delta)
		return delta, parses, err
	}

	changes, err := p.git.CompareCommits(ctx, clonePath, repo.CommitHash, info.CommitHash, SupportedPath)
	if err != nil {
		return nil, nil, err
	}
	parses, err := p.parseIncremental(ctx, st, syncer, clonePath, changes, delta)
	return delta, parses, err
}

func (p *Pipeline) parseFull(ctx context.Context, st *store.Store, syncer *Syncer, clonePath string, delta *ParseDelta) ([]*FileParse, error) {
	known, err := st.ListFilePaths(ctx)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, path := range known {
		knownSet[path] = true
	}

	var paths []string
	err = filepath.WalkDir(clonePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != clonePath && excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(clonePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if SupportedPath(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk clone: %w", err)
	}

	onDisk := make(map[string]bool, len(paths))
	var parses []*FileParse
	for i, rel := range paths {
		onDisk[rel] = true

		content, err := os.ReadFile(filepath.Join(clonePath, rel)) //nolint:gosec // path from the walk
		if err != nil {
			p.logger.Warn("ingest.parse.file_skipped", "path", rel, "err", err)
			continue
		}
		fp, fd, err := syncer.SyncFile(ctx, rel, content)
		if err != nil {
			// One broken file must not sink the run; context loss must.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("ingest.parse.file_skipped", "path", rel, "err", err)
			continue
		}
		parses = append(parses, fp)
		delta.PerFile[rel] = fd
		if knownSet[rel] {
			delta.FilesModified = append(delta.FilesModified, rel)
		} else {
			delta.FilesAdded = append(delta.FilesAdded, rel)
		}
		p.progress(PhaseParse, i+1, len(paths))
	}

	// Stored files no longer on disk are stale.
	for _, path := range known {
		if onDisk[path] {
			continue
		}
		if err := st.DeleteFileByPath(ctx, path); err != nil {
			return nil, err
		}
		delta.FilesDeleted = append(delta.FilesDeleted, path)
	}
	return parses, nil
}

func (p *Pipeline) parseIncremental(ctx context.Context, st *store.Store, syncer *Syncer, clonePath string, changes *gitops.GitChanges, delta *ParseDelta) ([]*FileParse, error) {
	// Deletes and renames first so path state is settled before syncing.
	for _, path := range changes.Deleted {
		if err := st.DeleteFileByPath(ctx, path); err != nil {
			return nil, err
		}
		delta.FilesDeleted = append(delta.FilesDeleted, path)
	}
	for _, r := range changes.Renamed {
		if err := st.RenameFile(ctx, r.Old, r.New); err != nil {
			return nil, err
		}
		delta.FilesRenamed = append(delta.FilesRenamed, r)
	}

	changed := make(map[string]bool)
	sync := func(rel string, bucket *[]string) error {
		content, err := os.ReadFile(filepath.Join(clonePath, rel)) //nolint:gosec // path from git diff
		if err != nil {
			p.logger.Warn("ingest.parse.file_skipped", "path", rel, "err", err)
			return nil
		}
		_, fd, err := syncer.SyncFile(ctx, rel, content)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("ingest.parse.file_skipped", "path", rel, "err", err)
			return nil
		}
		delta.PerFile[rel] = fd
		changed[rel] = true
		if bucket != nil {
			*bucket = append(*bucket, rel)
		}
		return nil
	}

	for _, rel := range changes.Added {
		if err := sync(rel, &delta.FilesAdded); err != nil {
			return nil, err
		}
	}
	for _, rel := range changes.Modified {
		if err := sync(rel, &delta.FilesModified); err != nil {
			return nil, err
		}
	}
	for _, r := range changes.Renamed {
		// Renames may carry edits too; the hash diff sorts that out.
		if err := sync(r.New, nil); err != nil {
			return nil, err
		}
	}

	// Re-parse everything for the resolver: references from unchanged
	// files may target definitions this run recreated.
	known, err := st.ListFilePaths(ctx)
	if err != nil {
		return nil, err
	}
	var parses []*FileParse
	for i, rel := range known {
		content, err := os.ReadFile(filepath.Join(clonePath, rel)) //nolint:gosec // stored path
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		fp, err := p.parser.Parse(ctx, rel, content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("ingest.parse.file_skipped", "path", rel, "err", err)
			continue
		}
		parses = append(parses, fp)
		p.progress(PhaseParse, i+1, len(known))
	}
	return parses, nil
}

// summaries runs the summarizer and returns the embedding scope for the
// run. On full runs the scope is everything.
func (p *Pipeline) summaries(ctx context.Context, st *store.Store, defGraph, fileGraph *graph.Graph, delta *ParseDelta, full bool, result *Result) (embed.Scope, error) {
	if p.chat == nil {
		p.logger.Info("ingest.summaries.skipped", "reason", "no chat client")
		return embed.Scope{FileIDs: []int64{}, DefinitionIDs: []int64{}}, nil
	}

	start := time.Now()
	s := summarize.New(st, p.chat, p.cfg.Summaries, p.logger)
	progress := func(phase string, done, total int) { p.progress(PhaseSummaries, done, total) }

	var scope embed.Scope
	if full {
		if err := s.RunFull(ctx, defGraph, fileGraph, progress); err != nil {
			return scope, err
		}
		scope = embed.All()
	} else {
		changedDefs := delta.DefinitionsAdded()
		changedFiles, err := st.FileIDsByPaths(ctx, delta.DefinitionChangedPaths())
		if err != nil {
			return scope, err
		}
		// A run that failed in summaries kept the old commit hash, so this
		// run's delta may not cover its leftovers. Seed everything still
		// missing a summary so the store converges.
		missingDefs, err := st.DefinitionIDsMissingSummary(ctx)
		if err != nil {
			return scope, err
		}
		missingFiles, err := st.FileIDsMissingSummary(ctx)
		if err != nil {
			return scope, err
		}
		changedDefs = union(changedDefs, missingDefs)
		changedFiles = union(changedFiles, missingFiles)
		regenDefs, regenFiles, err := s.RunIncremental(ctx, defGraph, fileGraph, changedDefs, changedFiles, progress)
		if err != nil {
			return scope, err
		}
		// Embedding is idempotent, so the scope covers every touched path
		// even when its summaries did not change.
		touchedFiles, err := st.FileIDsByPaths(ctx, delta.ChangedPaths())
		if err != nil {
			return scope, err
		}
		scope = embed.Scope{
			DefinitionIDs: union(changedDefs, regenDefs),
			FileIDs:       union(touchedFiles, regenFiles),
		}
	}

	result.Summaries = s.Stats.DefinitionSummaries.Load() + s.Stats.FileSummaries.Load()
	metricSummaryRequests.Add(float64(s.Stats.Requests.Load()))
	metricPhaseSeconds.WithLabelValues(PhaseSummaries).Observe(time.Since(start).Seconds())
	return scope, nil
}

func (p *Pipeline) embed(ctx context.Context, st *store.Store, scope embed.Scope, full bool, result *Result) error {
	if p.embeddings == nil {
		p.logger.Info("ingest.embeddings.skipped", "reason", "no embeddings client")
		return nil
	}
	if p.chat == nil && !full {
		// Nothing was summarized, so nothing new to embed.
		return nil
	}

	start := time.Now()
	e := embed.New(st, p.embeddings, p.cfg.Embeddings, p.logger)
	err := e.Run(ctx, scope, func(done, total int) { p.progress(PhaseEmbeddings, done, total) })
	if err != nil {
		return err
	}

	result.Embeddings = e.Stats.Embedded.Load()
	metricEmbeddingsStored.Add(float64(result.Embeddings))
	metricPhaseSeconds.WithLabelValues(PhaseEmbeddings).Observe(time.Since(start).Seconds())
	return nil
}

func union(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, id := range append(append([]int64{}, a...), b...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
