// Package orchestrator executes build pipelines for classified webhook
// intents. Pipelines for the same repository run strictly one at a time;
// different repositories proceed independently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/arc-components/arcci/internal/buildlog"
	"github.com/arc-components/arcci/internal/bump"
	"github.com/arc-components/arcci/internal/catalog"
	"github.com/arc-components/arcci/internal/changelog"
	"github.com/arc-components/arcci/internal/classify"
	"github.com/arc-components/arcci/internal/docs"
	"github.com/arc-components/arcci/internal/logfields"
	"github.com/arc-components/arcci/internal/metrics"
	"github.com/arc-components/arcci/internal/script"
)

// Pipeline stage names, in execution order for stage builds.
const (
	StageSync      = "sync"
	StageBump      = "bump"
	StageDocs      = "docs"
	StageChangelog = "changelog"
	StageCatalog   = "catalog"
	StageFinish    = "finish"
)

// releaseSettleDelay gives the forge time to make freshly pushed refs
// visible before a release or structure script fetches them.
const releaseSettleDelay = 10 * time.Second

// Scripts holds resolved paths of the external scripts pipelines invoke.
type Scripts struct {
	TagRelease      string
	UpdateStructure string
	UpdateElement   string
	FinishStage     string
}

// Options configures an Orchestrator.
type Options struct {
	Scripts     Scripts
	BuildDir    string
	SettleDelay time.Duration
	TokenEnv    string

	Runner   *script.Runner
	Analyzer docs.Analyzer
	Catalog  *catalog.Store
	Log      *buildlog.Store
	Recorder metrics.Recorder
	Clock    clockwork.Clock
}

// Orchestrator turns intents into pipeline runs.
type Orchestrator struct {
	scripts     Scripts
	buildDir    string
	settleDelay time.Duration
	tokenEnv    string

	runner   *script.Runner
	analyzer docs.Analyzer
	catalog  *catalog.Store
	log      *buildlog.Store
	recorder metrics.Recorder
	clock    clockwork.Clock
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		scripts:     opts.Scripts,
		buildDir:    opts.BuildDir,
		settleDelay: opts.SettleDelay,
		tokenEnv:    opts.TokenEnv,
		runner:      opts.Runner,
		analyzer:    opts.Analyzer,
		catalog:     opts.Catalog,
		log:         opts.Log,
		recorder:    opts.Recorder,
		clock:       opts.Clock,
	}
	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	return o
}

// Execute runs the pipeline for one intent to completion. Ignore intents
// return immediately.
func (o *Orchestrator) Execute(ctx context.Context, intent classify.Intent) error {
	if intent.Ignored() {
		return nil
	}

	pipelineID := uuid.NewString()
	log := slog.With(
		logfields.PipelineID(pipelineID),
		logfields.Intent(string(intent.Kind)),
		logfields.Repository(intent.RepoName),
	)

	o.record(ctx, pipelineID, intent.RepoName, "", buildlog.EventStarted, string(intent.Kind))
	started := o.clock.Now()

	var err error
	switch intent.Kind {
	case classify.IntentReleaseTag:
		err = o.runRelease(ctx, log, o.scripts.TagRelease, "tag-release", intent.RepoName)
	case classify.IntentUpdateStructure:
		err = o.runRelease(ctx, log, o.scripts.UpdateStructure, "update-structure", intent.RepoName)
	case classify.IntentStageBuild:
		err = o.runStageBuild(ctx, log, pipelineID, intent)
	default:
		err = fmt.Errorf("unknown intent kind %q", intent.Kind)
	}

	o.recorder.ObservePipelineDuration(o.clock.Since(started))

	switch {
	case err == nil:
		o.record(ctx, pipelineID, intent.RepoName, "", buildlog.EventFinished, "")
		o.recorder.IncPipelineOutcome("success")
		log.Info("Pipeline finished")
	case isPrecondition(err):
		o.record(ctx, pipelineID, intent.RepoName, "", buildlog.EventPrecondition, err.Error())
		o.recorder.IncPipelineOutcome("precondition_failed")
		log.Warn("Pipeline skipped", logfields.Error(err))
	default:
		o.record(ctx, pipelineID, intent.RepoName, "", buildlog.EventFailed, err.Error())
		o.recorder.IncPipelineOutcome("failed")
		log.Error("Pipeline failed", logfields.Error(err))
	}
	return err
}

// runRelease executes the single-script pipelines triggered by pushes to
// the release branch or by structure tags.
func (o *Orchestrator) runRelease(ctx context.Context, log *slog.Logger, scriptPath, label, repo string) error {
	if err := o.checkToken(); err != nil {
		return err
	}
	if err := o.settle(ctx, releaseSettleDelay); err != nil {
		return err
	}

	log.Info("Running release script", logfields.Script(scriptPath))
	if _, err := o.runner.Run(ctx, scriptPath, []string{repo}, label); err != nil {
		return err
	}
	return nil
}

// runStageBuild executes the full component pipeline after a green CI run
// on the integration branch.
func (o *Orchestrator) runStageBuild(ctx context.Context, log *slog.Logger, pipelineID string, intent classify.Intent) error {
	if err := o.checkToken(); err != nil {
		return err
	}
	if err := o.settle(ctx, o.settleDelay); err != nil {
		return err
	}

	repo := intent.RepoName
	componentDir := filepath.Join(o.buildDir, repo)

	// sync: bring the component checkout up to date.
	err := o.stage(ctx, log, pipelineID, repo, StageSync, func() error {
		args := []string{repo, intent.BuildNumber, intent.JobNumber}
		_, err := o.runner.Run(ctx, o.scripts.UpdateElement, args, StageSync)
		return err
	})
	if err != nil {
		return err
	}

	// bump: advance the patch version in the component manifests.
	var version string
	err = o.stage(ctx, log, pipelineID, repo, StageBump, func() error {
		v, bumped, err := bump.Component(componentDir)
		if err != nil {
			return err
		}
		if v == "" {
			return fmt.Errorf("no manifest with a version field in %s", componentDir)
		}
		log.Info("Version bumped", logfields.Version(v), slog.Any("files", bumped))
		version = v
		return nil
	})
	if err != nil {
		return err
	}

	// docs: analyze the component and refresh its README.
	var analysis docs.Analysis
	err = o.stage(ctx, log, pipelineID, repo, StageDocs, func() error {
		a, err := o.analyzer.Analyze(ctx, componentDir, repo)
		if err != nil {
			return err
		}
		analysis = a
		return docs.UpdateReadme(filepath.Join(componentDir, "README.md"), repo, a.Docs)
	})
	if err != nil {
		return err
	}

	// changelog: regenerate from commit history.
	err = o.stage(ctx, log, pipelineID, repo, StageChangelog, func() error {
		return changelog.Write(componentDir, version)
	})
	if err != nil {
		return err
	}

	// catalog: publish the released version.
	err = o.stage(ctx, log, pipelineID, repo, StageCatalog, func() error {
		res, err := o.catalog.UpsertVersion(ctx, version, repo, analysis.Group, analysis.Docs)
		if err != nil {
			return err
		}
		log.Info("Catalog updated",
			logfields.Group(res.GroupSlug),
			logfields.Component(res.ComponentSlug),
			logfields.Version(version),
			slog.Bool("version_created", res.VersionCreated))
		return nil
	})
	if err != nil {
		return err
	}

	// finish: commit, tag and push the release.
	return o.stage(ctx, log, pipelineID, repo, StageFinish, func() error {
		_, err := o.runner.Run(ctx, o.scripts.FinishStage, []string{componentDir}, StageFinish)
		return err
	})
}

// stage runs one pipeline stage with timing, metrics and event logging.
// Failures are wrapped in a StageError so callers stop the pipeline.
func (o *Orchestrator) stage(ctx context.Context, log *slog.Logger, pipelineID, repo, name string, fn func() error) error {
	log.Info("Stage starting", logfields.Stage(name))
	started := o.clock.Now()

	err := fn()
	elapsed := o.clock.Since(started)
	o.recorder.ObserveStageDuration(name, elapsed)

	if err != nil {
		o.recorder.IncStageResult(name, metrics.ResultFailed)
		o.record(ctx, pipelineID, repo, name, buildlog.EventStageFailed, err.Error())
		return &StageError{Stage: name, Err: err}
	}

	o.recorder.IncStageResult(name, metrics.ResultSuccess)
	o.record(ctx, pipelineID, repo, name, buildlog.EventStageOK, "")
	log.Info("Stage finished", logfields.Stage(name), logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

// settle waits for pushed refs to become visible on the forge before any
// stage touches the repository.
func (o *Orchestrator) settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-o.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) checkToken() error {
	if o.tokenEnv == "" {
		return nil
	}
	if os.Getenv(o.tokenEnv) == "" {
		return &PreconditionError{Reason: o.tokenEnv + " is not set"}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, pipelineID, repo, stage, eventType, detail string) {
	if o.log == nil {
		return
	}
	if err := o.log.Append(ctx, pipelineID, repo, stage, eventType, detail); err != nil {
		slog.Warn("Failed to record pipeline event", logfields.Error(err))
	}
}

func isPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
