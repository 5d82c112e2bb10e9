package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arc-components/arcci/internal/buildlog"
	"github.com/arc-components/arcci/internal/catalog"
	"github.com/arc-components/arcci/internal/classify"
	"github.com/arc-components/arcci/internal/docs"
	"github.com/arc-components/arcci/internal/script"
)

const testTokenEnv = "ARCCI_TEST_GITHUB_TOKEN"

type fakeAnalyzer struct {
	group string
	docs  string
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, componentDir, componentName string) (docs.Analysis, error) {
	if f.err != nil {
		return docs.Analysis{}, f.err
	}
	group := f.group
	if group == "" {
		group = docs.DefaultGroup
	}
	return docs.Analysis{Docs: f.docs, Group: group}, nil
}

// fixture is a build directory with one component checkout that the full
// stage pipeline can run against.
type fixture struct {
	buildDir     string
	scriptsDir   string
	repo         string
	componentDir string
}

func newFixture(t *testing.T, repo string) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not portable to windows")
	}

	f := &fixture{
		buildDir:   t.TempDir(),
		scriptsDir: t.TempDir(),
		repo:       repo,
	}
	f.componentDir = filepath.Join(f.buildDir, repo)
	require.NoError(t, os.MkdirAll(f.componentDir, 0o755))

	require.NoError(t, os.WriteFile(
		filepath.Join(f.componentDir, "package.json"),
		[]byte(`{"name":"`+repo+`","version":"1.0.0"}`+"\n"), 0o644))

	gitRepo, err := git.PlainInit(f.componentDir, false)
	require.NoError(t, err)
	wt, err := gitRepo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("package.json")
	require.NoError(t, err)
	_, err = wt.Commit("feat: initial component", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	t.Setenv(testTokenEnv, "token-value")
	return f
}

func (f *fixture) script(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.scriptsDir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func (f *fixture) orchestrator(t *testing.T, mutate func(*Options)) (*Orchestrator, *catalog.MemoryStore, *buildlog.Store) {
	t.Helper()

	log, err := buildlog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	mem := catalog.NewMemoryStore()

	opts := Options{
		Scripts: Scripts{
			TagRelease:      f.script(t, "tag-build", "exit 0\n"),
			UpdateStructure: f.script(t, "update-structure", "exit 0\n"),
			UpdateElement:   f.script(t, "update-git-element.sh", `echo "$1 $2 $3" > sync-args.txt`+"\n"),
			FinishStage:     f.script(t, "finish-stage.sh", `echo "$1" > finish-args.txt`+"\n"),
		},
		BuildDir:    f.buildDir,
		SettleDelay: 0,
		TokenEnv:    testTokenEnv,
		Runner:      script.NewRunner(f.buildDir, 0),
		Analyzer:    &fakeAnalyzer{docs: `{"props":["label"]}`},
		Catalog:     catalog.NewStore(mem),
		Log:         log,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts), mem, log
}

func stageIntent(repo string) classify.Intent {
	return classify.Intent{
		Kind:        classify.IntentStageBuild,
		RepoName:    repo,
		BuildNumber: "412",
		JobNumber:   "412.1",
	}
}

func TestStageBuildHappyPath(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, mem, log := f.orchestrator(t, nil)

	require.NoError(t, orch.Execute(context.Background(), stageIntent("api-button")))

	// sync: script received the repo name and build identifiers.
	syncArgs, err := os.ReadFile(filepath.Join(f.buildDir, "sync-args.txt"))
	require.NoError(t, err)
	require.Equal(t, "api-button 412 412.1", strings.TrimSpace(string(syncArgs)))

	// bump: manifest advanced one patch level.
	manifest, err := os.ReadFile(filepath.Join(f.componentDir, "package.json"))
	require.NoError(t, err)
	require.Contains(t, string(manifest), `"version": "1.0.1"`)

	// docs: README carries the analysis payload.
	readme, err := os.ReadFile(filepath.Join(f.componentDir, "README.md"))
	require.NoError(t, err)
	require.Contains(t, string(readme), `{"props":["label"]}`)

	// changelog: regenerated for the released version.
	cl, err := os.ReadFile(filepath.Join(f.componentDir, "CHANGELOG.md"))
	require.NoError(t, err)
	require.Contains(t, string(cl), "## 1.0.1")
	require.Contains(t, string(cl), "initial component")

	// catalog: version recorded under the default group.
	require.NotZero(t, mem.Len())
	entry, err := mem.Get(context.Background(), "component.api-elements.api-button")
	require.NoError(t, err)
	require.Contains(t, string(entry.Value), `"1.0.1"`)

	// finish: script received the component checkout path.
	args, err := os.ReadFile(filepath.Join(f.buildDir, "finish-args.txt"))
	require.NoError(t, err)
	require.Equal(t, f.componentDir, strings.TrimSpace(string(args)))

	// build log: a started and a finished event for one pipeline.
	events, err := log.ByRepo(context.Background(), "api-button", 50)
	require.NoError(t, err)
	require.Equal(t, buildlog.EventFinished, events[0].EventType)
	require.Equal(t, buildlog.EventStarted, events[len(events)-1].EventType)
}

func TestStageBuildFailureStopsPipeline(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, log := f.orchestrator(t, func(o *Options) {
		o.Scripts.UpdateElement = f.script(t, "update-git-element.sh", "exit 1\n")
	})

	err := orch.Execute(context.Background(), stageIntent("api-button"))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageSync, stageErr.Stage)

	// The bump stage never ran.
	manifest, err := os.ReadFile(filepath.Join(f.componentDir, "package.json"))
	require.NoError(t, err)
	require.Contains(t, string(manifest), `"version":"1.0.0"`)

	events, err := log.ByRepo(context.Background(), "api-button", 50)
	require.NoError(t, err)
	require.Equal(t, buildlog.EventFailed, events[0].EventType)
}

func TestStageBuildDocsFailureSkipsCatalog(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, mem, _ := f.orchestrator(t, func(o *Options) {
		o.Analyzer = &fakeAnalyzer{err: errors.New("analysis engine unavailable")}
	})

	err := orch.Execute(context.Background(), stageIntent("api-button"))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageDocs, stageErr.Stage)
	require.Zero(t, mem.Len(), "catalog must stay untouched after a docs failure")
}

func TestMissingTokenIsPrecondition(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		o.TokenEnv = "ARCCI_TEST_TOKEN_THAT_IS_NEVER_SET"
	})

	err := orch.Execute(context.Background(), stageIntent("api-button"))
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
}

func TestIgnoredIntentIsNoOp(t *testing.T) {
	f := newFixture(t, "api-button")
	orch, mem, _ := f.orchestrator(t, nil)

	require.NoError(t, orch.Execute(context.Background(), classify.Intent{Kind: classify.IntentIgnore}))
	require.Zero(t, mem.Len())
}

func TestSettleDelayWaitsOnClock(t *testing.T) {
	f := newFixture(t, "api-button")
	clock := clockwork.NewFakeClock()
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		o.SettleDelay = time.Hour
		o.Clock = clock
	})

	done := make(chan error, 1)
	go func() {
		done <- orch.Execute(context.Background(), stageIntent("api-button"))
	}()

	// The pipeline must be parked on the settle timer, not running.
	clock.BlockUntil(1)
	select {
	case err := <-done:
		t.Fatalf("pipeline finished during settle delay: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Hour)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("pipeline did not resume after clock advance")
	}
}

func TestSettleCancelledContext(t *testing.T) {
	f := newFixture(t, "api-button")
	clock := clockwork.NewFakeClock()
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		o.SettleDelay = time.Hour
		o.Clock = clock
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- orch.Execute(ctx, stageIntent("api-button"))
	}()

	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(30 * time.Second):
		t.Fatal("pipeline did not observe cancellation")
	}
}

func TestReleaseTagRunsScript(t *testing.T) {
	f := newFixture(t, "api-button")
	clock := clockwork.NewFakeClock()
	orch, _, _ := f.orchestrator(t, func(o *Options) {
		o.Clock = clock
		o.Scripts.TagRelease = f.script(t, "tag-build", `echo "$1" > tag-ran.txt`+"\n")
	})

	done := make(chan error, 1)
	go func() {
		done <- orch.Execute(context.Background(), classify.Intent{
			Kind:     classify.IntentReleaseTag,
			RepoName: "api-button",
		})
	}()

	clock.BlockUntil(1)
	clock.Advance(releaseSettleDelay)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("release pipeline did not finish")
	}

	data, err := os.ReadFile(filepath.Join(f.buildDir, "tag-ran.txt"))
	require.NoError(t, err)
	require.Equal(t, "api-button", strings.TrimSpace(string(data)))
}
