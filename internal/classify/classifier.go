// Package classify maps normalized webhook payloads to build intents.
//
// Classification is a pure, total function: it never performs I/O and never
// fails. Unmapped inputs resolve to an ignore intent with a diagnostic
// reason. All side effects live in the orchestrator, which keeps this
// package exhaustively testable against literal payload fixtures.
package classify

import (
	"strings"

	"github.com/arc-components/arcci/internal/util/sets"
	"github.com/arc-components/arcci/internal/webhook"
)

const (
	refStage     = "refs/heads/stage"
	refMaster    = "refs/heads/master"
	refTagPrefix = "refs/tags/"

	stageBranch = "stage"

	// mergeMarker is the exact commit message the CI writes when merging
	// stage into master; a tag push carrying it is an automated release.
	mergeMarker = "[ci skip] Automated merge stage->master."
	// ciSkipMarker flags any commit authored by the CI itself.
	ciSkipMarker = "[ci skip]"
)

// Config holds the immutable repository sets the classifier consults.
type Config struct {
	// IgnoredRepos are non-publishable repositories whose pushes never
	// trigger work (tooling, the CI server itself, and similar).
	IgnoredRepos []string
	// ParentRepos are parent/meta element repositories; their tag pushes
	// are ignored rather than treated as component releases.
	ParentRepos []string
}

// Classifier turns payloads into intents. Construct once per configuration;
// swap the instance to apply a config reload.
type Classifier struct {
	ignored sets.Set[string]
	parents sets.Set[string]
}

func New(cfg Config) *Classifier {
	return &Classifier{
		ignored: sets.New(cfg.IgnoredRepos...),
		parents: sets.New(cfg.ParentRepos...),
	}
}

// Classify returns the intent for a payload. Total: every input maps to
// exactly one intent.
func (c *Classifier) Classify(p webhook.Payload) Intent {
	switch p.SourceEvent {
	case webhook.EventPing:
		return ignore("ping")
	case webhook.EventPush:
		return c.classifyPush(p)
	case webhook.EventBuildStage:
		return c.classifyStageReport(p)
	}
	return ignore("unhandled event")
}

func (c *Classifier) classifyPush(p webhook.Payload) Intent {
	if c.ignored.Has(p.RepoName) {
		return ignore("ignored repo")
	}

	switch {
	case p.Ref == refStage:
		// Stage builds are driven exclusively by the CI report path now.
		return ignore("stage pushes no longer drive build")

	case p.Ref == refMaster:
		msg := strings.ToLower(p.CommitMessage)
		if strings.HasPrefix(msg, "initial commit") {
			return ignore("initial commit")
		}
		if strings.Contains(msg, ciSkipMarker) {
			return ignore("ci-authored commit")
		}
		return Intent{Kind: IntentReleaseTag, RepoName: p.RepoName}

	case strings.HasPrefix(p.Ref, refTagPrefix):
		if c.parents.Has(p.RepoName) {
			return ignore("parent element")
		}
		if p.CommitMessage == mergeMarker {
			return Intent{Kind: IntentUpdateStructure, RepoName: p.RepoName}
		}
		return ignore("unrecognized tag message")
	}
	return ignore("unhandled branch")
}

func (c *Classifier) classifyStageReport(p webhook.Payload) Intent {
	if p.Ref != stageBranch {
		return ignore("not stage branch")
	}
	if p.IsPullRequest {
		return ignore("pull request build")
	}
	repo, ok := webhook.RepoFromSlug(p.TravisSlug)
	if !ok {
		return ignore("unknown slug")
	}
	return Intent{
		Kind:        IntentStageBuild,
		RepoName:    repo,
		BuildNumber: p.BuildNumber,
		JobNumber:   p.JobNumber,
	}
}
