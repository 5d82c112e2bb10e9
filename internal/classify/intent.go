package classify

// IntentKind enumerates the actions a webhook event can trigger.
type IntentKind string

const (
	// IntentIgnore drops the event; Reason says why.
	IntentIgnore IntentKind = "ignore"
	// IntentReleaseTag runs the tag-and-release script for a repository.
	IntentReleaseTag IntentKind = "release-tag"
	// IntentUpdateStructure runs the structural regeneration script
	// (legacy tag-push path).
	IntentUpdateStructure IntentKind = "update-structure"
	// IntentStageBuild runs the full stage pipeline: sync, bump, docs,
	// changelog, catalog update, finish.
	IntentStageBuild IntentKind = "stage-build"
)

// Intent is the classified action for one payload. Exactly one kind is set;
// RepoName is empty only for IntentIgnore.
type Intent struct {
	Kind        IntentKind
	Reason      string
	RepoName    string
	BuildNumber string
	JobNumber   string
}

// Ignored reports whether the intent carries no work.
func (i Intent) Ignored() bool { return i.Kind == IntentIgnore }

func ignore(reason string) Intent {
	return Intent{Kind: IntentIgnore, Reason: reason}
}
