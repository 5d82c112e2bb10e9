// Package webhook defines the normalized payload value type constructed at
// the transport boundary. Everything past this package works on Payload
// values; raw provider JSON never leaves it.
package webhook

// SourceEvent identifies which provider event a payload was built from.
type SourceEvent string

const (
	EventPush       SourceEvent = "push"
	EventPing       SourceEvent = "ping"
	EventBuildStage SourceEvent = "build-stage"
)

// Payload is the normalized webhook payload. It is constructed once per
// inbound request and never mutated.
//
// For push/ping events Ref carries the full git ref (refs/heads/master);
// for CI build-stage reports it carries the plain branch name.
type Payload struct {
	SourceEvent   SourceEvent
	Ref           string
	CommitMessage string
	RepoName      string
	TravisSlug    string
	IsPullRequest bool
	BuildNumber   string
	JobNumber     string
}
