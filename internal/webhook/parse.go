package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider event headers.
const (
	HeaderGitHubEvent = "X-GitHub-Event"
	HeaderTravisEvent = "x-travis-ci-event"

	GitHubEventPing = "ping"
	GitHubEventPush = "push"

	TravisEventBuildStage = "build-stage"
)

type githubPushBody struct {
	Ref        string `json:"ref"`
	HeadCommit *struct {
		Message string `json:"message"`
	} `json:"head_commit"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

// ParseGitHub builds a Payload from a GitHub webhook request. The event
// argument is the X-GitHub-Event header value. Ping events carry no body
// fields of interest; any other event than push is rejected.
func ParseGitHub(event string, body []byte) (Payload, error) {
	switch event {
	case GitHubEventPing:
		return Payload{SourceEvent: EventPing}, nil
	case GitHubEventPush:
	default:
		return Payload{}, fmt.Errorf("unsupported github event %q", event)
	}

	var b githubPushBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Payload{}, fmt.Errorf("decode push body: %w", err)
	}
	if b.Repository.Name == "" {
		return Payload{}, fmt.Errorf("push body missing repository name")
	}

	p := Payload{
		SourceEvent: EventPush,
		Ref:         b.Ref,
		RepoName:    b.Repository.Name,
	}
	if b.HeadCommit != nil {
		p.CommitMessage = b.HeadCommit.Message
	}
	return p, nil
}

// flexBool tolerates the loose typing of CI report bodies: the pullRequest
// field arrives as a bool, a PR number, or the strings "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*f = false
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ToLower(strings.TrimSpace(s))
		*f = flexBool(s != "" && s != "false" && s != "0")
		return nil
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err == nil {
			*f = flexBool(b)
			return nil
		}
		// A bare PR number means "this is a pull request".
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexBool(n != 0)
		return nil
	}
}

// flexString accepts JSON strings and numbers; build/job numbers are sent
// as either depending on the reporting script.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type travisReportBody struct {
	Branch      string     `json:"branch"`
	PullRequest flexBool   `json:"pullRequest"`
	Slug        string     `json:"slug"`
	BuildNumber flexString `json:"buildNumber"`
	JobNumber   flexString `json:"jobNumber"`
	Commit      string     `json:"commit"`
}

// ParseTravis builds a Payload from a CI report request. The event argument
// is the x-travis-ci-event header value; only build-stage is supported.
func ParseTravis(event string, body []byte) (Payload, error) {
	if event != TravisEventBuildStage {
		return Payload{}, fmt.Errorf("unsupported travis event %q", event)
	}

	var b travisReportBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Payload{}, fmt.Errorf("decode build-stage body: %w", err)
	}

	return Payload{
		SourceEvent:   EventBuildStage,
		Ref:           b.Branch,
		TravisSlug:    b.Slug,
		IsPullRequest: bool(b.PullRequest),
		BuildNumber:   string(b.BuildNumber),
		JobNumber:     string(b.JobNumber),
	}, nil
}

// RepoFromSlug extracts the repository name from an owner/repo slug.
// Returns false when the slug is missing, the literal "unknown", or not in
// owner/repo form.
func RepoFromSlug(slug string) (string, bool) {
	if slug == "" || slug == "unknown" {
		return "", false
	}
	idx := strings.Index(slug, "/")
	if idx < 0 || idx == len(slug)-1 {
		return "", false
	}
	return slug[idx+1:], true
}
