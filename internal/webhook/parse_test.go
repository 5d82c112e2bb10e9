package webhook

import "testing"

func TestParseGitHubPush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/master",
		"head_commit": {"message": "fix: tighten validation"},
		"repository": {"name": "api-button"}
	}`)

	p, err := ParseGitHub(GitHubEventPush, body)
	if err != nil {
		t.Fatalf("ParseGitHub: %v", err)
	}
	if p.SourceEvent != EventPush {
		t.Errorf("SourceEvent = %q", p.SourceEvent)
	}
	if p.Ref != "refs/heads/master" {
		t.Errorf("Ref = %q", p.Ref)
	}
	if p.CommitMessage != "fix: tighten validation" {
		t.Errorf("CommitMessage = %q", p.CommitMessage)
	}
	if p.RepoName != "api-button" {
		t.Errorf("RepoName = %q", p.RepoName)
	}
}

func TestParseGitHubPushWithoutHeadCommit(t *testing.T) {
	body := []byte(`{"ref": "refs/heads/master", "head_commit": null, "repository": {"name": "api-button"}}`)

	p, err := ParseGitHub(GitHubEventPush, body)
	if err != nil {
		t.Fatalf("ParseGitHub: %v", err)
	}
	if p.CommitMessage != "" {
		t.Errorf("CommitMessage = %q, want empty", p.CommitMessage)
	}
}

func TestParseGitHubPing(t *testing.T) {
	p, err := ParseGitHub(GitHubEventPing, nil)
	if err != nil {
		t.Fatalf("ParseGitHub: %v", err)
	}
	if p.SourceEvent != EventPing {
		t.Errorf("SourceEvent = %q", p.SourceEvent)
	}
}

func TestParseGitHubRejectsOtherEvents(t *testing.T) {
	if _, err := ParseGitHub("issues", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unsupported event")
	}
}

func TestParseGitHubRejectsMissingRepo(t *testing.T) {
	if _, err := ParseGitHub(GitHubEventPush, []byte(`{"ref": "refs/heads/master"}`)); err == nil {
		t.Fatal("expected error for missing repository name")
	}
}

func TestParseTravisLooseTyping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPR   bool
		wantBNum string
	}{
		{
			name:     "canonical strings",
			body:     `{"branch":"stage","pullRequest":false,"slug":"arc-components/api-button","buildNumber":"17","jobNumber":"17.1"}`,
			wantPR:   false,
			wantBNum: "17",
		},
		{
			name:     "numeric build number and pr number",
			body:     `{"branch":"stage","pullRequest":42,"slug":"arc-components/api-button","buildNumber":17,"jobNumber":17.1}`,
			wantPR:   true,
			wantBNum: "17",
		},
		{
			name:     "string false",
			body:     `{"branch":"stage","pullRequest":"false","slug":"arc-components/api-button","buildNumber":"17"}`,
			wantPR:   false,
			wantBNum: "17",
		},
		{
			name:     "null pull request",
			body:     `{"branch":"stage","pullRequest":null,"slug":"arc-components/api-button","buildNumber":"17"}`,
			wantPR:   false,
			wantBNum: "17",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseTravis(TravisEventBuildStage, []byte(tt.body))
			if err != nil {
				t.Fatalf("ParseTravis: %v", err)
			}
			if p.IsPullRequest != tt.wantPR {
				t.Errorf("IsPullRequest = %v, want %v", p.IsPullRequest, tt.wantPR)
			}
			if p.BuildNumber != tt.wantBNum {
				t.Errorf("BuildNumber = %q, want %q", p.BuildNumber, tt.wantBNum)
			}
			if p.Ref != "stage" {
				t.Errorf("Ref = %q, want stage", p.Ref)
			}
		})
	}
}

func TestParseTravisRejectsOtherEvents(t *testing.T) {
	if _, err := ParseTravis("build-finished", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unsupported event")
	}
}

func TestRepoFromSlug(t *testing.T) {
	tests := []struct {
		slug   string
		want   string
		wantOK bool
	}{
		{"arc-components/api-button", "api-button", true},
		{"owner/nested/name", "nested/name", true},
		{"", "", false},
		{"unknown", "", false},
		{"just-a-name", "", false},
		{"trailing/", "", false},
	}
	for _, tt := range tests {
		got, ok := RepoFromSlug(tt.slug)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("RepoFromSlug(%q) = %q, %v; want %q, %v", tt.slug, got, ok, tt.want, tt.wantOK)
		}
	}
}
