// Package changelog regenerates a component's CHANGELOG.md from its git
// history during the stage pipeline.
package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// sections maps conventional commit prefixes to changelog headings, in
// render order.
var sections = []struct {
	prefix  string
	heading string
}{
	{"feat", "Features"},
	{"fix", "Fixes"},
	{"docs", "Documentation"},
	{"refactor", "Refactoring"},
	{"perf", "Performance"},
	{"test", "Tests"},
	{"chore", "Chores"},
}

const otherHeading = "Other"

// maxEntries bounds how much history one regeneration walks.
const maxEntries = 200

// Write regenerates CHANGELOG.md in dir for the given released version,
// grouping recent commit subjects by conventional commit type. Commits
// carrying a "[ci skip]" marker are left out.
func Write(dir, version string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	defer iter.Close()

	grouped := make(map[string][]string)
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if count >= maxEntries {
			return storer.ErrStop
		}
		subject := commitSubject(c)
		if subject == "" || strings.Contains(subject, "[ci skip]") {
			return nil
		}
		count++
		heading, line := classifySubject(subject)
		grouped[heading] = append(grouped[heading], line)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk history: %w", err)
	}

	content := render(version, grouped)
	return os.WriteFile(filepath.Join(dir, "CHANGELOG.md"), []byte(content), 0o644)
}

func commitSubject(c *object.Commit) string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// classifySubject splits "feat(scope): add thing" into its section heading
// and the entry text. Subjects without a recognized prefix land in Other.
func classifySubject(subject string) (heading, line string) {
	head, rest, found := strings.Cut(subject, ":")
	if found {
		kind := strings.ToLower(strings.TrimSpace(head))
		if i := strings.IndexByte(kind, '('); i >= 0 {
			kind = kind[:i]
		}
		kind = strings.TrimSuffix(kind, "!")
		for _, s := range sections {
			if kind == s.prefix {
				return s.heading, strings.TrimSpace(rest)
			}
		}
	}
	return otherHeading, subject
}

func render(version string, grouped map[string][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Changelog\n\n## %s\n", version)

	order := make([]string, 0, len(sections)+1)
	for _, s := range sections {
		order = append(order, s.heading)
	}
	order = append(order, otherHeading)

	for _, heading := range order {
		entries := grouped[heading]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", heading)
		sort.Strings(entries)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}
