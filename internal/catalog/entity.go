package catalog

import "strings"

// Catalog entities form a three-level hierarchy: Group -> Component ->
// Version. Slugs are unique within their parent scope and derived from
// display names with Slugify. No entity is ever deleted by this subsystem.

// Group is the hierarchy root.
type Group struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Component belongs to exactly one group. Versions is an ordered set (no
// duplicates, append order preserved); CurrentVersion is the last version
// recorded by a successful build.
type Component struct {
	Slug           string   `json:"slug"`
	Name           string   `json:"name"`
	Group          string   `json:"group"`
	Versions       []string `json:"versions"`
	CurrentVersion string   `json:"currentVersion"`
}

// HasVersion reports whether v is already recorded.
func (c *Component) HasVersion(v string) bool {
	for _, existing := range c.Versions {
		if existing == v {
			return true
		}
	}
	return false
}

// Version holds the docs snapshot for one (component, version) pair. Docs
// is an opaque serialized payload; the catalog never inspects it.
type Version struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// Hierarchical key layout within a bucket. Dots separate the levels; slugs
// and semver strings are already dot/hyphen-safe for the KV backends used.
func groupKey(groupSlug string) string {
	return "group." + groupSlug
}

func componentKey(groupSlug, componentSlug string) string {
	return strings.Join([]string{"component", groupSlug, componentSlug}, ".")
}

func versionKey(groupSlug, componentSlug, version string) string {
	return strings.Join([]string{"version", groupSlug, componentSlug, version}, ".")
}
