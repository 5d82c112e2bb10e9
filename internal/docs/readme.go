// Package docs holds the documentation collaborator contract and the
// README artifact writer for the stage pipeline.
package docs

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markers delimiting the generated API section inside a component README.
// Content between them is owned by the pipeline and replaced wholesale.
const (
	sectionBegin = "<!-- api-docs-begin -->"
	sectionEnd   = "<!-- api-docs-end -->"
)

// UpdateReadme writes the generated API documentation into the component's
// README at path, replacing the marker-delimited section. When the markers
// are absent the section is inserted ahead of conventional trailing
// sections (License, Contributing) or appended; when the file is absent it
// is created with a title heading for the component.
//
// The rewrite is a byte-range edit: everything outside the managed section
// is untouched, so repeated updates with the same content are byte-stable.
func UpdateReadme(path, componentName, apiDocs string) error {
	source, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		content := fmt.Sprintf("# %s\n\n%s\n", componentName, renderSection(apiDocs))
		return os.WriteFile(path, []byte(content), 0o644)
	}
	if err != nil {
		return err
	}

	section := renderSection(apiDocs)

	begin := bytes.Index(source, []byte(sectionBegin))
	end := bytes.Index(source, []byte(sectionEnd))
	if begin >= 0 && end > begin {
		e := edit{start: begin, end: end + len(sectionEnd), replacement: []byte(section)}
		out, err := applyEdits(source, []edit{e})
		if err != nil {
			return err
		}
		return os.WriteFile(path, out, 0o644)
	}

	insertAt := insertionOffset(source)
	if insertAt >= len(source) {
		// Append at the end, separated by a blank line.
		var buf bytes.Buffer
		buf.Write(source)
		switch {
		case len(source) == 0:
		case bytes.HasSuffix(source, []byte("\n\n")):
		case bytes.HasSuffix(source, []byte("\n")):
			buf.WriteByte('\n')
		default:
			buf.WriteString("\n\n")
		}
		buf.WriteString(section)
		buf.WriteByte('\n')
		return os.WriteFile(path, buf.Bytes(), 0o644)
	}

	e := edit{start: insertAt, end: insertAt, replacement: []byte(section + "\n\n")}
	out, err := applyEdits(source, []edit{e})
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func renderSection(apiDocs string) string {
	return sectionBegin + "\n## API\n\n" + apiDocs + "\n" + sectionEnd
}

// trailingSections are heading titles that stay at the bottom of a README.
var trailingSections = map[string]bool{"license": true, "contributing": true}

// insertionOffset finds where the managed section belongs: the byte offset
// of the first trailing-section heading's line, or the end of the document.
func insertionOffset(source []byte) int {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		h, ok := node.(*ast.Heading)
		if !ok || h.Level != 2 {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(string(headingText(h, source))))
		if !trailingSections[title] {
			continue
		}
		if lines := h.Lines(); lines.Len() > 0 {
			// Back up past the "## " prefix to the start of the line.
			off := lines.At(0).Start
			for off > 0 && source[off-1] != '\n' {
				off--
			}
			return off
		}
	}
	return len(source)
}

func headingText(h *ast.Heading, source []byte) []byte {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.Bytes()
}
