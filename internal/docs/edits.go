package docs

import (
	"errors"
	"fmt"
	"sort"
)

// edit is a byte-range replacement against the original README source.
// Start/End are offsets into that source, End exclusive. Applying from the
// end of the file backwards keeps earlier offsets valid.
type edit struct {
	start       int
	end         int
	replacement []byte
}

// applyEdits applies non-overlapping byte-range edits to source.
func applyEdits(source []byte, edits []edit) ([]byte, error) {
	if len(edits) == 0 {
		return source, nil
	}

	sorted := make([]edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	for i, e := range sorted {
		if e.start < 0 || e.end < e.start || e.end > len(source) {
			return nil, fmt.Errorf("invalid edit[%d]: range %d..%d of %d bytes", i, e.start, e.end, len(source))
		}
		if i > 0 && e.end > sorted[i-1].start {
			return nil, errors.New("overlapping edits")
		}
	}

	out := append([]byte(nil), source...)
	for _, e := range sorted {
		next := make([]byte, 0, len(out)-(e.end-e.start)+len(e.replacement))
		next = append(next, out[:e.start]...)
		next = append(next, e.replacement...)
		next = append(next, out[e.end:]...)
		out = next
	}
	return out, nil
}
