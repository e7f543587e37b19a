// Package champions supplies the champion universe a draft selects from.
package champions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Catalog lists every champion id valid for a draft.
type Catalog interface {
	IDs(ctx context.Context) ([]int, error)
}

// Static is a fixed catalog.
type Static []int

func (s Static) IDs(context.Context) ([]int, error) {
	return normalize(s), nil
}

// Range returns ids first..last inclusive.
func Range(first, last int) Static {
	out := make(Static, 0, max(last-first+1, 0))
	for id := first; id <= last; id++ {
		out = append(out, id)
	}
	return out
}

// DefaultPoolSize matches the live champion roster size closely enough for
// drafts run without a catalog file.
const DefaultPoolSize = 170

func Default() Static { return Range(1, DefaultPoolSize) }

// Entry is one champion in a catalog file.
type Entry struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// FromFile reads a JSON catalog: either an array of ids or an array of
// {"id": n, "name": "..."} objects.
func FromFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read champion catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Static, error) {
	var ids []int
	if err := json.Unmarshal(data, &ids); err == nil {
		return validate(ids)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode champion catalog: %w", err)
	}
	ids = make([]int, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return validate(ids)
}

func validate(ids []int) (Static, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("champion catalog is empty")
	}
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("champion id %d must be positive", id)
		}
	}
	return Static(normalize(ids)), nil
}

func normalize(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
