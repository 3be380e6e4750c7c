package version

import (
	"fmt"
	"sort"
	"strings"

	"mercator-hq/callisto/pkg/policy"
)

// ChangeKind classifies a single field change between two versions.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// FieldChange is one field that differs between two policy versions.
type FieldChange struct {
	Path string
	Kind ChangeKind
	// Old is unset for added fields, New for removed ones.
	Old any
	New any
}

// Diff is the full field-level comparison of two versions.
type Diff struct {
	FromID  string
	ToID    string
	Changes []FieldChange
}

// Empty reports whether the two versions are identical field for field.
func (d Diff) Empty() bool { return len(d.Changes) == 0 }

// Summary renders the diff as one line per change, suitable for logs and
// CLI output. An empty diff renders as "no changes".
func (d Diff) Summary() string {
	if d.Empty() {
		return "no changes"
	}
	var b strings.Builder
	for i, c := range d.Changes {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch c.Kind {
		case ChangeAdded:
			fmt.Fprintf(&b, "+ %s = %s", c.Path, policy.FormatValue(c.New))
		case ChangeRemoved:
			fmt.Fprintf(&b, "- %s = %s", c.Path, policy.FormatValue(c.Old))
		default:
			fmt.Fprintf(&b, "~ %s: %s -> %s", c.Path, policy.FormatValue(c.Old), policy.FormatValue(c.New))
		}
	}
	return b.String()
}

func diffPolicies(from, to *policy.Policy) []FieldChange {
	oldFields := indexFields(from.Fields())
	newFields := indexFields(to.Fields())

	paths := make(map[string]struct{}, len(oldFields)+len(newFields))
	for p := range oldFields {
		paths[p] = struct{}{}
	}
	for p := range newFields {
		paths[p] = struct{}{}
	}

	var changes []FieldChange
	for p := range paths {
		oldVal, inOld := oldFields[p]
		newVal, inNew := newFields[p]
		switch {
		case !inOld:
			changes = append(changes, FieldChange{Path: p, Kind: ChangeAdded, New: newVal})
		case !inNew:
			changes = append(changes, FieldChange{Path: p, Kind: ChangeRemoved, Old: oldVal})
		case !policy.ValuesEqual(oldVal, newVal):
			changes = append(changes, FieldChange{Path: p, Kind: ChangeModified, Old: oldVal, New: newVal})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func indexFields(fields []policy.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Path] = f.Value
	}
	return out
}
