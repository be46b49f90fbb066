/*
diff.go - Structural snapshot comparison

PURPOSE:
  Compares two full-state snapshots leaf by leaf and routes every changed
  path into one of two change sets: inputChanges for fields a servicer
  actually set, outputChanges for generated results like the schedule. The
  routing tables are explicit configuration, never inferred from the shape
  of the data at runtime.

ROUTING RULES:
  - excluded paths: skipped entirely, appear in neither set
  - output paths:   routed to outputChanges
  - generated paths: skipped for inputChanges only; a generated value that
    changes still shows up when routed to outputChanges

  Paths are dot-separated, array elements addressed by index
  ("schedule.3.endBalance"). A table entry matches a path when it equals
  the path or is a prefix segment of it.
*/
package version

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CHANGE MODEL
// =============================================================================

// Change is one leaf-level difference between two snapshots. Old is nil for
// additions, New is nil for removals.
type Change struct {
	Path string `json:"path"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// ChangeSet is a path-sorted list of changes.
type ChangeSet []Change

func (cs ChangeSet) sorted() ChangeSet {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Path < cs[j].Path })
	return cs
}

// Changes is the dual diff result.
type Changes struct {
	Input  ChangeSet `json:"inputChanges"`
	Output ChangeSet `json:"outputChanges"`
}

// =============================================================================
// DIFF CONFIGURATION
// =============================================================================

// DiffConfig carries the path routing tables. Zero value diffs everything
// into Input.
type DiffConfig struct {
	// ExcludedPaths are never compared.
	ExcludedPaths []string

	// OutputPaths route to Output instead of Input.
	OutputPaths []string

	// GeneratedPaths are machine-derived: suppressed for Input, kept when a
	// path also routes to Output.
	GeneratedPaths []string
}

// pathMatches reports whether path equals table entry p or sits under it.
func pathMatches(p, path string) bool {
	return path == p || strings.HasPrefix(path, p+".")
}

func matchesAny(table []string, path string) bool {
	for _, p := range table {
		if pathMatches(p, path) {
			return true
		}
	}
	return false
}

// =============================================================================
// DIFF
// =============================================================================

// Diff compares two snapshot-shaped values. Both sides are normalized
// through JSON so typed snapshots and already-decoded maps diff the same
// way; decimal strings and ISO dates compare by plain value equality.
func Diff(cfg DiffConfig, before, after any) (Changes, error) {
	oldLeaves, err := flatten(before)
	if err != nil {
		return Changes{}, fmt.Errorf("flatten before: %w", err)
	}
	newLeaves, err := flatten(after)
	if err != nil {
		return Changes{}, fmt.Errorf("flatten after: %w", err)
	}

	paths := make(map[string]struct{}, len(oldLeaves)+len(newLeaves))
	for p := range oldLeaves {
		paths[p] = struct{}{}
	}
	for p := range newLeaves {
		paths[p] = struct{}{}
	}

	changes := Changes{}
	for path := range paths {
		if matchesAny(cfg.ExcludedPaths, path) {
			continue
		}
		oldVal, hadOld := oldLeaves[path]
		newVal, hasNew := newLeaves[path]
		if hadOld && hasNew && oldVal == newVal {
			continue
		}

		change := Change{Path: path, Old: oldVal, New: newVal}
		if matchesAny(cfg.OutputPaths, path) {
			changes.Output = append(changes.Output, change)
			continue
		}
		if matchesAny(cfg.GeneratedPaths, path) {
			continue
		}
		changes.Input = append(changes.Input, change)
	}

	changes.Input = changes.Input.sorted()
	changes.Output = changes.Output.sorted()
	return changes, nil
}

// flatten decodes v through JSON and walks it into path -> leaf pairs.
// A nil v flattens to the empty baseline.
func flatten(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	leaves := make(map[string]any)
	walk("", decoded, leaves)
	return leaves, nil
}

func walk(prefix string, v any, out map[string]any) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			walk(joinPath(prefix, k), child, out)
		}
	case []any:
		for i, child := range node {
			walk(joinPath(prefix, fmt.Sprintf("%d", i)), child, out)
		}
	default:
		if prefix == "" {
			prefix = "."
		}
		out[prefix] = v
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
