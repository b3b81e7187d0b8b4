package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type Strategy string

const (
	StrategyIgnore  Strategy = "ignore"
	StrategyMerge   Strategy = "merge"
	StrategyReplace Strategy = "replace"
)

type Change string

const (
	ChangeUpdated  Change = "updated"
	ChangeReplaced Change = "replaced"
	ChangeIgnored  Change = "ignored"
)

// Diff records what a merge did, keyed by dotted path.
type Diff map[string]Change

type DiffEntry struct {
	Path   string
	Change Change
}

// Visible returns the non-ignored entries sorted by path.
func (d Diff) Visible() []DiffEntry {
	out := make([]DiffEntry, 0, len(d))
	for path, change := range d {
		if change == ChangeIgnored {
			continue
		}
		out = append(out, DiffEntry{Path: path, Change: change})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// StrategyFunc picks a strategy for a dotted path. Returning "" defers to
// the default strategies.
type StrategyFunc func(path string) Strategy

func defaultStrategy(path string) Strategy {
	switch path {
	case "metadata.annotations.kubectl.kubernetes.io/last-applied-configuration",
		"metadata.creationTimestamp",
		"metadata.generation",
		"metadata.resourceVersion",
		"metadata.selfLink",
		"metadata.uid",
		"status":
		return StrategyIgnore
	default:
		return StrategyMerge
	}
}

type merger struct {
	override StrategyFunc
	diff     Diff
}

// Merge folds updated into original the way the console writes resources
// back: server bookkeeping is dropped, objects are merged key by key and
// anything the console did not send is kept as the server had it.
func Merge(original, updated any, override StrategyFunc) (any, Diff) {
	m := &merger{override: override, diff: Diff{}}
	merged, _ := m.merge(original, true, updated, true, nil)
	return merged, m.diff
}

func (m *merger) strategy(path string) Strategy {
	if m.override != nil {
		switch s := m.override(path); s {
		case StrategyIgnore, StrategyMerge, StrategyReplace:
			return s
		}
	}
	return defaultStrategy(path)
}

// merge returns the merged value and whether it is present at all.
func (m *merger) merge(original any, hasOriginal bool, updated any, hasUpdated bool, path []string) (any, bool) {
	name := strings.Join(path, ".")
	switch m.strategy(name) {
	case StrategyIgnore:
		m.diff[name] = ChangeIgnored
		return nil, false
	case StrategyReplace:
		m.diff[name] = ChangeReplaced
		return updated, hasUpdated
	}

	if !hasOriginal {
		if object, ok := updated.(map[string]any); ok {
			return m.mergeObject(nil, object, path), true
		}
		m.diff[name] = ChangeUpdated
		return updated, hasUpdated
	}
	switch current := original.(type) {
	case nil:
		m.diff[name] = ChangeUpdated
		return updated, hasUpdated
	case []any:
		if !hasUpdated {
			return current, true
		}
		m.diff[name] = ChangeUpdated
		return updated, true
	case map[string]any:
		if !hasUpdated {
			return m.mergeObject(current, nil, path), true
		}
		object, ok := updated.(map[string]any)
		if !ok {
			m.diff[name] = ChangeUpdated
			return updated, true
		}
		return m.mergeObject(current, object, path), true
	default:
		if !hasUpdated || reflect.DeepEqual(current, updated) {
			return current, true
		}
		m.diff[name] = ChangeUpdated
		return updated, true
	}
}

func (m *merger) mergeObject(original, updates map[string]any, path []string) map[string]any {
	keys := make(map[string]struct{}, len(original)+len(updates))
	for key := range original {
		keys[key] = struct{}{}
	}
	for key := range updates {
		keys[key] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	result := make(map[string]any, len(ordered))
	for _, key := range ordered {
		left, hasLeft := original[key]
		right, hasRight := updates[key]
		child := append(append([]string(nil), path...), key)
		if merged, ok := m.merge(left, hasLeft, right, hasRight, child); ok {
			result[key] = merged
		}
	}
	return result
}

// toGeneric converts a JSON-able value into maps, slices and json.Number
// scalars so that equal numbers compare equal regardless of Go type.
func toGeneric(v any) (any, error) {
	var raw []byte
	switch typed := v.(type) {
	case json.RawMessage:
		raw = typed
	case []byte:
		raw = typed
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generic value: %w", err)
	}
	return out, nil
}
