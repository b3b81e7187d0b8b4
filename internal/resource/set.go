package resource

import (
	"context"
	"sort"
	"sync"

	"github.com/dwizi/edge-console/internal/snapshot"
)

// View is the kind-independent surface of an Editor, used by the console
// to render and drive any panel.
type View interface {
	Kind() snapshot.Kind
	Key() string
	Resource() snapshot.Resource
	DecodeError() error
	Mode() Mode
	Synthetic() bool
	ReadOnly() bool
	SourceURI() string
	Busy() bool
	Messages() []string
	Inputs() Values
	Input(name string) string
	SetInput(name, value string)
	Fields() []Field
	Summary() []string
	Diff() Diff
	Edit()
	Add()
	Cancel()
	Validate() []string
	MergedYAML() ([]byte, Diff, error)
	Save(ctx context.Context, m Mutator) error
	Delete(ctx context.Context, m Mutator) error
}

var _ View = (*Editor[snapshot.MappingSpec])(nil)

type SortField struct {
	Value string
	Label string
}

// Sorter is implemented by capabilities that offer list orderings other
// than by key.
type Sorter[S any] interface {
	SortFields() []SortField
	SortKey(field string, obj snapshot.Object[S]) string
}

// Collection is the kind-independent surface of a Set.
type Collection interface {
	Kind() snapshot.Kind
	Reconcile(snap *snapshot.Snapshot)
	Views() []View
	AddView() View
	Len() int
	SortFields() []SortField
	SortBy() string
	SetSortBy(field string)
}

// Set keeps one Editor per resource of a kind in the latest snapshot, plus
// the synthetic add editor.
type Set[S any] struct {
	mu sync.Mutex

	capability Capability[S]
	editors    map[string]*Editor[S]
	add        *Editor[S]
	addIfNone  bool
	sortBy     string
}

var _ Collection = (*Set[snapshot.HostSpec])(nil)

func NewSet[S any](capability Capability[S]) *Set[S] {
	return &Set[S]{
		capability: capability,
		editors:    map[string]*Editor[S]{},
		add:        NewAddEditor(capability),
	}
}

// OpenAddIfNone makes the first reconcile open the add editor when the
// snapshot has no resources of the kind.
func (s *Set[S]) OpenAddIfNone() *Set[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addIfNone = true
	return s
}

func (s *Set[S]) Kind() snapshot.Kind {
	return s.capability.Kind()
}

// Reconcile brings the set in line with a snapshot. Editors of resources
// still present keep their mode and inputs; vanished resources are dropped.
func (s *Set[S]) Reconcile(snap *snapshot.Snapshot) {
	resources := snap.Resources(s.capability.Kind())

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*Editor[S], len(resources))
	for _, res := range resources {
		key := res.Key()
		if editor, ok := s.editors[key]; ok {
			editor.Update(res)
			next[key] = editor
			continue
		}
		next[key] = NewEditor(s.capability, res)
	}
	s.editors = next

	if s.addIfNone {
		s.addIfNone = false
		if len(resources) == 0 {
			s.add.Add()
		}
	}
}

// Editors returns the editors in display order.
func (s *Set[S]) Editors() []*Editor[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Editor[S], 0, len(s.editors))
	for _, editor := range s.editors {
		out = append(out, editor)
	}
	keys := make(map[*Editor[S]]string, len(out))
	sorter, sortable := s.capability.(Sorter[S])
	for _, editor := range out {
		if sortable && s.sortBy != "" {
			keys[editor] = sorter.SortKey(s.sortBy, editor.Object())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		left, right := keys[out[i]], keys[out[j]]
		if left != right {
			return left < right
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func (s *Set[S]) Get(key string) (*Editor[S], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	editor, ok := s.editors[key]
	return editor, ok
}

func (s *Set[S]) AddEditor() *Editor[S] {
	return s.add
}

func (s *Set[S]) Views() []View {
	editors := s.Editors()
	out := make([]View, len(editors))
	for i, editor := range editors {
		out[i] = editor
	}
	return out
}

func (s *Set[S]) AddView() View {
	return s.add
}

func (s *Set[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.editors)
}

func (s *Set[S]) SortFields() []SortField {
	if sorter, ok := s.capability.(Sorter[S]); ok {
		return sorter.SortFields()
	}
	return nil
}

func (s *Set[S]) SortBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortBy
}

// SetSortBy selects one of SortFields; unknown fields fall back to key
// order.
func (s *Set[S]) SetSortBy(field string) {
	valid := false
	for _, candidate := range s.SortFields() {
		if candidate.Value == field {
			valid = true
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !valid {
		field = ""
	}
	s.sortBy = field
}
