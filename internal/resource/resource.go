// Package resource implements the editable view every configuration panel
// is built from: one Editor per resource with list, edit and add modes, and
// a Set that keeps editors in step with the latest snapshot.
package resource

import (
	"context"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/snapshot"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeList
	ModeEdit
	ModeAdd
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeList:
		return "list"
	case ModeEdit:
		return "edit"
	case ModeAdd:
		return "add"
	default:
		return "unknown"
	}
}

type FieldKind int

const (
	FieldText FieldKind = iota
	FieldBool
)

// Field is one labelled input of a resource form.
type Field struct {
	Name  string
	Label string
	Value string
	Kind  FieldKind
	// Hidden fields are carried through the form but not rendered.
	Hidden bool
	// Multiline fields hold one entry per line.
	Multiline bool
}

// Input names every editor carries besides the capability's own fields.
const (
	InputName      = "name"
	InputNamespace = "namespace"
)

// Values holds the current form inputs by field name.
type Values map[string]string

func (v Values) Get(name string) string {
	return v[name]
}

func (v Values) Bool(name string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(v[name]))
	return err == nil && parsed
}

func (v Values) Int(name string) (int, bool) {
	raw := strings.TrimSpace(v[name])
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// Draft is what a capability sees when validating a form.
type Draft[S any] struct {
	Mode      Mode
	Inputs    Values
	Confirmed S
}

// Capability adapts one resource kind to the generic editor.
type Capability[S any] interface {
	Kind() snapshot.Kind
	// Fields renders a spec as form fields, in display order.
	Fields(spec S) []Field
	// Extract builds a spec from form inputs.
	Extract(inputs Values) (S, error)
	// Validate returns advisory messages; any message blocks submit.
	Validate(draft Draft[S]) []string
	// Summary is the one-line-per-item rendering used in list mode.
	Summary(obj snapshot.Object[S]) []string
	// Seed is the name and spec of a freshly added resource.
	Seed() (string, S)
}

// MergeStrategist is implemented by capabilities that need per-path merge
// behavior beyond the defaults.
type MergeStrategist interface {
	MergeStrategy(path string) Strategy
}

// DraftMergeStrategist picks merge strategies from the pending edit, for
// kinds whose write-back depends on what changed in the form.
type DraftMergeStrategist[S any] interface {
	DraftMergeStrategy(draft Draft[S], path string) Strategy
}

// Mutator is the backend surface an editor writes through.
type Mutator interface {
	Apply(ctx context.Context, manifest []byte) (string, error)
	Delete(ctx context.Context, namespace string, names []string) error
}

// ValidationError carries the advisory messages that blocked a submit.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}
