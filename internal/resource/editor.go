package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/consoleerr"
	"github.com/dwizi/edge-console/internal/snapshot"
)

// Editor is the view of a single resource. It is safe for concurrent use:
// the console runs Save and Delete off the UI loop while rendering reads the
// editor state.
type Editor[S any] struct {
	mu sync.Mutex

	capability Capability[S]
	resource   snapshot.Resource
	spec       S
	decodeErr  error
	synthetic  bool

	mode     Mode
	inputs   Values
	messages []string
	diff     Diff
	busy     bool
}

// NewEditor opens a list-mode view of an existing resource.
func NewEditor[S any](capability Capability[S], res snapshot.Resource) *Editor[S] {
	e := &Editor[S]{capability: capability, mode: ModeList}
	e.setResource(res)
	e.reset()
	return e
}

// NewAddEditor opens the synthetic view used to create a resource. It
// starts in ModeOff until Add is called.
func NewAddEditor[S any](capability Capability[S]) *Editor[S] {
	name, spec := capability.Seed()
	specJSON, _ := json.Marshal(spec)
	res := snapshot.Resource{
		Kind: capability.Kind(),
		Metadata: metav1.ObjectMeta{
			Name:      name,
			Namespace: snapshot.DefaultNamespace,
		},
		Spec: specJSON,
	}
	res.Raw, _ = json.Marshal(map[string]any{
		"metadata": map[string]any{"name": name, "namespace": snapshot.DefaultNamespace},
		"spec":     json.RawMessage(specJSON),
		"status":   map[string]any{},
	})
	e := &Editor[S]{capability: capability, mode: ModeOff, synthetic: true}
	e.setResource(res)
	e.reset()
	return e
}

func (e *Editor[S]) setResource(res snapshot.Resource) {
	obj, err := snapshot.Decode[S](res)
	e.resource = res
	e.spec = obj.Spec
	e.decodeErr = err
}

// Update replaces the confirmed resource after a snapshot refresh. Inputs
// of an edit in progress are left alone.
func (e *Editor[S]) Update(res snapshot.Resource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setResource(res)
	if e.mode == ModeList {
		e.inputs = e.confirmedInputs()
	}
}

func (e *Editor[S]) Kind() snapshot.Kind {
	return e.capability.Kind()
}

func (e *Editor[S]) Key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resource.Key()
}

func (e *Editor[S]) Resource() snapshot.Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resource
}

// Object is the last confirmed resource in typed form.
func (e *Editor[S]) Object() snapshot.Object[S] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.Object[S]{Resource: e.resource, Spec: e.spec}
}

func (e *Editor[S]) DecodeError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodeErr
}

func (e *Editor[S]) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Editor[S]) Synthetic() bool {
	return e.synthetic
}

func (e *Editor[S]) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly()
}

func (e *Editor[S]) readOnly() bool {
	return !e.synthetic && e.resource.ReadOnly()
}

func (e *Editor[S]) SourceURI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resource.SourceURI()
}

func (e *Editor[S]) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *Editor[S]) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.messages...)
}

func (e *Editor[S]) Inputs() Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputs.clone()
}

func (e *Editor[S]) Input(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputs.Get(name)
}

func (e *Editor[S]) SetInput(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs[name] = value
}

// Fields are the form fields to render: the confirmed spec in list mode and
// the pending inputs while editing or adding.
func (e *Editor[S]) Fields() []Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	fields := e.capability.Fields(e.spec)
	if e.mode != ModeEdit && e.mode != ModeAdd {
		return fields
	}
	for i := range fields {
		if value, ok := e.inputs[fields[i].Name]; ok {
			fields[i].Value = value
		}
	}
	return fields
}

func (e *Editor[S]) Summary() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capability.Summary(snapshot.Object[S]{Resource: e.resource, Spec: e.spec})
}

// Diff is the change set computed by the last MergedYAML or Save.
func (e *Editor[S]) Diff() Diff {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(Diff, len(e.diff))
	for path, change := range e.diff {
		out[path] = change
	}
	return out
}

// Edit toggles between edit and list mode. It does nothing for read-only
// resources.
func (e *Editor[S]) Edit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly() || e.busy {
		return
	}
	e.reset()
	if e.mode == ModeEdit {
		e.mode = ModeList
	} else {
		e.mode = ModeEdit
	}
}

func (e *Editor[S]) Add() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly() || e.busy {
		return
	}
	e.reset()
	e.mode = ModeAdd
}

// Cancel discards pending inputs and messages.
func (e *Editor[S]) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = e.restingMode()
	e.reset()
}

func (e *Editor[S]) restingMode() Mode {
	if e.mode == ModeAdd || e.synthetic {
		return ModeOff
	}
	return ModeList
}

// Validate returns the advisory messages for the pending inputs.
func (e *Editor[S]) Validate() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validate()
}

func (e *Editor[S]) validate() []string {
	messages := ValidateIdentity(e.inputs)
	return append(messages, e.capability.Validate(Draft[S]{
		Mode:      e.mode,
		Inputs:    e.inputs.clone(),
		Confirmed: e.spec,
	})...)
}

// MergedYAML renders the document Save would submit.
func (e *Editor[S]) MergedYAML() ([]byte, Diff, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergedYAML()
}

func (e *Editor[S]) mergedYAML() ([]byte, Diff, error) {
	e.diff = Diff{}
	spec, err := e.capability.Extract(e.inputs.clone())
	if err != nil {
		return nil, nil, fmt.Errorf("extract %s spec: %w", e.capability.Kind(), err)
	}
	metadata := map[string]any{
		"annotations": map[string]any{snapshot.AnnotationChanged: "true"},
	}
	input := map[string]any{"metadata": metadata, "spec": spec}
	if e.mode == ModeAdd {
		input["kind"] = string(e.capability.Kind())
		input["apiVersion"] = e.capability.Kind().APIVersion()
		metadata["name"] = e.inputs.Get(InputName)
		metadata["namespace"] = e.inputs.Get(InputNamespace)
	}

	base := any(e.resource.Raw)
	if len(e.resource.Raw) == 0 {
		base = e.resource
	}
	original, err := toGeneric(base)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", e.resource.Key(), err)
	}
	updated, err := toGeneric(input)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s input: %w", e.resource.Key(), err)
	}

	var override StrategyFunc
	switch strategist := any(e.capability).(type) {
	case DraftMergeStrategist[S]:
		draft := Draft[S]{Mode: e.mode, Inputs: e.inputs.clone(), Confirmed: e.spec}
		override = func(path string) Strategy {
			return strategist.DraftMergeStrategy(draft, path)
		}
	case MergeStrategist:
		override = strategist.MergeStrategy
	}
	merged, diff := Merge(original, updated, override)
	e.diff = diff
	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("render %s yaml: %w", e.resource.Key(), err)
	}
	return out, diff, nil
}

// Save validates the pending inputs and applies the merged document. On
// success the editor returns to its resting mode; the confirmed resource is
// only replaced by the next snapshot.
func (e *Editor[S]) Save(ctx context.Context, m Mutator) error {
	e.mu.Lock()
	if e.readOnly() {
		e.mode = ModeList
		e.mu.Unlock()
		return fmt.Errorf("save %s: %w", e.resource.Key(), consoleerr.ErrReadOnly)
	}
	if e.busy {
		e.mu.Unlock()
		return fmt.Errorf("save %s: %w", e.resource.Key(), consoleerr.ErrBusy)
	}
	e.messages = nil
	if messages := e.validate(); len(messages) > 0 {
		e.messages = messages
		e.mu.Unlock()
		return &ValidationError{Messages: messages}
	}
	manifest, _, err := e.mergedYAML()
	if err != nil {
		e.messages = append(e.messages, err.Error())
		e.mu.Unlock()
		return err
	}
	adding := e.mode == ModeAdd
	key := e.resource.Key()
	e.busy = true
	e.mu.Unlock()

	_, applyErr := m.Apply(ctx, manifest)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	verb := "save"
	if adding {
		verb = "create"
	}
	if applyErr != nil {
		e.messages = append(e.messages, fmt.Sprintf("Unable to %s because: %s", verb, applyErr.Error()))
		return fmt.Errorf("%s %s: %w", verb, key, applyErr)
	}
	e.reset()
	e.mode = e.restingMode()
	return nil
}

// Delete removes the resource on the backend. The editor itself goes away
// when the next snapshot no longer lists the resource.
func (e *Editor[S]) Delete(ctx context.Context, m Mutator) error {
	e.mu.Lock()
	if e.synthetic {
		e.mu.Unlock()
		return fmt.Errorf("delete: unsaved %s has nothing to delete", e.capability.Kind())
	}
	if e.readOnly() {
		e.mu.Unlock()
		return fmt.Errorf("delete %s: %w", e.resource.Key(), consoleerr.ErrReadOnly)
	}
	if e.busy {
		e.mu.Unlock()
		return fmt.Errorf("delete %s: %w", e.resource.Key(), consoleerr.ErrBusy)
	}
	namespace := e.resource.Namespace()
	ref := e.resource.Ref()
	key := e.resource.Key()
	e.busy = true
	e.mu.Unlock()

	deleteErr := m.Delete(ctx, namespace, []string{ref})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	e.reset()
	e.mode = e.restingMode()
	if deleteErr != nil {
		e.messages = append(e.messages, "Unexpected error while deleting resource: "+deleteErr.Error())
		return fmt.Errorf("delete %s: %w", key, deleteErr)
	}
	return nil
}

func (e *Editor[S]) reset() {
	e.inputs = e.confirmedInputs()
	e.messages = nil
	e.diff = nil
}

func (e *Editor[S]) confirmedInputs() Values {
	inputs := Values{
		InputName:      e.resource.Name(),
		InputNamespace: e.resource.Namespace(),
	}
	for _, field := range e.capability.Fields(e.spec) {
		inputs[field.Name] = field.Value
	}
	return inputs
}
