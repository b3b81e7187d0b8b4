package resource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/consoleerr"
	"github.com/dwizi/edge-console/internal/snapshot"
)

type mappingCapability struct{}

func (mappingCapability) Kind() snapshot.Kind { return snapshot.KindMapping }

func (mappingCapability) Fields(spec snapshot.MappingSpec) []Field {
	return []Field{
		{Name: "prefix", Label: "prefix", Value: spec.Prefix},
		{Name: "service", Label: "service", Value: spec.Service},
	}
}

func (mappingCapability) Extract(in Values) (snapshot.MappingSpec, error) {
	return snapshot.MappingSpec{Prefix: in.Get("prefix"), Service: in.Get("service")}, nil
}

func (mappingCapability) Validate(draft Draft[snapshot.MappingSpec]) []string {
	if draft.Inputs.Get("prefix") == "" {
		return []string{"Prefix must not be empty"}
	}
	return nil
}

func (mappingCapability) Summary(obj snapshot.Object[snapshot.MappingSpec]) []string {
	return []string{obj.Spec.Prefix + " -> " + obj.Spec.Service}
}

func (mappingCapability) Seed() (string, snapshot.MappingSpec) {
	return "", snapshot.MappingSpec{}
}

func (mappingCapability) SortFields() []SortField {
	return []SortField{{Value: "prefix", Label: "Prefix"}}
}

func (mappingCapability) SortKey(field string, obj snapshot.Object[snapshot.MappingSpec]) string {
	return obj.Spec.Prefix
}

type recordingMutator struct {
	mu        sync.Mutex
	applied   [][]byte
	deleted   []string
	namespace string
	applyErr  error
	deleteErr error
	block     chan struct{}
}

func (m *recordingMutator) Apply(ctx context.Context, manifest []byte) (string, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, manifest)
	return "applied", m.applyErr
}

func (m *recordingMutator) Delete(ctx context.Context, namespace string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespace = namespace
	m.deleted = append(m.deleted, names...)
	return m.deleteErr
}

const mappingSnapshot = `{"Mapping": [
  {"apiVersion": "getambassador.io/v2", "kind": "Mapping",
   "metadata": {"namespace": "default", "name": "foo", "uid": "u-1", "resourceVersion": "42",
     "annotations": {"kubectl.kubernetes.io/last-applied-configuration": "{}", "team": "edge"}},
   "spec": {"prefix": "/foo/", "service": "foo:80", "timeout_ms": 3000},
   "status": {"state": "Running"}}
]}`

func parseSnapshot(t *testing.T, doc string) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Parse([]byte(doc))
	require.NoError(t, err)
	return snap
}

func fooEditor(t *testing.T) *Editor[snapshot.MappingSpec] {
	t.Helper()
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	set.Reconcile(parseSnapshot(t, mappingSnapshot))
	editor, ok := set.Get("Mapping:default:foo")
	require.True(t, ok)
	return editor
}

func TestEditCancelRestoresConfirmedSpec(t *testing.T) {
	editor := fooEditor(t)
	require.Equal(t, ModeList, editor.Mode())

	editor.Edit()
	require.Equal(t, ModeEdit, editor.Mode())
	editor.SetInput("prefix", "/changed/")
	require.Equal(t, "/changed/", editor.Fields()[0].Value)

	editor.Cancel()
	require.Equal(t, ModeList, editor.Mode())
	fields := editor.Fields()
	require.Equal(t, "/foo/", fields[0].Value)
	require.Equal(t, "foo:80", fields[1].Value)
	require.Equal(t, "/foo/", editor.Input("prefix"))
	require.Empty(t, editor.Messages())
}

func TestEditTogglesBackToList(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	editor.Edit()
	require.Equal(t, ModeList, editor.Mode())
}

func TestSaveMergesIntoConfirmedResource(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	editor.SetInput("service", "foo:8080")

	mutator := &recordingMutator{}
	require.NoError(t, editor.Save(context.Background(), mutator))
	require.Equal(t, ModeList, editor.Mode())
	require.Len(t, mutator.applied, 1)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(mutator.applied[0], &doc))
	require.NotContains(t, doc, "status")
	metadata := doc["metadata"].(map[string]any)
	require.NotContains(t, metadata, "uid")
	require.NotContains(t, metadata, "resourceVersion")
	annotations := metadata["annotations"].(map[string]any)
	require.Equal(t, "true", annotations[snapshot.AnnotationChanged])
	require.Equal(t, "edge", annotations["team"])
	require.NotContains(t, annotations, "kubectl.kubernetes.io/last-applied-configuration")

	spec := doc["spec"].(map[string]any)
	require.Equal(t, "foo:8080", spec["service"])
	require.Equal(t, "/foo/", spec["prefix"])
	require.EqualValues(t, 3000, spec["timeout_ms"])

	// The confirmed spec only changes with the next snapshot.
	require.Equal(t, "foo:80", editor.Object().Spec.Service)
}

func TestMergedYAMLDiff(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	editor.SetInput("service", "bar:80")

	_, diff, err := editor.MergedYAML()
	require.NoError(t, err)
	require.Equal(t, ChangeIgnored, diff["status"])
	require.Equal(t, []DiffEntry{
		{Path: "metadata.annotations.getambassador.io/resource-changed", Change: ChangeUpdated},
		{Path: "spec.service", Change: ChangeUpdated},
	}, diff.Visible())
}

func TestSaveValidationBlocksSubmit(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	editor.SetInput("prefix", "")
	editor.SetInput(InputName, "Not_Valid")

	mutator := &recordingMutator{}
	err := editor.Save(context.Background(), mutator)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, []string{msgBadName, "Prefix must not be empty"}, validationErr.Messages)
	require.Equal(t, validationErr.Messages, editor.Messages())
	require.Empty(t, mutator.applied)
	require.Equal(t, ModeEdit, editor.Mode())
}

func TestSaveFailureKeepsModeAndReportsBody(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	mutator := &recordingMutator{applyErr: errors.New("admission webhook denied")}

	require.Error(t, editor.Save(context.Background(), mutator))
	require.Equal(t, ModeEdit, editor.Mode())
	require.Equal(t, []string{"Unable to save because: admission webhook denied"}, editor.Messages())
}

func TestSaveRejectsDoubleSubmit(t *testing.T) {
	editor := fooEditor(t)
	editor.Edit()
	mutator := &recordingMutator{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- editor.Save(context.Background(), mutator) }()
	require.Eventually(t, editor.Busy, timeoutShort, tick)

	require.ErrorIs(t, editor.Save(context.Background(), mutator), consoleerr.ErrBusy)
	close(mutator.block)
	require.NoError(t, <-done)
	require.Len(t, mutator.applied, 1)
}

func TestReadOnlyResourceIgnoresEdits(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	set.Reconcile(parseSnapshot(t, `{"Mapping": [{"metadata": {"name": "locked",
	  "annotations": {"getambassador.io/editable": "false", "getambassador.io/resource-source": "https://git.example/repo"}},
	  "spec": {"prefix": "/locked/", "service": "locked"}}]}`))
	editor, ok := set.Get("Mapping:default:locked")
	require.True(t, ok)
	require.True(t, editor.ReadOnly())
	require.Equal(t, "https://git.example/repo", editor.SourceURI())

	editor.Edit()
	require.Equal(t, ModeList, editor.Mode())
	mutator := &recordingMutator{}
	require.ErrorIs(t, editor.Save(context.Background(), mutator), consoleerr.ErrReadOnly)
	require.ErrorIs(t, editor.Delete(context.Background(), mutator), consoleerr.ErrReadOnly)
	require.Empty(t, mutator.applied)
	require.Empty(t, mutator.deleted)
}

func TestDeletePostsKindAndName(t *testing.T) {
	editor := fooEditor(t)
	mutator := &recordingMutator{}
	require.NoError(t, editor.Delete(context.Background(), mutator))
	require.Equal(t, "default", mutator.namespace)
	require.Equal(t, []string{"Mapping/foo"}, mutator.deleted)
	require.Equal(t, ModeList, editor.Mode())

	mutator.deleteErr = errors.New("Internal Server Error")
	require.Error(t, editor.Delete(context.Background(), mutator))
	require.Equal(t, []string{"Unexpected error while deleting resource: Internal Server Error"}, editor.Messages())
}

func TestAddCreatesWithoutLocalInsert(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	set.Reconcile(parseSnapshot(t, mappingSnapshot))
	add := set.AddEditor()
	require.Equal(t, ModeOff, add.Mode())

	add.Add()
	require.Equal(t, ModeAdd, add.Mode())
	add.SetInput(InputName, "bar")
	add.SetInput("prefix", "/bar/")
	add.SetInput("service", "bar:80")

	mutator := &recordingMutator{}
	require.NoError(t, add.Save(context.Background(), mutator))
	require.Equal(t, ModeOff, add.Mode())
	require.Len(t, mutator.applied, 1)
	require.Equal(t, 1, set.Len())

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(mutator.applied[0], &doc))
	require.Equal(t, "Mapping", doc["kind"])
	require.Equal(t, "getambassador.io/v2", doc["apiVersion"])
	metadata := doc["metadata"].(map[string]any)
	require.Equal(t, "bar", metadata["name"])
	require.Equal(t, "default", metadata["namespace"])
	require.NotContains(t, doc, "status")
}

func TestAddFailureReportsCreate(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	add := set.AddEditor()
	add.Add()
	add.SetInput(InputName, "bar")
	add.SetInput("prefix", "/bar/")

	err := add.Save(context.Background(), &recordingMutator{applyErr: errors.New("boom")})
	require.Error(t, err)
	require.Equal(t, ModeAdd, add.Mode())
	require.Equal(t, []string{"Unable to create because: boom"}, add.Messages())

	add.Cancel()
	require.Equal(t, ModeOff, add.Mode())
	require.Empty(t, add.Messages())
	require.Empty(t, add.Input(InputName))
}

func TestReconcileKeepsEditsAndDropsVanished(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	set.Reconcile(parseSnapshot(t, `{"Mapping": [
	  {"metadata": {"name": "b"}, "spec": {"prefix": "/b/", "service": "b"}},
	  {"metadata": {"name": "a"}, "spec": {"prefix": "/z/", "service": "a"}}
	]}`))
	editors := set.Editors()
	require.Len(t, editors, 2)
	require.Equal(t, "Mapping:default:a", editors[0].Key())

	editors[1].Edit()
	editors[1].SetInput("service", "pending")

	set.Reconcile(parseSnapshot(t, `{"Mapping": [
	  {"metadata": {"name": "b"}, "spec": {"prefix": "/b/", "service": "b2"}}
	]}`))
	editors = set.Editors()
	require.Len(t, editors, 1)
	require.Equal(t, ModeEdit, editors[0].Mode())
	require.Equal(t, "pending", editors[0].Input("service"))
	require.Equal(t, "b2", editors[0].Object().Spec.Service)
}

func TestSortByCapabilityField(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{})
	set.Reconcile(parseSnapshot(t, `{"Mapping": [
	  {"metadata": {"name": "a"}, "spec": {"prefix": "/z/"}},
	  {"metadata": {"name": "b"}, "spec": {"prefix": "/a/"}}
	]}`))
	set.SetSortBy("prefix")
	require.Equal(t, "prefix", set.SortBy())
	require.Equal(t, "Mapping:default:b", set.Editors()[0].Key())

	set.SetSortBy("bogus")
	require.Equal(t, "", set.SortBy())
	require.Equal(t, "Mapping:default:a", set.Editors()[0].Key())
}

func TestOpenAddIfNone(t *testing.T) {
	set := NewSet[snapshot.MappingSpec](mappingCapability{}).OpenAddIfNone()
	set.Reconcile(parseSnapshot(t, `{"Mapping": []}`))
	require.Equal(t, ModeAdd, set.AddEditor().Mode())

	set.AddEditor().Cancel()
	set.Reconcile(parseSnapshot(t, `{"Mapping": []}`))
	require.Equal(t, ModeOff, set.AddEditor().Mode(), "only the first reconcile opens the add view")
}

func TestValidateIdentity(t *testing.T) {
	require.Empty(t, ValidateIdentity(Values{InputName: "foo.bar-1", InputNamespace: "default"}))
	require.Equal(t, []string{msgBadName, msgBadNamespace},
		ValidateIdentity(Values{InputName: "-bad", InputNamespace: strings.Repeat("a", 254)}))
}
