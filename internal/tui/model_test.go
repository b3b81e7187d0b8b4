package tui

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

const mappingSnapshot = `{
  "Mapping": [
    {"apiVersion": "getambassador.io/v2", "kind": "Mapping",
     "metadata": {"name": "quote", "namespace": "default"},
     "spec": {"prefix": "/quote/", "service": "quote"}},
    {"apiVersion": "getambassador.io/v2", "kind": "Mapping",
     "metadata": {"name": "legacy", "namespace": "default",
                  "annotations": {"getambassador.io/editable": "false", "getambassador.io/resource-source": "git://infra"}},
     "spec": {"prefix": "/legacy/", "service": "legacy"}}
  ],
  "Host": [
    {"apiVersion": "getambassador.io/v2", "kind": "Host",
     "metadata": {"name": "edge", "namespace": "default"},
     "spec": {"hostname": "edge.example.com"}}
  ]
}`

type fakeBackend struct {
	status     int
	rejectACME bool
}

func (f *fakeBackend) Probe(context.Context) (int, error) {
	return f.status, nil
}

func (f *fakeBackend) TermsOfServiceURL(context.Context, string) (string, error) {
	return "https://acme.example.com/terms.pdf", nil
}

func (f *fakeBackend) HostQualifies(context.Context, string) (bool, error) {
	return !f.rejectACME, nil
}

func (f *fakeBackend) OpenAPIServices(context.Context) ([]adminclient.OpenAPIService, error) {
	return []adminclient.OpenAPIService{{ServiceName: "quote", ServiceNamespace: "default", RoutingPrefix: "/quote/", HasDoc: true}}, nil
}

func (f *fakeBackend) OpenAPIDocument(context.Context, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{"info": {"title": "Quote", "version": "1.0"}, "paths": {"/quote/": {"get": {}}}}`), nil
}

type fakeMutator struct {
	mu      sync.Mutex
	applied []string
	deleted []string
}

func (f *fakeMutator) Apply(_ context.Context, manifest []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, string(manifest))
	return "applied", nil
}

func (f *fakeMutator) Delete(_ context.Context, _ string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, names...)
	return nil
}

func keyPress(code rune, text string, mods ...tea.KeyMod) tea.KeyPressMsg {
	var mod tea.KeyMod
	for _, item := range mods {
		mod |= item
	}
	return tea.KeyPressMsg(tea.Key{
		Code: code,
		Text: text,
		Mod:  mod,
	})
}

func keyRune(r rune) tea.KeyPressMsg {
	return keyPress(r, string(r))
}

func newTestModel(mutator *fakeMutator) model {
	cfg := config.Config{BaseURL: "https://edge.example.com"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := newModel(Dependencies{
		Config:  cfg,
		Version: "test",
		Logger:  logger,
		Backend: &fakeBackend{status: 200},
		Mutator: mutator,
	})
	m.width = 140
	m.height = 48
	m.resizeWidgets()
	m.refresh()
	return m
}

func authorize(t *testing.T, m model) model {
	t.Helper()
	updated, _ := m.Update(gateCheckedMsg{gate: m.gate, result: auth.Result{State: auth.StateAuthorized}})
	return updated.(model)
}

func withSnapshot(t *testing.T, m model, raw string) model {
	t.Helper()
	snap, err := snapshot.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	updated, _ := m.Update(snapshotMsg{snap: snap})
	return updated.(model)
}

func press(m model, msgs ...tea.KeyPressMsg) model {
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(model)
	}
	return m
}

func mappingsModel(t *testing.T, mutator *fakeMutator) model {
	t.Helper()
	m := authorize(t, newTestModel(mutator))
	m = withSnapshot(t, m, mappingSnapshot)
	m = press(m, keyRune('2'))
	if m.activeView != viewMappings {
		t.Fatalf("expected mappings view, got %s", m.activeView)
	}
	return m
}

func TestTabCyclesPanels(t *testing.T) {
	m := newTestModel(nil)
	if m.activeView != viewHosts {
		t.Fatalf("expected hosts view first, got %s", m.activeView)
	}
	m = press(m, keyPress(tea.KeyTab, ""))
	if m.activeView != viewMappings {
		t.Fatalf("expected mappings after tab, got %s", m.activeView)
	}
	m = press(m, keyPress(tea.KeyTab, "", tea.ModShift), keyPress(tea.KeyTab, "", tea.ModShift))
	if m.activeView != viewHelp {
		t.Fatalf("expected shift+tab to wrap to help, got %s", m.activeView)
	}
}

func TestNumberKeysSelectPanels(t *testing.T) {
	m := newTestModel(nil)
	m = press(m, keyRune('3'))
	if m.activeView != viewRateLimits {
		t.Fatalf("expected rate limits on 3, got %s", m.activeView)
	}
	m = press(m, keyRune('0'))
	if m.activeView != viewHelp {
		t.Fatalf("expected help on 0, got %s", m.activeView)
	}
}

func TestWindowResizeRendersLayout(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	typed := updated.(model)
	if typed.width != 120 || typed.height != 40 {
		t.Fatalf("expected 120x40, got %dx%d", typed.width, typed.height)
	}
	out := typed.renderView()
	if !strings.Contains(out, "Edge Console") {
		t.Fatalf("expected header in view, got %q", out)
	}

	compact, _ := typed.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	if out := compact.(model).renderView(); !strings.Contains(out, "1:Hosts") {
		t.Fatalf("expected compact nav in narrow view, got %q", out)
	}
}

func TestUnauthorizedBlocksEditing(t *testing.T) {
	m := newTestModel(&fakeMutator{})
	updated, _ := m.Update(gateCheckedMsg{gate: m.gate, result: auth.Result{State: auth.StateUnauthorized}})
	m = updated.(model)
	m = withSnapshot(t, m, mappingSnapshot)
	m = press(m, keyRune('2'), keyRune('e'), keyRune('a'))
	if m.form.view != nil {
		t.Fatal("expected no form while unauthorized")
	}
	if out := m.renderView(); !strings.Contains(out, "not logged in") {
		t.Fatalf("expected login message, got %q", out)
	}
}

func TestStaleGateResultIsIgnored(t *testing.T) {
	m := newTestModel(nil)
	stale := m.gate
	m = press(m, keyPress('r', "", tea.ModCtrl))
	if m.gate == stale {
		t.Fatal("expected ctrl+r to mount a new gate")
	}
	updated, _ := m.Update(gateCheckedMsg{gate: stale, result: auth.Result{State: auth.StateAuthorized}})
	if updated.(model).authorized() {
		t.Fatal("expected result of the replaced gate to be ignored")
	}
}

func TestSnapshotPopulatesMappingRows(t *testing.T) {
	m := mappingsModel(t, nil)
	if len(m.rowKeys) != 2 {
		t.Fatalf("expected 2 mapping rows, got %d", len(m.rowKeys))
	}
	if m.rowKeys[0] != snapshot.Key(snapshot.KindMapping, "default", "legacy") {
		t.Fatalf("expected rows sorted by key, got %v", m.rowKeys)
	}
	if !strings.Contains(m.inspectorText(), "read only: git://infra") {
		t.Fatalf("expected read-only source in inspector, got %q", m.inspectorText())
	}
}

func TestEditThenEscapeReturnsToList(t *testing.T) {
	m := mappingsModel(t, nil)
	m = press(m, keyRune('j'), keyRune('e'))
	if m.form.view == nil {
		t.Fatal("expected edit form to open")
	}
	if m.form.view.Mode() != resource.ModeEdit {
		t.Fatalf("expected edit mode, got %s", m.form.view.Mode())
	}
	view := m.form.view
	m = press(m, keyPress(tea.KeyEscape, ""))
	if m.form.view != nil {
		t.Fatal("expected esc to close the form")
	}
	if view.Mode() != resource.ModeList {
		t.Fatalf("expected list mode after cancel, got %s", view.Mode())
	}
}

func TestReadOnlyResourceCannotBeEdited(t *testing.T) {
	m := mappingsModel(t, nil)
	m = press(m, keyRune('e'))
	if m.form.view != nil {
		t.Fatal("expected read-only mapping to stay closed")
	}
	if !strings.Contains(m.errorText, "read only") {
		t.Fatalf("expected read-only error, got %q", m.errorText)
	}
}

func TestSaveAppliesThroughMutator(t *testing.T) {
	mutator := &fakeMutator{}
	m := mappingsModel(t, mutator)
	m = press(m, keyRune('j'), keyRune('e'))
	view := m.form.view
	if view == nil {
		t.Fatal("expected edit form to open")
	}
	view.SetInput(panels.MappingFieldService, "quote-v2")

	updated, cmd := m.Update(keyPress('s', "", tea.ModCtrl))
	m = updated.(model)
	if cmd == nil || !m.busy() {
		t.Fatal("expected save to start")
	}

	msg := m.saveCmd(view)()
	done, ok := msg.(saveDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("expected clean save, got %#v", msg)
	}
	if len(mutator.applied) != 1 || !strings.Contains(mutator.applied[0], "quote-v2") {
		t.Fatalf("expected applied manifest with new service, got %v", mutator.applied)
	}

	updated, _ = m.Update(done)
	m = updated.(model)
	if m.form.view != nil {
		t.Fatal("expected form to close after save")
	}
	if !strings.Contains(m.statusText, "saved") {
		t.Fatalf("expected saved status, got %q", m.statusText)
	}
}

func TestHostnameEditSettlesACMEBeforeSave(t *testing.T) {
	mutator := &fakeMutator{}
	m := authorize(t, newTestModel(mutator))
	m = withSnapshot(t, m, mappingSnapshot)
	m.deps.Backend.(*fakeBackend).rejectACME = true
	m = press(m, keyRune('e'))
	view := m.form.view
	if view == nil || view.Kind() != snapshot.KindHost {
		t.Fatal("expected host edit form")
	}
	view.SetInput(panels.HostFieldUseACME, "true")
	view.SetInput(panels.HostFieldProvider, "https://acme.example.com/directory")
	view.SetInput(panels.HostFieldEmail, "ops@example.com")

	for i, field := range formFields(view) {
		if field.Name == panels.HostFieldHostname {
			m.focusField(i)
		}
	}
	view.SetInput(panels.HostFieldHostname, "internal.local")

	updated, cmd := m.Update(keyPress('s', "", tea.ModCtrl))
	m = updated.(model)
	if cmd == nil || !m.busy() {
		t.Fatal("expected save to start")
	}
	done, ok := cmd().(saveDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("expected clean save, got %#v", done)
	}
	if len(mutator.applied) != 1 {
		t.Fatalf("expected one applied manifest, got %v", mutator.applied)
	}
	manifest := mutator.applied[0]
	if !strings.Contains(manifest, "internal.local") || !strings.Contains(manifest, "authority: none") {
		t.Fatalf("expected saved host to drop ACME for the new hostname, got %s", manifest)
	}
}

func TestSaveWithValidationErrorsKeepsForm(t *testing.T) {
	m := mappingsModel(t, &fakeMutator{})
	m = press(m, keyRune('j'), keyRune('e'))
	view := m.form.view
	view.SetInput(panels.MappingFieldPrefix, "quote")

	updated, _ := m.Update(saveDoneMsg{key: view.Key(), err: m.saveCmd(view)().(saveDoneMsg).err})
	m = updated.(model)
	if m.form.view == nil {
		t.Fatal("expected form to stay open on validation errors")
	}
	if len(view.Messages()) == 0 {
		t.Fatal("expected validation messages on the editor")
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	mutator := &fakeMutator{}
	m := mappingsModel(t, mutator)
	m = press(m, keyRune('j'))

	updated, cmd := m.Update(keyRune('d'))
	m = updated.(model)
	if m.confirmDelete == "" || m.busy() {
		t.Fatal("expected first d to ask for confirmation")
	}

	updated, cmd = m.Update(keyRune('d'))
	m = updated.(model)
	if cmd == nil || !m.busy() {
		t.Fatal("expected second d to start the delete")
	}
	view, ok := m.selectedView()
	if !ok {
		t.Fatal("expected a selected mapping")
	}
	msg := m.deleteCmd(view)()
	if done, ok := msg.(deleteDoneMsg); !ok || done.err != nil {
		t.Fatalf("expected clean delete, got %#v", msg)
	}
	if len(mutator.deleted) != 1 || mutator.deleted[0] != "Mapping/quote" {
		t.Fatalf("expected Mapping/quote deleted, got %v", mutator.deleted)
	}
}

func TestHostFormOpensWhenNoHostExists(t *testing.T) {
	m := withSnapshot(t, newTestModel(nil), `{"Mapping": []}`)
	if m.form.view != nil {
		t.Fatal("expected add form to wait for access")
	}
	m = authorize(t, m)
	if m.form.view == nil || m.form.view.Mode() != resource.ModeAdd {
		t.Fatal("expected host add form after access is confirmed")
	}
	if got := m.form.view.Input(panels.HostFieldHostname); got != "edge.example.com" {
		t.Fatalf("expected hostname seeded from backend url, got %q", got)
	}
}

func TestFormTabMovesBetweenFields(t *testing.T) {
	m := mappingsModel(t, nil)
	m = press(m, keyRune('a'))
	if m.form.view == nil {
		t.Fatal("expected add form")
	}
	if field, _ := m.currentField(); field.Name != resource.InputName {
		t.Fatalf("expected name first, got %s", field.Name)
	}
	m = press(m, keyPress(tea.KeyTab, ""), keyPress(tea.KeyTab, ""))
	if field, _ := m.currentField(); field.Name != panels.MappingFieldPrefix {
		t.Fatalf("expected prefix third, got %s", field.Name)
	}
	m = press(m, keyRune('/'), keyRune('x'))
	if got := m.form.view.Input(panels.MappingFieldPrefix); got != "/x" {
		t.Fatalf("expected typed prefix, got %q", got)
	}
	if m.activeView != viewMappings {
		t.Fatal("expected tab inside a form not to switch panels")
	}
}

func TestFilterFormShowsSelectedTypeFields(t *testing.T) {
	m := authorize(t, newTestModel(nil))
	m = withSnapshot(t, m, mappingSnapshot)
	m, _ = m.switchView(viewFilters)
	m = press(m, keyRune('a'))
	if m.form.view == nil || m.form.view.Kind() != snapshot.KindFilter {
		t.Fatal("expected filter add form")
	}
	shown := func(prefix string) int {
		count := 0
		for _, field := range formFields(m.form.view) {
			if strings.HasPrefix(field.Name, prefix) {
				count++
			}
		}
		return count
	}
	if shown("OAuth2.") == 0 || shown("JWT.") != 0 {
		t.Fatalf("expected only OAuth2 fields for a new filter, got %+v", formFields(m.form.view))
	}

	m.form.view.SetInput(panels.FilterFieldType, snapshot.FilterTypeJWT)
	if shown("OAuth2.") != 0 || shown(panels.FilterFieldInjectHeaders) != 1 {
		t.Fatalf("expected JWT fields after switching type, got %+v", formFields(m.form.view))
	}
}

func TestAPIDocsLoadOnEnter(t *testing.T) {
	m := authorize(t, newTestModel(nil))
	m, _ = m.switchView(viewAPIDocs)
	if m.activeView != viewAPIDocs {
		t.Fatalf("expected api docs view, got %s", m.activeView)
	}
	items, err := panels.APIDocs(context.Background(), m.deps.Backend)
	if err != nil {
		t.Fatalf("list api docs: %v", err)
	}
	updated, _ := m.Update(apiDocsLoadedMsg{items: items})
	m = updated.(model)
	if len(m.rowKeys) != 1 {
		t.Fatalf("expected one api doc row, got %d", len(m.rowKeys))
	}

	cmd := m.loadAPIDocCmd()
	if cmd == nil {
		t.Fatal("expected document fetch")
	}
	updated, _ = m.Update(cmd())
	m = updated.(model)
	if m.apiDoc == nil || m.apiDoc.summary.Title != "Quote" {
		t.Fatalf("expected quote document summary, got %#v", m.apiDoc)
	}
}

func TestRateLimitInputLine(t *testing.T) {
	line := toInputLine("1/minute\n5/second remote_address")
	if line != "1/minute; 5/second remote_address" {
		t.Fatalf("unexpected input line %q", line)
	}
	limits := resource.Field{Name: panels.RateLimitFieldLimits, Multiline: true}
	if got := fromInputLine(limits, line); got != "1/minute\n5/second remote_address" {
		t.Fatalf("unexpected limits %q", got)
	}
	prefix := resource.Field{Name: panels.MappingFieldPrefix}
	if got := fromInputLine(prefix, "/a;b"); got != "/a;b" {
		t.Fatalf("expected other fields untouched, got %q", got)
	}
}

func TestBridgeForwardsBusUpdates(t *testing.T) {
	b := bus.New()
	defer b.Close()
	_, setSnapshot := bus.Register[*snapshot.Snapshot](b, snapshot.BusKey, nil)

	var (
		mu   sync.Mutex
		msgs []tea.Msg
	)
	stop := bridge(b, func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		msgs = append(msgs, msg)
	})

	setSnapshot(&snapshot.Snapshot{})
	stop()
	setSnapshot(&snapshot.Snapshot{})

	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 1 {
		t.Fatalf("expected one forwarded message, got %d", len(msgs))
	}
	if _, ok := msgs[0].(snapshotMsg); !ok {
		t.Fatalf("expected snapshotMsg, got %T", msgs[0])
	}
}

func TestNextSortCyclesBackToKey(t *testing.T) {
	fields := []resource.SortField{{Value: "name"}, {Value: "prefix"}}
	if got := nextSort(fields, ""); got != "name" {
		t.Fatalf("expected name, got %q", got)
	}
	if got := nextSort(fields, "prefix"); got != "" {
		t.Fatalf("expected key order after last field, got %q", got)
	}
}
