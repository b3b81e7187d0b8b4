// Package tui is the interactive edge console. All state changes happen in
// Update; backend calls run as commands and report back as messages.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/table"
	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/heartbeat"
	"github.com/dwizi/edge-console/internal/lookup"
	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
)

const defaultRequestTimeout = 8 * time.Second

// Backend is the admin API surface the console reads from.
type Backend interface {
	auth.Prober
	panels.HostLookups
	panels.OpenAPISource
}

type ActivityToucher interface {
	Touch(ctx context.Context) bool
}

type ActivityLog interface {
	ListActivity(ctx context.Context, input store.ListActivityInput) ([]store.ActivityEvent, error)
}

type Dependencies struct {
	Config    config.Config
	Version   string
	Logger    *slog.Logger
	Backend   Backend
	Mutator   resource.Mutator
	LogLevels panels.LogLevelSetter
	Bus       *bus.Bus
	Activity  ActivityToucher
	History   ActivityLog
}

type formState struct {
	view  resource.View
	index int
	// entered is the field value when the field gained focus, used to
	// decide whether leaving it should trigger a lookup.
	entered string
}

type apiDocState struct {
	doc     panels.APIDoc
	summary panels.APIDocSummary
}

type model struct {
	deps   Dependencies
	logger *slog.Logger
	theme  theme

	keys      keyMap
	help      help.Model
	spinner   spinner.Model
	table     table.Model
	inspector viewport.Model
	input     textinput.Model

	width    int
	height   int
	quitting bool

	gate       *auth.Gate
	gateResult auth.Result

	snap   *snapshot.Snapshot
	diag   *snapshot.Diagnostics
	health *heartbeat.Snapshot

	hosts       *panels.Hosts
	collections map[viewID]resource.Collection
	joiner      *panels.Joiner
	// Joined rows are rebuilt only when a feed changes.
	resolvers []panels.ResolverRow
	services  []panels.ServiceRow
	routes    []panels.RouteRow

	activeView viewID
	rowKeys    []string
	tableView  viewID

	form          formState
	confirmDelete string
	showYAML      bool
	tos           panels.TermsOfService

	apiDocs       []panels.APIDoc
	apiDocsLoaded bool
	apiDoc        *apiDocState
	activity      []store.ActivityEvent

	pending    int
	statusText string
	errorText  string
}

// Run starts the console and blocks until the operator quits or ctx is
// done. Bus updates are forwarded into the program as messages.
func Run(ctx context.Context, deps Dependencies) error {
	program := tea.NewProgram(newModel(deps), tea.WithContext(ctx))
	stop := bridge(deps.Bus, program.Send)
	defer stop()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// bridge subscribes to the feeds the console renders and forwards every
// change to send.
func bridge(b *bus.Bus, send func(tea.Msg)) func() {
	if b == nil {
		return func() {}
	}
	stops := []func(){
		bus.Subscribe(b, snapshot.BusKey, func(snap *snapshot.Snapshot) { send(snapshotMsg{snap: snap}) }),
		bus.Subscribe(b, snapshot.DiagnosticsBusKey, func(diag *snapshot.Diagnostics) { send(diagMsg{diag: diag}) }),
		bus.Subscribe(b, heartbeat.BusKey, func(health *heartbeat.Snapshot) { send(healthMsg{health: health}) }),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func newModel(deps Dependencies) model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := newTheme()

	input := textinput.New()
	input.Prompt = "› "

	hosts := panels.NewHosts(deps.Config.BackendHostname(), deps.Backend, nil)
	m := model{
		deps:    deps,
		logger:  logger,
		theme:   t,
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(t.spinner)),
		table: table.New(
			table.WithColumns(columnsFor(viewHosts, 80)),
			table.WithHeight(10),
			table.WithFocused(true),
		),
		inspector: viewport.New(viewport.WithWidth(40), viewport.WithHeight(10)),
		input:     input,

		gate:       auth.NewGate(deps.Backend),
		gateResult: auth.Result{State: auth.StateLoading},

		hosts: hosts,
		collections: map[viewID]resource.Collection{
			viewHosts:      hosts.Set,
			viewMappings:   panels.NewMappings(),
			viewRateLimits: panels.NewRateLimits(),
			viewFilters:    panels.NewFilters(),
			viewPolicies:   panels.NewFilterPolicies(),
		},
		joiner:     panels.NewJoiner(logger),
		activeView: viewHosts,
		tableView:  viewHosts,
	}
	if deps.Bus != nil {
		if snap, ok := bus.Get[*snapshot.Snapshot](deps.Bus, snapshot.BusKey); ok && snap != nil {
			m.applySnapshot(snap)
		}
		if diag, ok := bus.Get[*snapshot.Diagnostics](deps.Bus, snapshot.DiagnosticsBusKey); ok {
			m.diag = diag
		}
		if health, ok := bus.Get[*heartbeat.Snapshot](deps.Bus, heartbeat.BusKey); ok {
			m.health = health
		}
	}
	m.rejoin()
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.checkGateCmd(m.gate))
}

func (m model) View() tea.View {
	view := tea.NewView(m.renderView())
	view.AltScreen = true
	view.WindowTitle = "edge console"
	return view
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeWidgets()
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case tea.KeyPressMsg:
		updated, cmd := m.handleKey(typed)
		updated.refresh()
		return updated, tea.Batch(cmd, updated.touchCmd())
	case gateCheckedMsg:
		if typed.gate != m.gate {
			return m, nil
		}
		m.gateResult = typed.result
		m.logger.Info("access check finished", "state", typed.result.State.String(), "detail", typed.result.Detail)
		m.refresh()
		if typed.result.State == auth.StateAuthorized {
			cmd := tea.Batch(m.openPendingAdd(), m.enterViewCmd())
			m.refresh()
			return m, cmd
		}
		return m, nil
	case snapshotMsg:
		if typed.snap == nil {
			return m, nil
		}
		m.applySnapshot(typed.snap)
		m.rejoin()
		cmd := m.openPendingAdd()
		m.refresh()
		return m, cmd
	case diagMsg:
		m.diag = typed.diag
		m.rejoin()
		m.refresh()
		return m, nil
	case healthMsg:
		m.health = typed.health
		return m, nil
	case tosMsg:
		if m.form.view == nil || m.form.view.Key() != typed.key {
			return m, nil
		}
		if typed.err != nil {
			m.lookupFailed("terms of service lookup", typed.err)
			m.refresh()
			return m, nil
		}
		m.tos = typed.tos
		m.refresh()
		return m, nil
	case hostQualifiesMsg:
		if typed.err != nil {
			m.lookupFailed("ACME qualification check", typed.err)
			m.refresh()
			return m, nil
		}
		if !typed.qualifies {
			m.statusText = typed.hostname + " cannot use ACME; TLS stays manual"
		}
		m.refresh()
		return m, nil
	case saveDoneMsg:
		m.pending--
		m.handleSaveDone(typed)
		m.refresh()
		return m, m.loadActivityCmd()
	case deleteDoneMsg:
		m.pending--
		if typed.err != nil {
			m.errorText = typed.err.Error()
		} else {
			m.errorText = ""
			m.statusText = "deleted " + typed.key + "; it disappears with the next snapshot"
		}
		m.refresh()
		return m, m.loadActivityCmd()
	case logLevelDoneMsg:
		m.pending--
		if typed.err != nil {
			m.errorText = typed.err.Error()
		} else {
			m.errorText = ""
			m.statusText = "gateway log level set to " + typed.level
		}
		m.refresh()
		return m, m.loadActivityCmd()
	case apiDocsLoadedMsg:
		m.pending--
		if typed.err != nil {
			m.errorText = typed.err.Error()
		} else {
			m.apiDocs = typed.items
			m.apiDocsLoaded = true
			m.statusText = plural(len(typed.items), "api service") + " listed"
		}
		m.refresh()
		return m, nil
	case apiDocLoadedMsg:
		m.pending--
		if typed.err != nil {
			m.errorText = typed.err.Error()
		} else {
			m.errorText = ""
			m.apiDoc = &apiDocState{doc: typed.doc, summary: typed.summary}
		}
		m.refresh()
		return m, nil
	case activityLoadedMsg:
		if typed.err != nil {
			m.logger.Warn("load activity failed", "error", typed.err)
			return m, nil
		}
		m.activity = typed.items
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyPressMsg) (model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	if m.form.view != nil {
		return m.handleFormKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextPanel):
		return m.switchView(viewAt(viewIndex(m.activeView) + 1))
	case key.Matches(msg, m.keys.PrevPanel):
		return m.switchView(viewAt(viewIndex(m.activeView) - 1))
	case key.Matches(msg, m.keys.ToggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Recheck):
		m.gate = auth.NewGate(m.deps.Backend)
		m.gateResult = auth.Result{State: auth.StateLoading}
		m.statusText = "checking access"
		return m, m.checkGateCmd(m.gate)
	case key.Matches(msg, m.keys.Cancel):
		m.confirmDelete = ""
		m.showYAML = false
		m.errorText = ""
		return m, nil
	}
	if view, ok := numberedView(msg.String()); ok {
		return m.switchView(view)
	}

	if m.activeView.protected() && !m.authorized() {
		return m, nil
	}

	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.inspector, cmd = m.inspector.Update(msg)
		return m, cmd
	}

	if m.activeView.editable() {
		if next, cmd, handled := m.handleResourceKey(msg); handled {
			return next, cmd
		}
	}
	switch m.activeView {
	case viewDebugging:
		if key.Matches(msg, m.keys.LogLevel) {
			return m.toggleLogLevel()
		}
	case viewAPIDocs:
		switch {
		case key.Matches(msg, m.keys.Refresh):
			cmd := m.loadAPIDocsCmd()
			return m, cmd
		case key.Matches(msg, m.keys.Activate):
			cmd := m.loadAPIDocCmd()
			return m, cmd
		}
	case viewActivity:
		if key.Matches(msg, m.keys.Refresh) {
			return m, m.loadActivityCmd()
		}
	}

	if m.activeView.tabular() {
		previous := m.table.Cursor()
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		if m.table.Cursor() != previous {
			m.confirmDelete = ""
			m.showYAML = false
		}
		return m, cmd
	}
	return m, nil
}

func (m model) handleResourceKey(msg tea.KeyPressMsg) (model, tea.Cmd, bool) {
	coll := m.collections[m.activeView]
	switch {
	case key.Matches(msg, m.keys.Edit):
		view, ok := m.selectedView()
		if !ok {
			return m, nil, true
		}
		if view.ReadOnly() {
			m.errorText = readOnlyText(view)
			return m, nil, true
		}
		view.Edit()
		if view.Mode() == resource.ModeEdit {
			cmd := m.openForm(view)
			return m, cmd, true
		}
		return m, nil, true
	case key.Matches(msg, m.keys.Add):
		add := coll.AddView()
		add.Add()
		cmd := m.openForm(add)
		return m, cmd, true
	case key.Matches(msg, m.keys.Delete):
		view, ok := m.selectedView()
		if !ok {
			return m, nil, true
		}
		if view.ReadOnly() {
			m.errorText = readOnlyText(view)
			return m, nil, true
		}
		if m.confirmDelete != view.Key() {
			m.confirmDelete = view.Key()
			m.statusText = "press d again to delete " + view.Resource().Ref() + ", esc to keep it"
			return m, nil, true
		}
		m.confirmDelete = ""
		m.pending++
		m.statusText = "deleting " + view.Resource().Ref()
		return m, m.deleteCmd(view), true
	case key.Matches(msg, m.keys.ShowYAML):
		m.showYAML = !m.showYAML
		return m, nil, true
	case key.Matches(msg, m.keys.Sort):
		next := nextSort(coll.SortFields(), coll.SortBy())
		coll.SetSortBy(next)
		if next == "" {
			m.statusText = "sorted by key"
		} else {
			m.statusText = "sorted by " + next
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m model) switchView(view viewID) (model, tea.Cmd) {
	if view == m.activeView {
		return m, nil
	}
	m.activeView = view
	m.confirmDelete = ""
	m.showYAML = false
	m.errorText = ""
	m.table.SetCursor(0)
	cmd := tea.Batch(m.openPendingAdd(), m.enterViewCmd())
	return m, cmd
}

// enterViewCmd loads what the active view shows that is not on the bus.
func (m *model) enterViewCmd() tea.Cmd {
	if !m.authorized() {
		return nil
	}
	switch m.activeView {
	case viewAPIDocs:
		if !m.apiDocsLoaded {
			return m.loadAPIDocsCmd()
		}
	case viewActivity:
		return m.loadActivityCmd()
	}
	return nil
}

// openPendingAdd opens the form of an add view the set put into add mode
// by itself, as the Host panel does when no Host exists.
func (m *model) openPendingAdd() tea.Cmd {
	if m.form.view != nil || !m.authorized() {
		return nil
	}
	coll, ok := m.collections[m.activeView]
	if !ok {
		return nil
	}
	if add := coll.AddView(); add.Mode() == resource.ModeAdd {
		return m.openForm(add)
	}
	return nil
}

func (m *model) applySnapshot(snap *snapshot.Snapshot) {
	m.snap = snap
	if m.diag == nil && snap.Diag != nil {
		m.diag = snap.Diag
	}
	for _, coll := range m.collections {
		coll.Reconcile(snap)
	}
	if m.form.view == nil || m.form.view.Synthetic() {
		return
	}
	coll := m.collections[m.activeView]
	for _, view := range coll.Views() {
		if view.Key() == m.form.view.Key() {
			return
		}
	}
	m.statusText = m.form.view.Resource().Ref() + " was removed upstream"
	m.closeForm()
}

// rejoin recomputes the read-only panels that join the snapshot with
// diagnostics.
func (m *model) rejoin() {
	m.resolvers = m.joiner.Resolvers(m.snap, m.diag)
	m.services = m.joiner.Services(m.snap, m.diag)
	m.routes = panels.Routes(m.diag)
}

func (m *model) handleSaveDone(msg saveDoneMsg) {
	var validation *resource.ValidationError
	switch {
	case msg.err == nil:
		m.errorText = ""
		m.statusText = "saved " + msg.key + "; waiting for the next snapshot"
	case errors.As(msg.err, &validation):
		m.statusText = "fix the form before saving"
	default:
		m.errorText = msg.err.Error()
	}
	if m.form.view != nil && m.form.view.Key() == msg.key {
		mode := m.form.view.Mode()
		if mode != resource.ModeEdit && mode != resource.ModeAdd {
			m.closeForm()
		}
	}
}

func (m model) toggleLogLevel() (model, tea.Cmd) {
	if m.deps.LogLevels == nil {
		return m, nil
	}
	level := "debug"
	if m.diag != nil && strings.EqualFold(m.diag.LogLevel, "debug") {
		level = "info"
	}
	m.pending++
	m.statusText = "setting gateway log level to " + level
	return m, m.setLogLevelCmd(level)
}

// lookupFailed reports a failed form lookup. A lookup replaced by a newer
// one is dropped silently.
func (m *model) lookupFailed(what string, err error) {
	if errors.Is(err, lookup.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	m.logger.Warn(what+" failed", "error", err)
	m.errorText = what + " failed: " + err.Error()
}

func (m model) authorized() bool {
	return m.gateResult.State == auth.StateAuthorized
}

func (m model) busy() bool {
	return m.pending > 0
}

func (m model) timeout() time.Duration {
	if m.deps.Config.RequestTimeout > 0 {
		return m.deps.Config.RequestTimeout
	}
	return defaultRequestTimeout
}

// selectedView is the editor under the table cursor on an editable view.
func (m model) selectedView() (resource.View, bool) {
	coll, ok := m.collections[m.activeView]
	if !ok {
		return nil, false
	}
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.rowKeys) {
		return nil, false
	}
	for _, view := range coll.Views() {
		if view.Key() == m.rowKeys[cursor] {
			return view, true
		}
	}
	return nil, false
}

func (m *model) resizeWidgets() {
	layout := computeLayout(m.width, m.height)
	m.table.SetWidth(layout.tableWidth())
	m.table.SetHeight(layout.tableHeight())
	width, height := layout.inspectorSize()
	m.inspector.SetWidth(width)
	m.inspector.SetHeight(height)
	m.input.SetWidth(maxInt(10, layout.tableWidth()-24))
	m.help.SetWidth(layout.Width - 2)
	// columns are sized to the new width on the next refresh
	m.tableView = ""
}

// refresh rebuilds the table and inspector from the current state.
func (m *model) refresh() {
	if m.activeView.tabular() {
		layout := computeLayout(m.width, m.height)
		if m.tableView != m.activeView {
			m.table.SetRows(nil)
			m.table.SetColumns(columnsFor(m.activeView, layout.tableWidth()))
			m.tableView = m.activeView
		}
		rows, keys := m.rowsFor(m.activeView)
		m.table.SetRows(rows)
		m.rowKeys = keys
		if m.table.Cursor() >= len(rows) {
			m.table.SetCursor(maxInt(0, len(rows)-1))
		}
	}
	m.inspector.SetContent(m.inspectorText())
}

func numberedView(key string) (viewID, bool) {
	if len(key) != 1 || key[0] < '0' || key[0] > '9' {
		return "", false
	}
	index := int(key[0] - '1')
	if key == "0" {
		index = len(allViews()) - 1
	}
	if index >= len(allViews()) {
		return "", false
	}
	return allViews()[index], true
}

func nextSort(fields []resource.SortField, current string) string {
	if len(fields) == 0 {
		return ""
	}
	if current == "" {
		return fields[0].Value
	}
	for i, field := range fields {
		if field.Value == current {
			if i+1 < len(fields) {
				return fields[i+1].Value
			}
			return ""
		}
	}
	return ""
}

func readOnlyText(view resource.View) string {
	if uri := view.SourceURI(); uri != "" {
		return view.Resource().Ref() + " is read only; it is managed at " + uri
	}
	return view.Resource().Ref() + " is read only"
}
