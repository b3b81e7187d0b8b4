package tui

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/heartbeat"
	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
)

type snapshotMsg struct {
	snap *snapshot.Snapshot
}

type diagMsg struct {
	diag *snapshot.Diagnostics
}

type healthMsg struct {
	health *heartbeat.Snapshot
}

type gateCheckedMsg struct {
	gate   *auth.Gate
	result auth.Result
}

type tosMsg struct {
	key string
	tos panels.TermsOfService
	err error
}

type hostQualifiesMsg struct {
	key       string
	hostname  string
	qualifies bool
	err       error
}

type saveDoneMsg struct {
	key string
	err error
}

type deleteDoneMsg struct {
	key string
	err error
}

type logLevelDoneMsg struct {
	level string
	err   error
}

type apiDocsLoadedMsg struct {
	items []panels.APIDoc
	err   error
}

type apiDocLoadedMsg struct {
	doc     panels.APIDoc
	summary panels.APIDocSummary
	err     error
}

type activityLoadedMsg struct {
	items []store.ActivityEvent
	err   error
}

func (m model) checkGateCmd(gate *auth.Gate) tea.Cmd {
	backend := m.deps.Backend
	timeout := m.timeout()
	return func() tea.Msg {
		if backend == nil {
			return gateCheckedMsg{gate: gate, result: auth.Result{State: auth.StateError, Detail: "no admin API configured"}}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return gateCheckedMsg{gate: gate, result: gate.Check(ctx)}
	}
}

// touchCmd tells the backend the operator is active. The reporter throttles
// the requests.
func (m model) touchCmd() tea.Cmd {
	if m.deps.Activity == nil || !m.authorized() {
		return nil
	}
	activity := m.deps.Activity
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		activity.Touch(ctx)
		return nil
	}
}

func (m model) saveCmd(view resource.View) tea.Cmd {
	mutator := m.deps.Mutator
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return saveDoneMsg{key: view.Key(), err: view.Save(ctx, mutator)}
	}
}

// qualifyAndSaveCmd settles use_acme for a just edited hostname before the
// Host is saved, so the manifest never carries the previous answer.
func (m model) qualifyAndSaveCmd(view resource.View, hostname string) tea.Cmd {
	hosts := m.hosts
	mutator := m.deps.Mutator
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := hosts.HostnameChanged(ctx, view, hostname); err != nil {
			return saveDoneMsg{key: view.Key(), err: fmt.Errorf("ACME qualification check: %w", err)}
		}
		return saveDoneMsg{key: view.Key(), err: view.Save(ctx, mutator)}
	}
}

func (m model) deleteCmd(view resource.View) tea.Cmd {
	mutator := m.deps.Mutator
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return deleteDoneMsg{key: view.Resource().Ref(), err: view.Delete(ctx, mutator)}
	}
}

func (m model) setLogLevelCmd(level string) tea.Cmd {
	setter := m.deps.LogLevels
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return logLevelDoneMsg{level: level, err: panels.SetLogLevel(ctx, setter, level)}
	}
}

func (m *model) loadAPIDocsCmd() tea.Cmd {
	if m.deps.Backend == nil {
		return nil
	}
	source := m.deps.Backend
	timeout := m.timeout()
	m.pending++
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		items, err := panels.APIDocs(ctx, source)
		return apiDocsLoadedMsg{items: items, err: err}
	}
}

func (m *model) loadAPIDocCmd() tea.Cmd {
	cursor := m.table.Cursor()
	if m.deps.Backend == nil || cursor < 0 || cursor >= len(m.apiDocs) {
		return nil
	}
	doc := m.apiDocs[cursor]
	if !doc.HasDoc {
		m.errorText = fmt.Sprintf("%s/%s publishes no API document", doc.Namespace, doc.Name)
		return nil
	}
	source := m.deps.Backend
	timeout := m.timeout()
	m.pending++
	m.statusText = "fetching API document for " + doc.Name
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		raw, err := source.OpenAPIDocument(ctx, doc.Namespace, doc.Name)
		if err != nil {
			return apiDocLoadedMsg{doc: doc, err: fmt.Errorf("fetch api doc %s/%s: %w", doc.Namespace, doc.Name, err)}
		}
		return apiDocLoadedMsg{doc: doc, summary: panels.SummarizeAPIDoc(raw)}
	}
}

func (m model) loadActivityCmd() tea.Cmd {
	if m.deps.History == nil {
		return nil
	}
	history := m.deps.History
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		items, err := history.ListActivity(ctx, store.ListActivityInput{Limit: 100})
		return activityLoadedMsg{items: items, err: err}
	}
}

func (m model) termsOfServiceCmd(view resource.View, provider string, changed bool) tea.Cmd {
	hosts := m.hosts
	timeout := m.timeout()
	key := view.Key()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var (
			tos panels.TermsOfService
			err error
		)
		if changed {
			tos, err = hosts.ProviderChanged(ctx, view, provider)
		} else {
			tos, err = hosts.TermsOfService(ctx, key, provider)
		}
		return tosMsg{key: key, tos: tos, err: err}
	}
}

func (m model) hostQualifiesCmd(view resource.View, hostname string) tea.Cmd {
	hosts := m.hosts
	timeout := m.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		qualifies, err := hosts.HostnameChanged(ctx, view, hostname)
		return hostQualifiesMsg{key: view.Key(), hostname: hostname, qualifies: qualifies, err: err}
	}
}
