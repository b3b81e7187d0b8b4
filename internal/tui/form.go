package tui

import (
	"strconv"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

// formFields lists the inputs the form shows for view, in display order.
// New resources also ask for a name and namespace.
func formFields(view resource.View) []resource.Field {
	mode := view.Mode()
	var out []resource.Field
	if mode == resource.ModeAdd {
		out = append(out,
			resource.Field{Name: resource.InputName, Label: "name", Value: view.Input(resource.InputName)},
			resource.Field{Name: resource.InputNamespace, Label: "namespace", Value: view.Input(resource.InputNamespace)},
		)
	}
	inputs := view.Inputs()
	for _, field := range view.Fields() {
		if field.Hidden {
			continue
		}
		if view.Kind() == snapshot.KindHost && !hostFieldShown(mode, inputs, field.Name) {
			continue
		}
		if view.Kind() == snapshot.KindFilter && !panels.FilterFieldShown(inputs, field.Name) {
			continue
		}
		out = append(out, field)
	}
	return out
}

func hostFieldShown(mode resource.Mode, inputs resource.Values, name string) bool {
	switch name {
	case panels.HostFieldProvider, panels.HostFieldEmail:
		return inputs.Bool(panels.HostFieldUseACME)
	case panels.HostFieldTOSAgree:
		return panels.TOSShowing(mode, inputs)
	default:
		return true
	}
}

func (m *model) openForm(view resource.View) tea.Cmd {
	m.form = formState{view: view}
	m.confirmDelete = ""
	m.showYAML = false
	m.errorText = ""
	m.tos = panels.TermsOfService{}
	if view.Mode() == resource.ModeAdd {
		m.statusText = "adding " + string(view.Kind())
	} else {
		m.statusText = "editing " + view.Resource().Ref()
	}

	cmds := []tea.Cmd{m.focusField(0)}
	if view.Kind() == snapshot.KindHost && panels.TOSShowing(view.Mode(), view.Inputs()) {
		cmds = append(cmds, m.termsOfServiceCmd(view, view.Input(panels.HostFieldProvider), false))
	}
	return tea.Batch(cmds...)
}

func (m *model) closeForm() {
	m.form = formState{}
	m.tos = panels.TermsOfService{}
	m.input.Blur()
	m.input.SetValue("")
}

// focusField moves the form cursor, wrapping at both ends.
func (m *model) focusField(index int) tea.Cmd {
	fields := formFields(m.form.view)
	if len(fields) == 0 {
		m.input.Blur()
		return nil
	}
	index %= len(fields)
	if index < 0 {
		index += len(fields)
	}
	field := fields[index]
	m.form.index = index
	m.form.entered = m.form.view.Input(field.Name)
	if field.Kind == resource.FieldBool {
		m.input.Blur()
		return nil
	}
	m.input.Placeholder = field.Label
	m.input.SetValue(toInputLine(m.form.entered))
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *model) currentField() (resource.Field, bool) {
	fields := formFields(m.form.view)
	if m.form.index < 0 || m.form.index >= len(fields) {
		return resource.Field{}, false
	}
	return fields[m.form.index], true
}

// changedHostname reports a Host hostname edited in the focused field that
// has not been checked for ACME yet.
func (m *model) changedHostname() (string, bool) {
	field, ok := m.currentField()
	if !ok || field.Name != panels.HostFieldHostname || m.form.view.Kind() != snapshot.KindHost {
		return "", false
	}
	value := m.form.view.Input(field.Name)
	return value, value != m.form.entered
}

// leaveField starts the lookups a changed Host hostname or provider needs.
func (m *model) leaveField() tea.Cmd {
	field, ok := m.currentField()
	if !ok {
		return nil
	}
	view := m.form.view
	value := view.Input(field.Name)
	if value == m.form.entered || view.Kind() != snapshot.KindHost {
		return nil
	}
	switch field.Name {
	case panels.HostFieldHostname:
		return m.hostQualifiesCmd(view, value)
	case panels.HostFieldProvider:
		// The terms checkbox appears as soon as the provider changes; the
		// lookup fills in the URL.
		view.SetInput(panels.HostFieldShowTOS, "true")
		m.tos = panels.TermsOfService{}
		return m.termsOfServiceCmd(view, value, true)
	}
	return nil
}

func (m model) handleFormKey(msg tea.KeyPressMsg) (model, tea.Cmd) {
	view := m.form.view
	switch {
	case key.Matches(msg, m.keys.Cancel):
		view.Cancel()
		m.closeForm()
		m.errorText = ""
		m.statusText = "changes discarded"
		return m, nil
	case key.Matches(msg, m.keys.Save):
		hostname, qualify := m.changedHostname()
		var leave tea.Cmd
		if !qualify || view.Busy() {
			leave = m.leaveField()
		}
		if view.Busy() {
			m.errorText = "a save is already in progress"
			return m, leave
		}
		m.pending++
		m.errorText = ""
		m.statusText = "saving " + string(view.Kind())
		if qualify {
			return m, m.qualifyAndSaveCmd(view, hostname)
		}
		return m, tea.Batch(leave, m.saveCmd(view))
	case msg.String() == "ctrl+y":
		m.showYAML = !m.showYAML
		return m, nil
	}

	switch msg.String() {
	case "tab", "down":
		leave := m.leaveField()
		focus := m.focusField(m.form.index + 1)
		return m, tea.Batch(leave, focus)
	case "shift+tab", "up":
		leave := m.leaveField()
		focus := m.focusField(m.form.index - 1)
		return m, tea.Batch(leave, focus)
	}

	field, ok := m.currentField()
	if !ok {
		return m, nil
	}
	if field.Kind == resource.FieldBool {
		switch msg.String() {
		case "space", " ", "enter", "x":
			current := view.Inputs().Bool(field.Name)
			view.SetInput(field.Name, strconv.FormatBool(!current))
		}
		return m, nil
	}
	if msg.String() == "enter" {
		leave := m.leaveField()
		focus := m.focusField(m.form.index + 1)
		return m, tea.Batch(leave, focus)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	view.SetInput(field.Name, fromInputLine(field, m.input.Value()))
	return m, cmd
}

// Multiline fields are edited on one line with "; " between entries.
func toInputLine(value string) string {
	return panels.JoinLines(value)
}

func fromInputLine(field resource.Field, value string) string {
	if !field.Multiline {
		return value
	}
	return panels.SplitLine(value)
}
