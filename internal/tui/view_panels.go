package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/table"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
)

// columnsFor sizes a view's table columns to width by weight.
func columnsFor(view viewID, width int) []table.Column {
	var titles []string
	var weights []int
	switch view {
	case viewHosts, viewMappings, viewRateLimits, viewFilters, viewPolicies:
		titles = []string{"Name", "Namespace", "Summary", "State"}
		weights = []int{3, 2, 6, 2}
	case viewResolvers:
		titles = []string{"Kind", "Name", "Namespace", "Active", "Runtime"}
		weights = []int{4, 3, 2, 1, 3}
	case viewServices:
		titles = []string{"Service", "Type", "Weight", "Health", "Mapping"}
		weights = []int{4, 2, 1, 2, 4}
	case viewRoutes:
		titles = []string{"URL", "Headers", "Targets"}
		weights = []int{4, 3, 5}
	case viewAPIDocs:
		titles = []string{"Namespace", "Service", "Prefix", "Doc"}
		weights = []int{2, 3, 3, 1}
	default:
		titles = []string{"Time", "Action", "Resource", "Outcome"}
		weights = []int{2, 2, 5, 2}
	}
	widths := splitWidth(width, weights)
	columns := make([]table.Column, len(titles))
	for i, title := range titles {
		columns[i] = table.Column{Title: title, Width: widths[i]}
	}
	return columns
}

func splitWidth(width int, weights []int) []int {
	total := 0
	for _, weight := range weights {
		total += weight
	}
	// one cell of padding on each side of every column
	usable := maxInt(len(weights)*4, width-2*len(weights))
	out := make([]int, len(weights))
	for i, weight := range weights {
		out[i] = maxInt(4, usable*weight/total)
	}
	return out
}

// rowsFor renders a view's rows and the key identifying each row.
func (m model) rowsFor(view viewID) ([]table.Row, []string) {
	var rows []table.Row
	var keys []string
	switch view {
	case viewHosts, viewMappings, viewRateLimits, viewFilters, viewPolicies:
		for _, item := range m.collections[view].Views() {
			rows = append(rows, table.Row{
				item.Resource().Name(),
				item.Resource().Namespace(),
				strings.Join(item.Summary(), " | "),
				resourceState(item),
			})
			keys = append(keys, item.Key())
		}
	case viewResolvers:
		for _, row := range m.resolvers {
			namespace := row.Namespace
			if !row.Declared {
				namespace = "(runtime)"
			}
			rows = append(rows, table.Row{string(row.Kind), row.Name, namespace, yesNo(row.Active), strings.Join(row.RuntimeNames, ", ")})
			keys = append(keys, row.Key())
		}
	case viewServices:
		for _, row := range m.services {
			rows = append(rows, table.Row{
				row.Name,
				row.Type,
				strconv.FormatFloat(row.Weight, 'f', -1, 64),
				row.Health,
				fallbackText(row.Prefix, row.Mapping),
			})
			keys = append(keys, row.Name)
		}
	case viewRoutes:
		for _, row := range m.routes {
			url := row.URL
			if row.Internal {
				url += " (internal)"
			}
			targets := make([]string, 0, len(row.Targets))
			for _, target := range row.Targets {
				targets = append(targets, target.Service+" "+target.Weight)
			}
			rows = append(rows, table.Row{url, strings.Join(row.Headers, ", "), strings.Join(targets, ", ")})
			keys = append(keys, row.URL)
		}
	case viewAPIDocs:
		for _, doc := range m.apiDocs {
			rows = append(rows, table.Row{doc.Namespace, doc.Name, doc.Prefix, yesNo(doc.HasDoc)})
			keys = append(keys, doc.Namespace+"/"+doc.Name)
		}
	case viewActivity:
		for _, event := range m.activity {
			rows = append(rows, table.Row{
				event.CreatedAt.Local().Format("01-02 15:04:05"),
				event.Action,
				activityTarget(event),
				event.Outcome,
			})
			keys = append(keys, event.ID)
		}
	}
	return rows, keys
}

func resourceState(view resource.View) string {
	switch {
	case view.Busy():
		return "working"
	case view.DecodeError() != nil:
		return "invalid"
	case view.Mode() == resource.ModeEdit:
		return "editing"
	case view.ReadOnly():
		return "read only"
	}
	if view.Kind() == snapshot.KindHost {
		return panels.HostState(view.Resource())
	}
	return ""
}

func (m model) renderPanel(t theme, width int) string {
	switch m.activeView {
	case viewDebugging:
		return m.renderDebugging(t, width)
	case viewHelp:
		return renderHelp(t)
	}

	var intro string
	switch {
	case m.activeView == viewAPIDocs:
		intro = "enter shows an API document, r reloads the list"
	case m.activeView == viewActivity:
		intro = "changes made from this console, newest first"
	case m.snap == nil:
		intro = m.spinner.View() + " waiting for the first snapshot"
	case m.activeView.editable():
		intro = "e edit, a add, d delete, y yaml, s sort"
		if sortBy := m.collections[m.activeView].SortBy(); sortBy != "" {
			intro += " (sorted by " + sortBy + ")"
		}
	case m.diag == nil:
		intro = "diagnostics are not available yet"
	default:
		intro = "read only, joined from the snapshot and diagnostics"
	}
	lines := []string{t.panelSubtle.Render(trimToWidth(intro, width)), "", m.table.View()}
	if len(m.rowKeys) == 0 {
		lines = append(lines, t.panelSubtle.Render("  nothing to show"))
	}
	if m.confirmDelete != "" {
		lines = append(lines, "", t.panelWarn.Render("delete "+m.confirmDelete+"? press d again to confirm"))
	}
	return strings.Join(lines, "\n")
}

func formTitle(view resource.View) string {
	if view.Mode() == resource.ModeAdd {
		return "New " + string(view.Kind())
	}
	return "Edit " + view.Resource().Ref()
}

func (m model) renderForm(t theme, width int) string {
	view := m.form.view
	labelWidth := 26
	lines := make([]string, 0, 16)
	for i, field := range formFields(view) {
		focused := i == m.form.index
		label := t.fieldLabel.Render(padRight(field.Label, labelWidth))
		if focused {
			label = t.fieldFocused.Render(padRight("› "+field.Label, labelWidth))
		}
		var value string
		switch {
		case field.Kind == resource.FieldBool:
			value = "[ ]"
			if view.Inputs().Bool(field.Name) {
				value = "[x]"
			}
			value = t.fieldValue.Render(value)
		case focused:
			value = m.input.View()
		default:
			value = t.fieldValue.Render(trimToWidth(toInputLine(view.Input(field.Name)), maxInt(8, width-labelWidth)))
		}
		lines = append(lines, label+value)
		if field.Name == panels.HostFieldTOSAgree && m.tos.URL != "" {
			lines = append(lines, t.panelSubtle.Render(padRight("", labelWidth)+"terms of service: "+m.tos.Domain))
		}
	}

	lines = append(lines, "")
	if view.Busy() {
		lines = append(lines, t.panelWarn.Render(m.spinner.View()+" saving"))
	}
	for _, message := range view.Validate() {
		lines = append(lines, t.panelWarn.Render("• "+message))
	}
	for _, message := range view.Messages() {
		lines = append(lines, t.panelError.Render(trimToWidth(message, width)))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderDebugging(t theme, width int) string {
	info := panels.Debugging(m.snap, m.diag)
	if !info.Available {
		return t.panelSubtle.Render(m.spinner.View() + " waiting for diagnostics")
	}
	lines := []string{t.panelTitle.Render("System")}
	for _, item := range info.System {
		lines = append(lines, labelValue(t, item.Label, item.Value))
	}
	lines = append(lines,
		labelValue(t, "envoy", info.Envoy),
		labelValue(t, "log level", fallbackText(info.LogLevel, "unknown")+"  (l toggles debug)"),
		"",
	)
	if info.EnvGood {
		lines = append(lines, t.panelSuccess.Render("Environment looks good"))
	} else {
		lines = append(lines, t.panelWarn.Render("Environment checks"))
	}
	for _, check := range info.EnvChecks {
		mark := t.panelSuccess.Render("ok  ")
		if !check.OK {
			mark = t.panelError.Render("fail")
		}
		lines = append(lines, mark+" "+check.Name)
		for _, specific := range check.Specifics {
			if !specific.OK {
				lines = append(lines, "     "+t.panelSubtle.Render(trimToWidth(specific.Text, width-5)))
			}
		}
	}
	if len(info.License) > 0 {
		lines = append(lines, "", t.panelWarn.Render("License"))
		for _, item := range info.License {
			lines = append(lines, labelValue(t, item.Label, item.Value))
		}
	}
	if len(info.Errors) > 0 {
		lines = append(lines, "", t.panelError.Render(plural(len(info.Errors), "configuration error")+", see inspector"))
	}
	return strings.Join(lines, "\n")
}

func renderHelp(t theme) string {
	var lines []string
	for _, section := range panels.Help() {
		lines = append(lines, t.panelTitle.Render(section.Title))
		lines = append(lines, section.Lines...)
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// inspectorText is the detail for whatever the workbench has selected.
func (m model) inspectorText() string {
	if m.activeView.protected() && !m.authorized() {
		return "access: " + m.gateResult.State.String()
	}
	if m.form.view != nil {
		return m.formInspectorText()
	}
	cursor := m.table.Cursor()
	switch m.activeView {
	case viewHosts, viewMappings, viewRateLimits, viewFilters, viewPolicies:
		view, ok := m.selectedView()
		if !ok {
			return "select a resource"
		}
		return m.resourceInspectorText(view)
	case viewResolvers:
		if cursor < 0 || cursor >= len(m.resolvers) {
			return "no resolvers"
		}
		row := m.resolvers[cursor]
		lines := []string{
			"kind       " + string(row.Kind),
			"name       " + row.Name,
			"namespace  " + fallbackText(row.Namespace, "n/a"),
			"declared   " + yesNo(row.Declared),
			"active     " + yesNo(row.Active),
		}
		if row.SourceURI != "" {
			lines = append(lines, "source     "+row.SourceURI)
		}
		if len(row.RuntimeNames) > 0 {
			lines = append(lines, "", "Runtime names")
			lines = append(lines, row.RuntimeNames...)
		}
		return strings.Join(lines, "\n")
	case viewServices:
		if cursor < 0 || cursor >= len(m.services) {
			return "no services"
		}
		row := m.services[cursor]
		return strings.Join([]string{
			"service    " + row.Name,
			"cluster    " + row.Cluster,
			"type       " + fallbackText(row.Type, "n/a"),
			"weight     " + strconv.FormatFloat(row.Weight, 'f', -1, 64),
			"health     " + row.Health,
			fmt.Sprintf("healthy    %.0f%%", row.Healthy),
			"mapping    " + fallbackText(row.Mapping, "not declared"),
			"prefix     " + fallbackText(row.Prefix, "n/a"),
		}, "\n")
	case viewRoutes:
		if cursor < 0 || cursor >= len(m.routes) {
			return "no routes"
		}
		row := m.routes[cursor]
		lines := []string{"url        " + row.URL}
		if row.Precedence != 0 {
			lines = append(lines, fmt.Sprintf("precedence %d", row.Precedence))
		}
		if len(row.Headers) > 0 {
			lines = append(lines, "", "Headers")
			lines = append(lines, row.Headers...)
		}
		lines = append(lines, "", "Targets")
		for _, target := range row.Targets {
			lines = append(lines, target.Service+"  "+target.Weight)
		}
		return strings.Join(lines, "\n")
	case viewAPIDocs:
		if m.apiDoc == nil {
			return "press enter on a service to read its API document"
		}
		summary := m.apiDoc.summary
		lines := []string{
			"service    " + m.apiDoc.doc.Namespace + "/" + m.apiDoc.doc.Name,
			"title      " + fallbackText(summary.Title, "untitled"),
			"version    " + fallbackText(summary.Version, "n/a"),
			"",
			plural(len(summary.Operations), "operation"),
		}
		return strings.Join(append(lines, summary.Operations...), "\n")
	case viewActivity:
		if cursor < 0 || cursor >= len(m.activity) {
			return "no console activity recorded yet"
		}
		event := m.activity[cursor]
		lines := []string{
			"action     " + event.Action,
			"resource   " + activityTarget(event),
			"outcome    " + event.Outcome,
			"at         " + event.CreatedAt.Local().Format(time.RFC3339),
		}
		if event.Duration > 0 {
			lines = append(lines, "took       "+event.Duration.String())
		}
		if event.Detail != "" {
			lines = append(lines, "", event.Detail)
		}
		return strings.Join(lines, "\n")
	case viewDebugging:
		if m.diag == nil || len(m.diag.Errors) == 0 {
			return "no configuration errors"
		}
		lines := []string{"Configuration errors", ""}
		for _, item := range m.diag.Errors {
			lines = append(lines, fallbackText(item.Target, "(global)"), "  "+item.Message)
		}
		return strings.Join(lines, "\n")
	default:
		lines := []string{
			"access     " + m.gateResult.State.String(),
			"backend    " + m.deps.Config.BaseURL,
		}
		if m.diag != nil && m.diag.System.ClusterID != "" {
			lines = append(lines, "cluster    "+m.diag.System.ClusterID)
		}
		if m.health != nil {
			lines = append(lines, "health     "+m.health.Overall)
			for _, component := range m.health.Components {
				lines = append(lines, "  "+component.Name+" "+component.State)
			}
		}
		return strings.Join(lines, "\n")
	}
}

func (m model) resourceInspectorText(view resource.View) string {
	res := view.Resource()
	if m.showYAML {
		out, err := yaml.JSONToYAML(res.Raw)
		if err != nil {
			return "render yaml: " + err.Error()
		}
		return string(out)
	}
	lines := []string{
		"kind       " + string(res.Kind),
		"name       " + res.Name(),
		"namespace  " + res.Namespace(),
	}
	if res.Kind == snapshot.KindHost {
		state := panels.HostState(res)
		lines = append(lines, "state      "+m.theme.hostState(res.StatusField("state")).Render(state))
	}
	if view.ReadOnly() {
		lines = append(lines, "", m.theme.readOnly.Render("read only: "+fallbackText(view.SourceURI(), "managed outside the console")))
	}
	if err := view.DecodeError(); err != nil {
		lines = append(lines, "", "cannot decode: "+err.Error())
	}
	if summary := view.Summary(); len(summary) > 0 {
		lines = append(lines, "")
		lines = append(lines, summary...)
	}
	if messages := view.Messages(); len(messages) > 0 {
		lines = append(lines, "")
		lines = append(lines, messages...)
	}
	return strings.Join(lines, "\n")
}

func (m model) formInspectorText() string {
	view := m.form.view
	if !m.showYAML {
		lines := []string{"ctrl+y previews the YAML save submits"}
		if view.Mode() == resource.ModeEdit {
			lines = append(lines, "", "Current")
			lines = append(lines, view.Summary()...)
		}
		if m.tos.URL != "" {
			lines = append(lines, "", "Terms of service", m.tos.URL)
		}
		return strings.Join(lines, "\n")
	}
	out, diff, err := view.MergedYAML()
	if err != nil {
		return "cannot render: " + err.Error()
	}
	lines := []string{string(out)}
	if changes := diff.Visible(); len(changes) > 0 {
		lines = append(lines, "Changes")
		for _, change := range changes {
			lines = append(lines, m.theme.diffChange(change.Change).Render(fmt.Sprintf("%-8s %s", change.Change, change.Path)))
		}
	}
	return strings.Join(lines, "\n")
}

func activityTarget(event store.ActivityEvent) string {
	if event.Name == "" {
		return fallbackText(event.ResourceKind, "-")
	}
	return fmt.Sprintf("%s %s/%s", event.ResourceKind, fallbackText(event.Namespace, snapshot.DefaultNamespace), event.Name)
}

func labelValue(t theme, label, value string) string {
	return t.fieldLabel.Render(padRight(label, 18)) + fallbackText(value, "n/a")
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value + " "
	}
	return value + strings.Repeat(" ", width-len(value))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
