package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/lipgloss/v2"

	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/heartbeat"
)

func (m model) renderView() string {
	if m.quitting {
		return "edge console closed\n"
	}

	t := newTheme()
	layout := computeLayout(m.width, m.height)
	if layout.Compact {
		return m.renderCompactView(t, layout)
	}

	header := m.renderHeader(t, layout)
	sidebar := m.renderSidebar(t, layout)
	workbench := m.renderWorkbench(t, layout)
	inspector := m.renderInspector(t, layout)
	footer := m.renderFooter(t, layout)

	sep := t.panelSubtle.Render("│")
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, sep, workbench, sep, inspector)
	ui := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	return t.appBG.Width(layout.Width).Height(layout.Height).Render(ui)
}

func (m model) renderCompactView(t theme, layout uiLayout) string {
	header := m.renderHeader(t, layout)
	nav := m.renderSidebar(t, layout)
	main := m.renderWorkbench(t, layout)
	inspector := m.renderInspector(t, layout)
	footer := m.renderFooter(t, layout)

	content := lipgloss.JoinVertical(lipgloss.Left, header, nav, main, inspector, footer)
	return t.appBG.Width(layout.Width).Height(layout.Height).Render(content)
}

func (m model) renderHeader(t theme, layout uiLayout) string {
	style := sizedStyle(t.headerBox, layout.Width, layout.HeaderHeight)
	contentWidth := innerWidth(t.headerBox, layout.Width)

	left := t.brand.Render("Edge Console")
	if m.deps.Version != "" {
		left += t.headerSub.Render(" " + m.deps.Version)
	}
	line1 := fillLine(left, m.statusChip(t), contentWidth)

	fetched := "waiting for first snapshot"
	if m.snap != nil {
		fetched = fmt.Sprintf("%d resources | snapshot %s", m.snap.Count(), m.snap.FetchedAt.Local().Format("15:04:05"))
	}
	line2 := fillLine(
		t.headerSub.Render(trimToWidth("backend "+fallbackText(m.deps.Config.BaseURL, "unset"), maxInt(20, contentWidth/2))),
		t.headerSub.Render(trimToWidth(fetched, maxInt(20, contentWidth/2))),
		contentWidth,
	)
	return style.Render(line1 + "\n" + line2)
}

func (m model) statusChip(t theme) string {
	switch {
	case m.busy():
		return t.chipWarn.Render(m.spinner.View() + " BUSY")
	case m.gateResult.State == auth.StateLoading:
		return t.chipInfo.Render(m.spinner.View() + " CHECKING ACCESS")
	case m.gateResult.State != auth.StateAuthorized:
		return t.chipError.Render("LOCKED")
	case m.health != nil && heartbeat.IsDegradedState(m.health.Overall):
		return t.chipWarn.Render(strings.ToUpper(m.health.Overall))
	case m.snap == nil:
		return t.chipInfo.Render(m.spinner.View() + " SYNCING")
	default:
		return t.chipSuccess.Render("READY")
	}
}

func (m model) renderSidebar(t theme, layout uiLayout) string {
	style := t.sidebarBox

	if layout.Compact {
		room := innerWidth(style, layout.Width)
		items := make([]string, 0, len(allViews()))
		used := 0
		for i, view := range allViews() {
			label := fmt.Sprintf("%d:%s", (i+1)%10, viewLabel(view))
			if used+len(label) > room {
				break
			}
			used += len(label) + 1
			if view == m.activeView {
				label = t.sidebarActive.Render(label)
			} else {
				label = t.sidebarItem.Render(label)
			}
			items = append(items, label)
		}
		return sizedStyle(style, layout.Width, layout.CompactNavHeight).Render(strings.Join(items, " "))
	}

	lines := []string{t.sidebarTitle.Render("Panels"), ""}
	for index, view := range allViews() {
		cursor := " "
		if view == m.activeView {
			cursor = ">"
		}
		label := fmt.Sprintf("%s %d. %s", cursor, (index+1)%10, viewLabel(view))
		itemStyle := t.sidebarItem
		switch {
		case view == m.activeView:
			itemStyle = t.sidebarActive
		case view.protected() && !m.authorized():
			itemStyle = t.sidebarInactive
		}
		lines = append(lines, itemStyle.Render(trimToWidth(label, innerWidth(t.sidebarBox, layout.SidebarWidth)-2)))
	}
	lines = append(lines, "", t.sidebarInactive.Render("tab: next panel"), t.sidebarInactive.Render("?: all keys"))

	return sizedStyle(style, layout.SidebarWidth, layout.BodyHeight).Render(strings.Join(lines, "\n"))
}

func (m model) renderWorkbench(t theme, layout uiLayout) string {
	bodyWidth := layout.MainWidth
	bodyHeight := layout.BodyHeight
	if layout.Compact {
		bodyWidth = layout.Width
		bodyHeight = layout.CompactMainHeight
	}
	style := t.panelBox
	width := innerWidth(style, bodyWidth)

	title := viewLabel(m.activeView)
	var content string
	switch {
	case m.activeView.protected() && !m.authorized():
		content = m.renderGate(t, width)
	case m.form.view != nil:
		title = formTitle(m.form.view)
		content = m.renderForm(t, width)
	default:
		content = m.renderPanel(t, width)
	}

	header := fillLine(t.panelTitle.Render(title), t.panelSubtle.Render(viewSubtitle(m.activeView)), width)
	return sizedStyle(style, bodyWidth, bodyHeight).Render(header + "\n\n" + content)
}

// renderGate replaces protected content until access is confirmed.
func (m model) renderGate(t theme, width int) string {
	if m.gateResult.State == auth.StateLoading {
		return t.panelSubtle.Render(m.spinner.View() + " checking access to the admin API")
	}
	lines := []string{auth.Message}
	if m.gateResult.Detail != "" {
		lines = append(lines, "", t.panelError.Render(m.gateResult.Detail))
	}
	return t.gateBox.Width(maxInt(20, width-2)).Render(strings.Join(lines, "\n"))
}

func (m model) renderInspector(t theme, layout uiLayout) string {
	width := layout.InspectorWidth
	height := layout.BodyHeight
	if layout.Compact {
		width = layout.Width
		height = layout.CompactInspectorHeight
	}
	title := "Inspector"
	if m.showYAML {
		title = "YAML"
	}
	style := t.panelBox
	head := fillLine(t.panelTitle.Render(title), t.panelSubtle.Render(string(m.activeView)), innerWidth(style, width))
	return sizedStyle(style, width, height).Render(head + "\n" + m.inspector.View())
}

func (m model) renderFooter(t theme, layout uiLayout) string {
	style := t.footerBox
	width := innerWidth(style, layout.Width)

	var keys help.KeyMap = m.keys
	if m.form.view != nil {
		keys = formKeyMap{keys: m.keys}
	}
	helpLine := t.footerInfo.Render(m.help.View(keys))

	status := "status: " + fallbackText(m.statusText, "idle")
	statusStyled := t.footerOK.Render(trimToWidth(status, width))
	if m.busy() {
		statusStyled = t.footerWarn.Render(trimToWidth(status, width))
	}
	if strings.TrimSpace(m.errorText) != "" {
		statusStyled = t.footerErr.Render(trimToWidth("error: "+m.errorText, width))
	}
	return sizedStyle(style, layout.Width, layout.FooterHeight).Render(helpLine + "\n" + statusStyled)
}

func fillLine(left, right string, width int) string {
	if width <= 0 {
		return strings.TrimSpace(left + " " + right)
	}
	lw := lipgloss.Width(left)
	rw := lipgloss.Width(right)
	if lw+rw+1 > width {
		return trimToWidth(left+" "+right, width)
	}
	return left + strings.Repeat(" ", width-lw-rw) + right
}

func trimToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= width {
		return string(runes)
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func sizedStyle(style lipgloss.Style, width, height int) lipgloss.Style {
	contentWidth := maxInt(1, width-style.GetHorizontalFrameSize())
	contentHeight := maxInt(1, height-style.GetVerticalFrameSize())
	return style.Width(contentWidth).Height(contentHeight)
}

func innerWidth(style lipgloss.Style, width int) int {
	return maxInt(1, width-style.GetHorizontalFrameSize())
}

func fallbackText(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func plural(count int, noun string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
