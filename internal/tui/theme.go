package tui

import (
	"charm.land/lipgloss/v2"

	"github.com/dwizi/edge-console/internal/resource"
)

type theme struct {
	appBG lipgloss.Style

	brand lipgloss.Style

	headerBox lipgloss.Style
	headerSub lipgloss.Style

	sidebarBox      lipgloss.Style
	sidebarTitle    lipgloss.Style
	sidebarItem     lipgloss.Style
	sidebarActive   lipgloss.Style
	sidebarInactive lipgloss.Style

	panelBox     lipgloss.Style
	panelTitle   lipgloss.Style
	panelSubtle  lipgloss.Style
	panelWarn    lipgloss.Style
	panelError   lipgloss.Style
	panelSuccess lipgloss.Style

	footerBox  lipgloss.Style
	footerInfo lipgloss.Style
	footerErr  lipgloss.Style
	footerWarn lipgloss.Style
	footerOK   lipgloss.Style

	chipInfo    lipgloss.Style
	chipWarn    lipgloss.Style
	chipError   lipgloss.Style
	chipSuccess lipgloss.Style

	fieldLabel   lipgloss.Style
	fieldFocused lipgloss.Style
	fieldValue   lipgloss.Style

	gateBox lipgloss.Style

	// Inspector detail: host states, read-only notes and merge diffs.
	stateReady   lipgloss.Style
	statePending lipgloss.Style
	stateError   lipgloss.Style
	readOnly     lipgloss.Style
	diffUpdated  lipgloss.Style
	diffReplaced lipgloss.Style

	spinner lipgloss.Style
}

func newTheme() theme {
	border := lipgloss.Color("238")
	text := lipgloss.Color("252")
	bright := lipgloss.Color("255")
	muted := lipgloss.Color("246")
	subtle := lipgloss.Color("243")
	accent := lipgloss.Color("111")
	success := lipgloss.Color("78")
	warn := lipgloss.Color("214")
	danger := lipgloss.Color("203")

	return theme{
		appBG: lipgloss.NewStyle().Foreground(text),
		brand: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		headerBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(border).
			Padding(0, 1),
		headerSub: lipgloss.NewStyle().Foreground(muted),

		sidebarBox:   lipgloss.NewStyle().Padding(0, 1),
		sidebarTitle: lipgloss.NewStyle().Bold(true).Foreground(accent),
		sidebarItem: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		sidebarActive: lipgloss.NewStyle().
			Bold(true).
			Foreground(bright).
			Underline(true).
			Padding(0, 1),
		sidebarInactive: lipgloss.NewStyle().Foreground(subtle),

		panelBox:     lipgloss.NewStyle().Padding(0, 1),
		panelTitle:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		panelSubtle:  lipgloss.NewStyle().Foreground(muted),
		panelWarn:    lipgloss.NewStyle().Foreground(warn),
		panelError:   lipgloss.NewStyle().Foreground(danger),
		panelSuccess: lipgloss.NewStyle().Foreground(success),

		footerBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(border).
			Padding(0, 1),
		footerInfo: lipgloss.NewStyle().Foreground(text),
		footerErr:  lipgloss.NewStyle().Bold(true).Foreground(danger),
		footerWarn: lipgloss.NewStyle().Bold(true).Foreground(warn),
		footerOK:   lipgloss.NewStyle().Bold(true).Foreground(success),

		chipInfo:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		chipWarn:    lipgloss.NewStyle().Bold(true).Foreground(warn),
		chipError:   lipgloss.NewStyle().Bold(true).Foreground(danger),
		chipSuccess: lipgloss.NewStyle().Bold(true).Foreground(success),

		fieldLabel:   lipgloss.NewStyle().Foreground(muted),
		fieldFocused: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147")),
		fieldValue:   lipgloss.NewStyle().Foreground(bright),

		gateBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warn).
			Padding(1, 2),

		stateReady:   lipgloss.NewStyle().Bold(true).Foreground(success),
		statePending: lipgloss.NewStyle().Foreground(warn),
		stateError:   lipgloss.NewStyle().Bold(true).Foreground(danger),
		readOnly:     lipgloss.NewStyle().Italic(true).Foreground(muted),
		diffUpdated:  lipgloss.NewStyle().Foreground(lipgloss.Color("151")),
		diffReplaced: lipgloss.NewStyle().Foreground(warn),

		spinner: lipgloss.NewStyle().Bold(true).Foreground(warn),
	}
}

// hostState picks the style for a Host status.state value.
func (t theme) hostState(state string) lipgloss.Style {
	switch state {
	case "Ready":
		return t.stateReady
	case "Error":
		return t.stateError
	case "":
		return t.panelSubtle
	default:
		return t.statePending
	}
}

func (t theme) diffChange(change resource.Change) lipgloss.Style {
	if change == resource.ChangeReplaced {
		return t.diffReplaced
	}
	return t.diffUpdated
}
