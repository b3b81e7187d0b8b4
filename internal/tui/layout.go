package tui

const (
	compactWidthBreakpoint  = 100
	compactHeightBreakpoint = 24
)

type uiLayout struct {
	Width  int
	Height int

	Compact bool

	HeaderHeight int
	FooterHeight int
	BodyHeight   int

	SidebarWidth   int
	MainWidth      int
	InspectorWidth int

	// Compact layouts stack the panel strip, the workbench and the
	// inspector vertically.
	CompactNavHeight       int
	CompactMainHeight      int
	CompactInspectorHeight int
}

func computeLayout(width, height int) uiLayout {
	if width < 40 {
		width = 40
	}
	if height < 16 {
		height = 16
	}

	layout := uiLayout{
		Width:        width,
		Height:       height,
		HeaderHeight: 3,
		FooterHeight: 4,
	}

	layout.Compact = width < compactWidthBreakpoint || height < compactHeightBreakpoint
	if layout.Compact {
		layout.SidebarWidth = width
		layout.MainWidth = width
		layout.InspectorWidth = width
		remaining := maxInt(7, height-layout.HeaderHeight-layout.FooterHeight)
		layout.CompactNavHeight = 2
		remaining -= layout.CompactNavHeight
		if remaining < 6 {
			remaining = 6
		}
		layout.CompactInspectorHeight = maxInt(4, remaining/3)
		layout.CompactMainHeight = maxInt(5, remaining-layout.CompactInspectorHeight)
		layout.BodyHeight = layout.CompactMainHeight
		return layout
	}

	layout.BodyHeight = maxInt(6, height-layout.HeaderHeight-layout.FooterHeight)
	layout.SidebarWidth = clampInt(width*16/100, 18, 26)
	layout.InspectorWidth = clampInt(width*34/100, 32, 60)
	layout.MainWidth = maxInt(30, width-layout.SidebarWidth-layout.InspectorWidth-2)
	return layout
}

// tableHeight is the number of rows the workbench table can show.
func (l uiLayout) tableHeight() int {
	return maxInt(3, l.BodyHeight-6)
}

func (l uiLayout) tableWidth() int {
	if l.Compact {
		return maxInt(20, l.Width-4)
	}
	return maxInt(20, l.MainWidth-4)
}

func (l uiLayout) inspectorSize() (int, int) {
	if l.Compact {
		return maxInt(20, l.Width-4), maxInt(2, l.CompactInspectorHeight-2)
	}
	return maxInt(20, l.InspectorWidth-4), maxInt(2, l.BodyHeight-2)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
