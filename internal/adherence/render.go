package adherence

import "fmt"

// FutureClass marks placeholder cells after today.
const FutureClass = "future-date"

// TooltipDateLayout matches the short date the web client shows on hover.
const TooltipDateLayout = "Mon Jan 02 2006"

// Weekdays labels the grid rows.
var Weekdays = [DaysPerWeek]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// CellView is the display mapping of a single cell.
type CellView struct {
	Date        string   `json:"date"`
	Class       string   `json:"class"`
	Tier        Tier     `json:"tier"`
	Tooltip     []string `json:"tooltip,omitempty"`
	Placeholder bool     `json:"placeholder"`
}

// RowView is one weekday of the rendered grid.
type RowView struct {
	Label string     `json:"label"`
	Cells []CellView `json:"cells"`
}

// View is a grid ready to be drawn; it is derived from Grid and never mutated.
type View struct {
	Weeks int       `json:"weeks"`
	Rows  []RowView `json:"rows"`
}

// Render maps every cell to its class and tooltip lines.
func Render(g Grid) View {
	v := View{Weeks: g.Weeks, Rows: make([]RowView, DaysPerWeek)}
	for d := 0; d < DaysPerWeek; d++ {
		cells := make([]CellView, len(g.Rows[d]))
		for w, c := range g.Rows[d] {
			cells[w] = RenderCell(c)
		}
		v.Rows[d] = RowView{Label: Weekdays[d], Cells: cells}
	}
	return v
}

// RenderCell maps one cell. Future cells are bare placeholders: no tooltip
// and no tier class.
func RenderCell(c Cell) CellView {
	cv := CellView{
		Date: c.Date.Format(DateLayout),
		Tier: c.Tier(),
	}
	switch c.Status {
	case StatusFuture:
		cv.Class = FutureClass
		cv.Placeholder = true
	case StatusNoData:
		cv.Class = TierNone.CSSClass()
		cv.Tooltip = []string{c.Date.Format(TooltipDateLayout) + ": no data"}
	default:
		cv.Class = cv.Tier.CSSClass()
		cv.Tooltip = []string{
			c.Date.Format(TooltipDateLayout),
			fmt.Sprintf("%d medication(s) missed", c.Missed),
		}
	}
	return cv
}
