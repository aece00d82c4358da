package grid

import (
	"slices"
	"sync"
)

const (
	// DefaultDayWidth is the rendered width of one day column, in pixels.
	DefaultDayWidth = 160
	// DefaultMaxVisibleDays caps how many columns are shown at once.
	DefaultMaxVisibleDays = 5
)

// Config sizes a Window.
type Config struct {
	DayWidth       int
	MaxVisibleDays int
}

// State is a point-in-time view of a Window.
type State struct {
	Loading     bool        `json:"loading"`
	Offset      int         `json:"offset"`
	WindowDays  int         `json:"windowDays"`
	MaxOffset   int         `json:"maxOffset"`
	ColumnCount int         `json:"columnCount"`
	CanPrev     bool        `json:"canPrev"`
	CanNext     bool        `json:"canNext"`
	ScrollX     int         `json:"scrollX"`
	Columns     []DayColumn `json:"columns"`
	Visible     []DayColumn `json:"visible"`
}

// Window slides a fixed number of visible day columns over the full column
// set. Offset always stays within [0, MaxOffset].
type Window struct {
	mu      sync.Mutex
	cfg     Config
	width   int
	columns []DayColumn
	offset  int
}

// NewWindow creates a Window with no columns and unknown width.
func NewWindow(cfg Config) *Window {
	if cfg.DayWidth <= 0 {
		cfg.DayWidth = DefaultDayWidth
	}
	if cfg.MaxVisibleDays <= 0 {
		cfg.MaxVisibleDays = DefaultMaxVisibleDays
	}
	return &Window{cfg: cfg}
}

// SetColumns replaces the column set. A different sequence of date keys
// resets the offset to 0; otherwise the offset is only clamped.
func (w *Window) SetColumns(cols []DayColumn) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !sameKeys(w.columns, cols) {
		w.offset = 0
	}
	w.columns = slices.Clone(cols)
	w.clamp()
	return w.state()
}

// Resize records the available rendering width in pixels. Zero means
// unknown, in which case the maximum number of days is shown.
func (w *Window) Resize(width int) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	if width < 0 {
		width = 0
	}
	w.width = width
	w.clamp()
	return w.state()
}

// Next moves the window one day forward.
func (w *Window) Next() State {
	return w.shift(1)
}

// Prev moves the window one day back.
func (w *Window) Prev() State {
	return w.shift(-1)
}

// State returns the current window state.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state()
}

func (w *Window) shift(delta int) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.offset += delta
	w.clamp()
	return w.state()
}

func (w *Window) visibleDays() int {
	if w.width == 0 {
		return w.cfg.MaxVisibleDays
	}
	return min(w.width/w.cfg.DayWidth, w.cfg.MaxVisibleDays)
}

func (w *Window) windowDays() int {
	return max(1, min(w.visibleDays(), len(w.columns)))
}

func (w *Window) maxOffset() int {
	return max(0, len(w.columns)-w.windowDays())
}

func (w *Window) clamp() {
	w.offset = max(0, min(w.offset, w.maxOffset()))
}

func (w *Window) state() State {
	days := w.windowDays()
	maxOffset := w.maxOffset()

	end := min(w.offset+days, len(w.columns))
	visible := slices.Clone(w.columns[w.offset:end])

	return State{
		Loading:     len(w.columns) == 0,
		Offset:      w.offset,
		WindowDays:  days,
		MaxOffset:   maxOffset,
		ColumnCount: len(w.columns),
		CanPrev:     w.offset > 0,
		CanNext:     w.offset < maxOffset,
		ScrollX:     w.offset * w.cfg.DayWidth,
		Columns:     slices.Clone(w.columns),
		Visible:     visible,
	}
}

func sameKeys(a, b []DayColumn) bool {
	return slices.EqualFunc(a, b, func(x, y DayColumn) bool {
		return x.DateKey == y.DateKey
	})
}
