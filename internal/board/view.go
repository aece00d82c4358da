package board

import (
	"time"

	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/grid"
	"github.com/i474232898/tripcast/internal/weather"
)

// SaveState is the progress of saving a row into a list.
type SaveState string

const (
	SaveIdle      SaveState = "idle"
	SaveInFlight  SaveState = "saving"
	SaveSucceeded SaveState = "saved"
	SaveFailed    SaveState = "failed"
)

const (
	labelIdle      = "Add to list?"
	labelInFlight  = "Adding…"
	labelSucceeded = "Added"
	labelDuplicate = "Already in list"
	labelFailed    = "Could not add"
)

// SaveStatus is the save state of one row and the label to show for it.
type SaveStatus struct {
	State SaveState `json:"state"`
	Kind  string    `json:"kind,omitempty"`
	Label string    `json:"label"`
}

func newStatus(state SaveState, kind string) SaveStatus {
	st := SaveStatus{State: state, Kind: kind}
	switch state {
	case SaveInFlight:
		st.Label = labelInFlight
	case SaveSucceeded:
		st.Label = labelSucceeded
	case SaveFailed:
		if kind == "duplicate" {
			st.Label = labelDuplicate
		} else {
			st.Label = labelFailed
		}
	default:
		st.Label = labelIdle
	}
	return st
}

func statusFor(err error) SaveStatus {
	switch {
	case err == nil:
		return newStatus(SaveSucceeded, "")
	case backend.IsDuplicate(err):
		return newStatus(SaveFailed, "duplicate")
	default:
		return newStatus(SaveFailed, backend.KindOf(err).String())
	}
}

// Cell is one day of one row.
type Cell struct {
	DateKey string                  `json:"dateKey"`
	Day     *weather.ForecastPeriod `json:"day"`
	Night   *weather.ForecastPeriod `json:"night"`
}

// Row is one location of the grid, laid out against the board columns.
type Row struct {
	Key        string             `json:"key"`
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Longitude  float64            `json:"lon"`
	Latitude   float64            `json:"lat"`
	Provenance weather.Provenance `json:"source,omitempty"`
	// Aligned is false when the row's own dates do not start with the
	// board columns; its cells then show gaps where dates are missing.
	Aligned bool       `json:"aligned"`
	Cells   []Cell     `json:"cells"`
	Save    SaveStatus `json:"save"`
}

// View is a render-ready snapshot of a board.
type View struct {
	ID         string     `json:"id"`
	Version    uint64     `json:"version"`
	Loading    bool       `json:"loading"`
	Window     grid.State `json:"window"`
	Rows       []Row      `json:"rows"`
	Selected   *Row       `json:"selected,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastActive time.Time  `json:"lastActive"`
}

// View lays the current rows out against the board columns.
func (b *Board) View() View {
	b.syncMu.Lock()
	snap := b.store.Snapshot()
	st := b.window.SetColumns(grid.ReferenceColumns(snap.Entries))
	b.syncMu.Unlock()

	b.savesMu.Lock()
	saves := make(map[string]SaveStatus, len(b.saves))
	for k, v := range b.saves {
		saves[k] = v
	}
	b.savesMu.Unlock()

	rows := make([]Row, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		row := layoutRow(e, st.Columns)
		if s, ok := saves[row.Key]; ok {
			row.Save = s
		}
		rows = append(rows, row)
	}

	v := View{
		ID:         b.id,
		Version:    snap.Version,
		Loading:    st.Loading,
		Window:     st,
		Rows:       rows,
		CreatedAt:  b.createdAt,
		LastActive: b.LastActive(),
	}
	if sel, ok := b.selection.Current(); ok {
		row := layoutRow(sel, st.Columns)
		v.Selected = &row
	}
	return v
}

func layoutRow(e weather.Entry, columns []grid.DayColumn) Row {
	byDate := grid.ByDate(e.Forecast)
	cells := make([]Cell, 0, len(columns))
	for _, col := range columns {
		slots := byDate[col.DateKey]
		cells = append(cells, Cell{DateKey: col.DateKey, Day: slots.Day, Night: slots.Night})
	}
	return Row{
		Key:        e.Key(),
		ID:         e.ID,
		Name:       e.Name,
		Longitude:  e.Longitude,
		Latitude:   e.Latitude,
		Provenance: e.Provenance,
		Aligned:    grid.Aligned(e.Forecast, columns),
		Cells:      cells,
		Save:       newStatus(SaveIdle, ""),
	}
}
