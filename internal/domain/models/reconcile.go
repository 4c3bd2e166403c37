package models

// ReconcileSummary counts records removed by one orphan sweep.
type ReconcileSummary struct {
	SlotsRemoved           int `json:"slots_removed"`
	MediaRemoved           int `json:"media_entries_removed"`
	CalendarEntriesRemoved int `json:"calendar_entries_removed"`
}

func (s ReconcileSummary) Total() int {
	return s.SlotsRemoved + s.MediaRemoved + s.CalendarEntriesRemoved
}

func (s *ReconcileSummary) Add(o ReconcileSummary) {
	s.SlotsRemoved += o.SlotsRemoved
	s.MediaRemoved += o.MediaRemoved
	s.CalendarEntriesRemoved += o.CalendarEntriesRemoved
}
