package tle

import "time"

// Entry is a single satellite's two-line element set.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange is the minimum and maximum element epochs in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of TLE data from one fetch.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []Entry
}

// NewDataset builds a Dataset from parsed entries, computing the epoch range.
// Entries with a duplicate NORAD ID are dropped, keeping the first occurrence;
// concatenated sources can list the same satellite more than once.
func NewDataset(source string, fetchedAt time.Time, entries []Entry) *Dataset {
	seen := make(map[int]bool, len(entries))
	unique := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.NORADID] {
			continue
		}
		seen[e.NORADID] = true
		unique = append(unique, e)
	}
	entries = unique

	ds := &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: entries,
	}
	if len(entries) > 0 {
		ds.EpochRange.Min = entries[0].Epoch
		ds.EpochRange.Max = entries[0].Epoch
		for _, e := range entries[1:] {
			if e.Epoch.Before(ds.EpochRange.Min) {
				ds.EpochRange.Min = e.Epoch
			}
			if e.Epoch.After(ds.EpochRange.Max) {
				ds.EpochRange.Max = e.Epoch
			}
		}
	}
	return ds
}
