package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Series describes one DICOM series within a study.
type Series struct {
	Number      int    `json:"SeriesNumber"`
	Description string `json:"SeriesDescription"`
	UID         string `json:"SeriesInstanceUID"`
	Time        string `json:"SeriesTime,omitempty"`
	ImageCount  int    `json:"ImagesInSeries"`
}

// Meta is the per-subject metadata document written to
// META/<SUBJID>_meta.json. On disk the study tags sit at the top level of
// the JSON object, next to a "Series" array and a "ScannedAt" timestamp, so
// the file stays greppable and diffable by hand.
type Meta struct {
	Tags      Tags
	Series    []Series
	ScannedAt time.Time
}

// reserved top-level keys that are not DICOM tags.
const (
	metaKeySeries    = "Series"
	metaKeyScannedAt = "ScannedAt"
)

// MarshalJSON flattens Tags into the top-level object.
func (m Meta) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(m.Tags)+2)
	for k, v := range m.Tags {
		if k == metaKeySeries || k == metaKeyScannedAt {
			continue
		}
		doc[k] = v
	}
	series := m.Series
	if series == nil {
		series = []Series{}
	}
	doc[metaKeySeries] = series
	if !m.ScannedAt.IsZero() {
		doc[metaKeyScannedAt] = m.ScannedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts documents written by MarshalJSON plus hand-edited
// files where tag values may be numbers.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	m.Tags = make(Tags, len(doc))
	m.Series = nil
	m.ScannedAt = time.Time{}
	for k, raw := range doc {
		switch k {
		case metaKeySeries:
			if err := json.Unmarshal(raw, &m.Series); err != nil {
				return fmt.Errorf("decode Series: %w", err)
			}
		case metaKeyScannedAt:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode ScannedAt: %w", err)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("decode ScannedAt: %w", err)
			}
			m.ScannedAt = t
		default:
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				m.Tags[k] = s
				continue
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode tag %s: %w", k, err)
			}
			m.Tags[k] = fmt.Sprint(v)
		}
	}
	return nil
}

// SortSeries orders the series list by series number.
func (m *Meta) SortSeries() {
	sort.Slice(m.Series, func(i, j int) bool {
		return m.Series[i].Number < m.Series[j].Number
	})
}

// SeriesByNumber returns the series with the given number, if present.
func (m *Meta) SeriesByNumber(n int) (Series, bool) {
	for _, s := range m.Series {
		if s.Number == n {
			return s, true
		}
	}
	return Series{}, false
}

// HasSeriesDescription reports whether any series description contains the
// given substring. Matching is case sensitive to mirror scanner protocol
// names, which are entered verbatim at the console.
func (m *Meta) HasSeriesDescription(substr string) bool {
	for _, s := range m.Series {
		if strings.Contains(s.Description, substr) {
			return true
		}
	}
	return false
}

// TotalImages sums ImageCount over all series.
func (m *Meta) TotalImages() int {
	total := 0
	for _, s := range m.Series {
		total += s.ImageCount
	}
	return total
}

// SeriesTimeRange returns the earliest and latest series times of the exam
// in HHMMSS form. ok is false when no series carries a usable time.
func (m *Meta) SeriesTimeRange() (first, last string, ok bool) {
	for _, s := range m.Series {
		t, valid := normalizeTime(s.Time)
		if !valid {
			continue
		}
		if !ok {
			first, last, ok = t, t, true
			continue
		}
		if t < first {
			first = t
		}
		if t > last {
			last = t
		}
	}
	return first, last, ok
}

// normalizeTime reduces a DICOM TM value (HH, HHMM, HHMMSS, optionally with
// a fractional part) to six digits.
func normalizeTime(tm string) (string, bool) {
	if i := strings.IndexByte(tm, '.'); i >= 0 {
		tm = tm[:i]
	}
	tm = strings.TrimSpace(tm)
	switch {
	case len(tm) >= 6:
		tm = tm[:6]
	case len(tm) == 4:
		tm += "00"
	case len(tm) == 2:
		tm += "0000"
	default:
		return "", false
	}
	for _, r := range tm {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return tm, true
}
