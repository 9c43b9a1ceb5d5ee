package bazi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Pillar is a stem/branch label in both languages.
type Pillar struct {
	Chinese string `json:"chinese"`
	English string `json:"english"`
}

func (p Pillar) String() string {
	switch {
	case p.Chinese == "":
		return p.English
	case p.English == "":
		return p.Chinese
	default:
		return fmt.Sprintf("%s (%s)", p.Chinese, p.English)
	}
}

// DailyReading is the read-only snapshot for one calendar date.
type DailyReading struct {
	Date       string `json:"date"`
	Year       Pillar `json:"year_pillar"`
	Month      Pillar `json:"month_pillar"`
	Day        Pillar `json:"day_pillar"`
	DayOfficer string `json:"day_officer"`
}

// ReadingSource looks up a reading by YYYY-MM-DD key. A missing date reports
// false rather than an error.
type ReadingSource interface {
	Lookup(date string) (DailyReading, bool)
}

// FormatReading renders a reading as the block used in prompts and the UI.
func FormatReading(r *DailyReading) string {
	if r == nil {
		return "No BAZI data available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", r.Date)
	b.WriteString("Pillars:\n")
	fmt.Fprintf(&b, "- Year: %s\n", r.Year)
	fmt.Fprintf(&b, "- Month: %s\n", r.Month)
	fmt.Fprintf(&b, "- Day: %s\n", r.Day)
	fmt.Fprintf(&b, "Day Officer: %s", r.DayOfficer)
	return b.String()
}

// StaticSource is an in-memory ReadingSource keyed by date.
type StaticSource map[string]DailyReading

func (s StaticSource) Lookup(date string) (DailyReading, bool) {
	key, err := NormalizeDateKey(date)
	if err != nil {
		return DailyReading{}, false
	}
	r, ok := s[key]
	return r, ok
}

// CSVSource serves readings loaded from a daily BAZI CSV export.
type CSVSource struct {
	byDate map[string]DailyReading
}

// column aliases seen across CSV exports; matched case-insensitively.
var csvColumns = map[string][]string{
	"date":          {"date"},
	"year_chinese":  {"year pillar chinese", "year pillar"},
	"year_english":  {"year pillar english"},
	"month_chinese": {"month pillar chinese", "month pillar"},
	"month_english": {"month pillar english"},
	"day_chinese":   {"day pillar chinese", "day pillar"},
	"day_english":   {"day pillar english"},
	"day_officer":   {"day officer"},
}

// LoadCSV reads the readings file at path.
func LoadCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open daily readings: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads readings from r. Rows whose date cannot be parsed are
// skipped; a later row for the same date replaces an earlier one.
func ParseCSV(r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("daily readings: empty file")
		}
		return nil, fmt.Errorf("daily readings header: %w", err)
	}
	idx := resolveColumns(header)
	if _, ok := idx["date"]; !ok {
		return nil, fmt.Errorf("daily readings: missing Date column")
	}

	src := &CSVSource{byDate: make(map[string]DailyReading)}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("daily readings line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		key, err := NormalizeDateKey(field("date"))
		if err != nil {
			slog.Warn("bazi: skip daily reading row", "line", line, "err", err)
			continue
		}
		src.byDate[key] = DailyReading{
			Date:       key,
			Year:       Pillar{Chinese: field("year_chinese"), English: field("year_english")},
			Month:      Pillar{Chinese: field("month_chinese"), English: field("month_english")},
			Day:        Pillar{Chinese: field("day_chinese"), English: field("day_english")},
			DayOfficer: field("day_officer"),
		}
	}
	return src, nil
}

func resolveColumns(header []string) map[string]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idx := make(map[string]int, len(csvColumns))
	for name, aliases := range csvColumns {
		for _, alias := range aliases {
			if i, ok := positions[alias]; ok {
				idx[name] = i
				break
			}
		}
	}
	return idx
}

func (s *CSVSource) Lookup(date string) (DailyReading, bool) {
	if s == nil {
		return DailyReading{}, false
	}
	key, err := NormalizeDateKey(date)
	if err != nil {
		return DailyReading{}, false
	}
	r, ok := s.byDate[key]
	return r, ok
}

// Len returns the number of loaded dates.
func (s *CSVSource) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byDate)
}

// Dates returns the loaded date keys in ascending order.
func (s *CSVSource) Dates() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.byDate))
	for k := range s.byDate {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
