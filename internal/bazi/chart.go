package bazi

import (
	"fmt"
	"strings"
)

// Chart is the four-pillar chart attached to a profile.
type Chart struct {
	YearPillar  string `json:"year_pillar"`
	MonthPillar string `json:"month_pillar"`
	DayPillar   string `json:"day_pillar"`
	HourPillar  string `json:"hour_pillar"`
	DayOfficer  string `json:"day_officer"`
}

// SampleChart is the fixed chart served for every profile until real chart
// calculation exists.
func SampleChart() Chart {
	return Chart{
		YearPillar:  "Yang Wood Horse",
		MonthPillar: "Yin Fire Snake",
		DayPillar:   "Yang Earth Monkey",
		HourPillar:  "Yin Water Pig",
		DayOfficer:  "Yang Earth",
	}
}

// GenerateChart returns the chart for a profile's birth data.
// TODO: replace the sample chart with a stem/branch calculation once a
// solar-term table is available.
func GenerateChart(_ Profile) Chart {
	return SampleChart()
}

// String renders the chart one pillar per line.
func (c Chart) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Year Pillar: %s\n", c.YearPillar)
	fmt.Fprintf(&b, "Month Pillar: %s\n", c.MonthPillar)
	fmt.Fprintf(&b, "Day Pillar: %s\n", c.DayPillar)
	fmt.Fprintf(&b, "Hour Pillar: %s\n", c.HourPillar)
	fmt.Fprintf(&b, "Day Officer: %s", c.DayOfficer)
	return b.String()
}
