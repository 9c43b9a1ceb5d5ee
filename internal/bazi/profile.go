// Package bazi holds the domain records of the BAZI viewer (profiles, daily
// readings, the sample chart) and the static lookup tables around them.
// Nothing here computes a real chart.
package bazi

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// ErrLookupMiss is returned when a requested date or profile does not exist.
var ErrLookupMiss = errors.New("bazi: not found")

// Profile is a user's birth record plus the analysis text shown for it.
// Only Analysis changes after creation, and only by appending.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BirthDate string    `json:"birth_date"`
	BirthTime string    `json:"birth_time"`
	Timezone  string    `json:"timezone"`
	Location  string    `json:"location,omitempty"`
	Chart     *Chart    `json:"chart,omitempty"`
	Analysis  *string   `json:"bazi_analysis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileInput is the raw form input used to create a Profile.
type ProfileInput struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	BirthTime string `json:"birth_time"`
	Timezone  string `json:"timezone"`
	Location  string `json:"location"`
}

// ProfileID derives the storage key from a display name: letters and digits only.
func ProfileID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewProfile validates in and returns a profile with normalized date and time.
func NewProfile(in ProfileInput, now time.Time) (Profile, error) {
	name := strings.TrimSpace(in.Name)
	id := ProfileID(name)
	if id == "" {
		return Profile{}, &ValidationError{Field: "name", Reason: "must contain a letter or digit"}
	}
	if err := ValidateBirth(in.BirthDate, in.BirthTime, in.Timezone); err != nil {
		return Profile{}, err
	}
	dateKey, _ := NormalizeDateKey(in.BirthDate)
	clock, _ := ParseBirthTime(in.BirthTime)

	return Profile{
		ID:        id,
		Name:      name,
		BirthDate: dateKey,
		BirthTime: clock,
		Timezone:  strings.TrimSpace(in.Timezone),
		Location:  strings.TrimSpace(in.Location),
		CreatedAt: now.UTC(),
	}, nil
}

// AppendAnalysis adds text to the profile's analysis, separated by a blank line.
func (p *Profile) AppendAnalysis(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if p.Analysis == nil || strings.TrimSpace(*p.Analysis) == "" {
		p.Analysis = &text
		return
	}
	joined := *p.Analysis + "\n\n" + text
	p.Analysis = &joined
}

// AnalysisText returns the analysis or the empty string.
func (p Profile) AnalysisText() string {
	if p.Analysis == nil {
		return ""
	}
	return *p.Analysis
}
