package bazi

import (
	"errors"
	"math/rand/v2"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileID(t *testing.T) {
	assert.Equal(t, "AnaLima", ProfileID("Ana Lima"))
	assert.Equal(t, "OBrien2", ProfileID("O'Brien #2"))
	assert.Equal(t, "李娜", ProfileID("李 娜!"))
	assert.Equal(t, "", ProfileID("  -- "))
}

func TestNewProfileNormalizes(t *testing.T) {
	now := time.Date(2025, 2, 21, 9, 0, 0, 0, time.FixedZone("x", 3600))
	p, err := NewProfile(ProfileInput{
		Name:      " Ana ",
		BirthDate: "20/02/1990",
		BirthTime: "07:30 PM",
		Timezone:  "UTC+08:00",
		Location:  "Lisbon, Portugal",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.ID)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, "1990-02-20", p.BirthDate)
	assert.Equal(t, "19:30", p.BirthTime)
	assert.Nil(t, p.Analysis)
	assert.Equal(t, time.UTC, p.CreatedAt.Location())
}

func TestNewProfileRejectsBadInput(t *testing.T) {
	_, err := NewProfile(ProfileInput{Name: "!!", BirthDate: "1990-01-01", BirthTime: "12:00", Timezone: "UTC"}, time.Now())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	_, err = NewProfile(ProfileInput{Name: "Ana", BirthDate: "1990-01-01", BirthTime: "12:00", Timezone: "Nowhere/Land"}, time.Now())
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "timezone", verr.Field)
}

func TestAppendAnalysis(t *testing.T) {
	var p Profile
	p.AppendAnalysis("   ")
	assert.Nil(t, p.Analysis)

	p.AppendAnalysis("first")
	p.AppendAnalysis("second")
	assert.Equal(t, "first\n\nsecond", p.AnalysisText())
}

func TestRelationshipTable(t *testing.T) {
	assert.Equal(t, "Productive - Wood feeds Fire", Relationship("wood", "FIRE"))
	assert.Equal(t, "Destructive - Water extinguishes Fire", Relationship("Fire", "Water"))
	assert.Equal(t, UnknownRelationship, Relationship("Wood", "Aether"))

	for _, a := range Elements {
		for _, b := range Elements {
			assert.NotEqual(t, UnknownRelationship, Relationship(string(a), string(b)))
		}
	}
}

func TestPropertiesIsACopy(t *testing.T) {
	props := Properties()
	require.Len(t, props, 5)
	assert.Equal(t, "East", props[Wood].Direction)

	props[Wood] = ElementProperties{}
	assert.Equal(t, "East", Properties()[Wood].Direction)
}

func TestAnalysisLibraryPick(t *testing.T) {
	fsys := fstest.MapFS{
		"baziprofiledata1.md": {Data: []byte("one\n")},
		"baziprofiledata2.md": {Data: []byte("two")},
		"notes.md":            {Data: []byte("ignored")},
	}
	lib, err := NewAnalysisLibrary(fsys, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.Equal(t, 2, lib.Len())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		doc, err := lib.Pick()
		require.NoError(t, err)
		seen[doc.Content] = true
	}
	assert.Equal(t, map[string]bool{"one": true, "two": true}, seen)
}

func TestAnalysisLibraryEmpty(t *testing.T) {
	lib, err := NewAnalysisLibrary(fstest.MapFS{}, nil)
	require.NoError(t, err)
	_, err = lib.Pick()
	assert.ErrorIs(t, err, ErrLookupMiss)
}

func TestDefaultAnalysisLibrary(t *testing.T) {
	lib := DefaultAnalysisLibrary()
	assert.Equal(t, 3, lib.Len())
	doc, err := lib.Pick()
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Content)
}
