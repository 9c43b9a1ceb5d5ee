package bazi

import "strings"

// Element is one of the five phases.
type Element string

const (
	Wood  Element = "Wood"
	Fire  Element = "Fire"
	Earth Element = "Earth"
	Metal Element = "Metal"
	Water Element = "Water"
)

// Elements lists the five phases in generating-cycle order.
var Elements = []Element{Wood, Fire, Earth, Metal, Water}

// UnknownRelationship is returned for pairs outside the table.
const UnknownRelationship = "Unknown relationship"

// ElementProperties describes one element.
type ElementProperties struct {
	Nature          string `json:"nature"`
	Direction       string `json:"direction"`
	Season          string `json:"season"`
	Color           string `json:"color"`
	Characteristics string `json:"characteristics"`
}

const harmony = "Harmony - Similar energies support each other"

var relationships = map[[2]Element]string{
	{Wood, Wood}:  harmony,
	{Wood, Fire}:  "Productive - Wood feeds Fire",
	{Wood, Earth}: "Weakening - Wood depletes Earth",
	{Wood, Metal}: "Destructive - Metal chops Wood",
	{Wood, Water}: "Supportive - Water nourishes Wood",

	{Fire, Wood}:  "Supported - Fire is fed by Wood",
	{Fire, Fire}:  harmony,
	{Fire, Earth}: "Productive - Fire creates Earth (ash)",
	{Fire, Metal}: "Weakening - Fire melts Metal",
	{Fire, Water}: "Destructive - Water extinguishes Fire",

	{Earth, Wood}:  "Controlling - Earth contains Wood growth",
	{Earth, Fire}:  "Supported - Earth is created by Fire",
	{Earth, Earth}: harmony,
	{Earth, Metal}: "Productive - Earth contains Metal",
	{Earth, Water}: "Weakening - Water erodes Earth",

	{Metal, Wood}:  "Productive - Metal tools help Wood growth",
	{Metal, Fire}:  "Controlling - Metal conducts Fire",
	{Metal, Earth}: "Supported - Metal comes from Earth",
	{Metal, Metal}: harmony,
	{Metal, Water}: "Productive - Metal holds Water",

	{Water, Wood}:  "Productive - Water nourishes Wood",
	{Water, Fire}:  "Controlling - Water controls Fire",
	{Water, Earth}: "Productive - Water nourishes Earth",
	{Water, Metal}: "Supported - Water is held by Metal",
	{Water, Water}: harmony,
}

var properties = map[Element]ElementProperties{
	Wood: {
		Nature:          "Growing, expanding",
		Direction:       "East",
		Season:          "Spring",
		Color:           "Green",
		Characteristics: "Flexibility, growth, development",
	},
	Fire: {
		Nature:          "Rising, illuminating",
		Direction:       "South",
		Season:          "Summer",
		Color:           "Red",
		Characteristics: "Energy, transformation, passion",
	},
	Earth: {
		Nature:          "Stable, nurturing",
		Direction:       "Center",
		Season:          "Late Summer",
		Color:           "Yellow",
		Characteristics: "Stability, nourishment, support",
	},
	Metal: {
		Nature:          "Condensing, solidifying",
		Direction:       "West",
		Season:          "Autumn",
		Color:           "White",
		Characteristics: "Clarity, precision, structure",
	},
	Water: {
		Nature:          "Flowing, adaptable",
		Direction:       "North",
		Season:          "Winter",
		Color:           "Black",
		Characteristics: "Wisdom, flexibility, communication",
	},
}

// ParseElement matches an element name case-insensitively.
func ParseElement(s string) (Element, bool) {
	s = strings.TrimSpace(s)
	for _, e := range Elements {
		if strings.EqualFold(string(e), s) {
			return e, true
		}
	}
	return "", false
}

// Relationship describes how element a relates to element b.
func Relationship(a, b string) string {
	ea, ok := ParseElement(a)
	if !ok {
		return UnknownRelationship
	}
	eb, ok := ParseElement(b)
	if !ok {
		return UnknownRelationship
	}
	return relationships[[2]Element{ea, eb}]
}

// Properties returns a copy of the element property table.
func Properties() map[Element]ElementProperties {
	out := make(map[Element]ElementProperties, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}
