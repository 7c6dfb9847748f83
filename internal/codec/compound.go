package codec

import (
	"strings"

	"github.com/sells-group/gdelt-ingest/internal/model"
)

// Delimiters of the GKG compound fields.
const (
	ItemSep = ";"
	AttrSep = "#"
	ToneSep = ","
)

// toneArity is the minimum number of comma positions a tone value must carry.
const toneArity = 7

// Items splits a compound value into its items. Blank input yields an empty
// list, and the empty item left by a terminal separator is discarded.
func Items(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	items := strings.Split(raw, sep)
	if items[len(items)-1] == "" {
		items = items[:len(items)-1]
	}
	return items
}

// attrs splits one item into positional attributes, discarding a trailing
// empty token.
func attrs(item string) []string {
	tokens := strings.Split(item, AttrSep)
	if len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// at returns the i-th token or "" when the item is too short.
func at(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}

// Themes parses V1Themes.
func Themes(raw string) []string { return Items(raw, ItemSep) }

// Persons parses V1Persons.
func Persons(raw string) []string { return Items(raw, ItemSep) }

// Organizations parses V1Organizations.
func Organizations(raw string) []string { return Items(raw, ItemSep) }

// Locations parses V1Locations: type#fullName#countryCode#admin1Code#lat#long#featureId.
func Locations(raw string) []model.Location {
	items := Items(raw, ItemSep)
	out := make([]model.Location, 0, len(items))
	for _, item := range items {
		t := attrs(item)
		out = append(out, model.Location{
			Type:        Int(at(t, 0)),
			FullName:    String(at(t, 1)),
			CountryCode: String(at(t, 2)),
			Admin1Code:  String(at(t, 3)),
			Latitude:    Float(at(t, 4)),
			Longitude:   Float(at(t, 5)),
			FeatureID:   String(at(t, 6)),
		})
	}
	return out
}

// Counts parses V1Counts:
// countType#count#objectType#locType#fullName#countryCode#admin1Code#lat#long#featureId.
func Counts(raw string) []model.Count {
	items := Items(raw, ItemSep)
	out := make([]model.Count, 0, len(items))
	for _, item := range items {
		t := attrs(item)
		out = append(out, model.Count{
			CountType:           String(at(t, 0)),
			Count:               Int(at(t, 1)),
			ObjectType:          String(at(t, 2)),
			LocationType:        Int(at(t, 3)),
			LocationFullName:    String(at(t, 4)),
			LocationCountryCode: String(at(t, 5)),
			LocationAdmin1Code:  String(at(t, 6)),
			LocationLatitude:    Float(at(t, 7)),
			LocationLongitude:   Float(at(t, 8)),
			LocationFeatureID:   String(at(t, 9)),
		})
	}
	return out
}

// ToneMetrics parses V15Tone. Values with fewer than seven positions yield an
// all-absent Tone rather than a partial one.
func ToneMetrics(raw string) model.Tone {
	if strings.TrimSpace(raw) == "" {
		return model.Tone{}
	}
	t := strings.Split(raw, ToneSep)
	if len(t) < toneArity {
		return model.Tone{}
	}
	return model.Tone{
		Tone:                Float(t[0]),
		Positive:            Float(t[1]),
		Negative:            Float(t[2]),
		Polarity:            Float(t[3]),
		ActivityRefDensity:  Float(t[4]),
		SelfGroupRefDensity: Float(t[5]),
		WordCount:           Int(t[6]),
	}
}
