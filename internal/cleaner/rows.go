package cleaner

import (
	"strings"

	"github.com/sells-group/gdelt-ingest/internal/codec"
	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/schema"
)

// minGKGPopulated is the number of kept columns a GKG row must populate to
// survive. Rows split by the stray newlines the feed sometimes writes into
// V2ExtrasXML fall below it.
const minGKGPopulated = 5

// rawRow is one tab-split line viewed through its table layout. Short rows
// read as blank past their end and extra tokens are ignored.
type rawRow struct {
	t      *schema.Table
	fields []string
}

func (r rawRow) get(name string) string {
	i := r.t.MustIndex(name)
	if i < len(r.fields) {
		return r.fields[i]
	}
	return ""
}

// populated counts the kept columns holding a non-blank token.
func (r rawRow) populated() int {
	n := 0
	for _, i := range r.t.Kept {
		if i < len(r.fields) && strings.TrimSpace(r.fields[i]) != "" {
			n++
		}
	}
	return n
}

func (r rawRow) str(name string) *string    { return codec.String(r.get(name)) }
func (r rawRow) integer(name string) *int64 { return codec.Int(r.get(name)) }
func (r rawRow) float(name string) *float64 { return codec.Float(r.get(name)) }
func (r rawRow) coord(name string) *float64 { return codec.Coordinate(r.get(name)) }
func (r rawRow) boolean(name string) *bool  { return codec.Bool(r.get(name)) }

// buildFunc converts one row into a record, or reports that the row is dropped.
type buildFunc func(rawRow) (model.Record, bool)

func builderFor(k schema.Kind) (*schema.Table, buildFunc, error) {
	t, err := schema.For(k)
	if err != nil {
		return nil, nil, err
	}
	switch k {
	case schema.Events:
		return t, buildEvent, nil
	case schema.GKG:
		return t, buildGKG, nil
	default:
		return t, buildMention, nil
	}
}

func buildEvent(r rawRow) (model.Record, bool) {
	if r.populated() == 0 {
		return nil, false
	}
	return &model.EventRecord{
		GlobalEventID:     r.integer("GLOBALEVENTID"),
		Actor1Code:        r.str("Actor1Code"),
		Actor1Name:        r.str("Actor1Name"),
		Actor1CountryCode: r.str("Actor1CountryCode"),
		Actor1Type1Code:   r.str("Actor1Type1Code"),
		Actor1Type2Code:   r.str("Actor1Type2Code"),
		Actor1Type3Code:   r.str("Actor1Type3Code"),
		Actor2Code:        r.str("Actor2Code"),
		Actor2Name:        r.str("Actor2Name"),
		Actor2CountryCode: r.str("Actor2CountryCode"),
		Actor2Type1Code:   r.str("Actor2Type1Code"),
		Actor2Type2Code:   r.str("Actor2Type2Code"),
		Actor2Type3Code:   r.str("Actor2Type3Code"),
		IsRootEvent:       r.boolean("IsRootEvent"),
		EventCode:         r.str("EventCode"),
		EventBaseCode:     r.str("EventBaseCode"),
		EventRootCode:     r.str("EventRootCode"),
		QuadClass:         r.integer("QuadClass"),
		AvgTone:           r.float("AvgTone"),
		Actor1GeoType:     r.integer("Actor1Geo_Type"),
		Actor1GeoFullName: r.str("Actor1Geo_FullName"),
		Actor1GeoLat:      r.coord("Actor1Geo_Lat"),
		Actor1GeoLong:     r.coord("Actor1Geo_Long"),
		Actor2GeoType:     r.integer("Actor2Geo_Type"),
		Actor2GeoFullName: r.str("Actor2Geo_FullName"),
		Actor2GeoLat:      r.coord("Actor2Geo_Lat"),
		Actor2GeoLong:     r.coord("Actor2Geo_Long"),
		ActionGeoType:     r.integer("ActionGeo_Type"),
		ActionGeoFullName: r.str("ActionGeo_FullName"),
		ActionGeoLat:      r.coord("ActionGeo_Lat"),
		ActionGeoLong:     r.coord("ActionGeo_Long"),
		DateAdded:         codec.Timestamp(r.get("DATEADDED")),
		SourceURL:         r.str("SOURCEURL"),
	}, true
}

func buildGKG(r rawRow) (model.Record, bool) {
	if r.populated() < minGKGPopulated {
		return nil, false
	}
	return &model.GKGRecord{
		RecordID:           r.str("GKGRECORDID"),
		Date:               codec.Timestamp(r.get("V21DATE")),
		SourceCommonName:   r.str("V2SourceCommonName"),
		DocumentIdentifier: r.str("V2DocumentIdentifier"),
		Counts:             codec.Counts(r.get("V1Counts")),
		Themes:             codec.Themes(r.get("V1Themes")),
		Locations:          codec.Locations(r.get("V1Locations")),
		Persons:            codec.Persons(r.get("V1Persons")),
		Organizations:      codec.Organizations(r.get("V1Organizations")),
		Tone:               codec.ToneMetrics(r.get("V15Tone")),
	}, true
}

func buildMention(r rawRow) (model.Record, bool) {
	if r.populated() == 0 {
		return nil, false
	}
	return &model.MentionRecord{
		GlobalEventID:     r.integer("GLOBALEVENTID"),
		EventTimeDate:     codec.Timestamp(r.get("EventTimeDate")),
		MentionTimeDate:   codec.Timestamp(r.get("MentionTimeDate")),
		MentionType:       r.str("MentionType"),
		MentionSourceName: r.str("MentionSourceName"),
		MentionIdentifier: r.str("MentionIdentifier"),
		InRawText:         r.boolean("InRawText"),
		Confidence:        r.integer("Confidence"),
		MentionDocTone:    r.float("MentionDocTone"),
	}, true
}
