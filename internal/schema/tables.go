package schema

import "github.com/rotisserie/eris"

// Type is the target type a kept column is coerced to.
type Type int

const (
	String Type = iota
	Integer
	Float
	Boolean
	Timestamp
	// Compound columns hold nested, delimiter-encoded structures (GKG only).
	Compound
)

// Column is one positional column of a raw snapshot row.
type Column struct {
	Name string
	Type Type
}

// Table is the immutable layout descriptor of one table kind. Columns is the
// full positional layout of the raw file; Kept holds indices into Columns.
type Table struct {
	Kind    Kind
	Columns []Column
	Kept    []int

	index map[string]int
}

// Index returns the positional index of the named column.
func (t *Table) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// MustIndex returns the positional index of the named column and panics if the
// layout has no such column. Only used while building static lookups.
func (t *Table) MustIndex(name string) int {
	i, ok := t.index[name]
	if !ok {
		panic("schema: " + t.Kind.String() + " has no column " + name)
	}
	return i
}

// KeptNames returns the names of the retained columns, in display order.
func (t *Table) KeptNames() []string {
	names := make([]string, len(t.Kept))
	for i, idx := range t.Kept {
		names[i] = t.Columns[idx].Name
	}
	return names
}

// KeptColumns returns the retained columns, in display order.
func (t *Table) KeptColumns() []Column {
	cols := make([]Column, len(t.Kept))
	for i, idx := range t.Kept {
		cols[i] = t.Columns[idx]
	}
	return cols
}

// For returns the layout for a table kind.
func For(k Kind) (*Table, error) {
	switch k {
	case Events:
		return EventsTable, nil
	case GKG:
		return GKGTable, nil
	case Mentions:
		return MentionsTable, nil
	default:
		return nil, eris.Errorf("schema: no layout for table kind %d", int(k))
	}
}

func newTable(k Kind, cols []Column, kept []string) *Table {
	t := &Table{Kind: k, Columns: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		t.index[c.Name] = i
	}
	for _, name := range kept {
		t.Kept = append(t.Kept, t.MustIndex(name))
	}
	return t
}

func str(name string) Column      { return Column{Name: name, Type: String} }
func integer(name string) Column  { return Column{Name: name, Type: Integer} }
func float(name string) Column    { return Column{Name: name, Type: Float} }
func boolean(name string) Column  { return Column{Name: name, Type: Boolean} }
func ts(name string) Column       { return Column{Name: name, Type: Timestamp} }
func compound(name string) Column { return Column{Name: name, Type: Compound} }

// EventsTable is the 61-column Events 2.0 layout.
var EventsTable = newTable(Events, []Column{
	integer("GLOBALEVENTID"),
	str("Day"),
	str("MonthYear"),
	str("Year"),
	str("FractionDate"),
	str("Actor1Code"),
	str("Actor1Name"),
	str("Actor1CountryCode"),
	str("Actor1KnownGroupCode"),
	str("Actor1EthnicCode"),
	str("Actor1Religion1Code"),
	str("Actor1Religion2Code"),
	str("Actor1Type1Code"),
	str("Actor1Type2Code"),
	str("Actor1Type3Code"),
	str("Actor2Code"),
	str("Actor2Name"),
	str("Actor2CountryCode"),
	str("Actor2KnownGroupCode"),
	str("Actor2EthnicCode"),
	str("Actor2Religion1Code"),
	str("Actor2Religion2Code"),
	str("Actor2Type1Code"),
	str("Actor2Type2Code"),
	str("Actor2Type3Code"),
	boolean("IsRootEvent"),
	str("EventCode"),
	str("EventBaseCode"),
	str("EventRootCode"),
	integer("QuadClass"),
	float("GoldsteinScale"),
	integer("NumMentions"),
	integer("NumSources"),
	integer("NumArticles"),
	float("AvgTone"),
	integer("Actor1Geo_Type"),
	str("Actor1Geo_FullName"),
	str("Actor1Geo_CountryCode"),
	str("Actor1Geo_ADM1Code"),
	str("Actor1Geo_ADM2Code"),
	float("Actor1Geo_Lat"),
	float("Actor1Geo_Long"),
	str("Actor1Geo_FeatureID"),
	integer("Actor2Geo_Type"),
	str("Actor2Geo_FullName"),
	str("Actor2Geo_CountryCode"),
	str("Actor2Geo_ADM1Code"),
	str("Actor2Geo_ADM2Code"),
	float("Actor2Geo_Lat"),
	float("Actor2Geo_Long"),
	str("Actor2Geo_FeatureID"),
	integer("ActionGeo_Type"),
	str("ActionGeo_FullName"),
	str("ActionGeo_CountryCode"),
	str("ActionGeo_ADM1Code"),
	str("ActionGeo_ADM2Code"),
	float("ActionGeo_Lat"),
	float("ActionGeo_Long"),
	str("ActionGeo_FeatureID"),
	ts("DATEADDED"),
	str("SOURCEURL"),
}, []string{
	"GLOBALEVENTID",
	"Actor1Code", "Actor1Name", "Actor1CountryCode",
	"Actor1Type1Code", "Actor1Type2Code", "Actor1Type3Code",
	"Actor2Code", "Actor2Name", "Actor2CountryCode",
	"Actor2Type1Code", "Actor2Type2Code", "Actor2Type3Code",
	"IsRootEvent", "EventCode", "EventBaseCode", "EventRootCode",
	"QuadClass", "AvgTone",
	"Actor1Geo_Type", "Actor1Geo_FullName", "Actor1Geo_Lat", "Actor1Geo_Long",
	"Actor2Geo_Type", "Actor2Geo_FullName", "Actor2Geo_Lat", "Actor2Geo_Long",
	"ActionGeo_Type", "ActionGeo_FullName", "ActionGeo_Lat", "ActionGeo_Long",
	"DATEADDED", "SOURCEURL",
})

// GKGTable is the 27-column GKG 2.1 layout.
var GKGTable = newTable(GKG, []Column{
	str("GKGRECORDID"),
	ts("V21DATE"),
	str("V2SourceCollectionIdentifier"),
	str("V2SourceCommonName"),
	str("V2DocumentIdentifier"),
	compound("V1Counts"),
	str("V21Counts"),
	compound("V1Themes"),
	str("V2EnhancedThemes"),
	compound("V1Locations"),
	str("V2EnhancedLocations"),
	compound("V1Persons"),
	str("V2EnhancedPersons"),
	compound("V1Organizations"),
	str("V2EnhancedOrganizations"),
	compound("V15Tone"),
	str("V21EnhancedDates"),
	str("V2GCAM"),
	str("V21SharingImage"),
	str("V21RelatedImages"),
	str("V21SocialImageEmbeds"),
	str("V21SocialVideoEmbeds"),
	str("V21Quotations"),
	str("V21AllNames"),
	str("V21Amounts"),
	str("V21TranslationInfo"),
	str("V2ExtrasXML"),
}, []string{
	"GKGRECORDID", "V21DATE", "V2SourceCommonName", "V2DocumentIdentifier",
	"V1Counts", "V1Themes", "V1Locations", "V1Persons", "V1Organizations", "V15Tone",
})

// MentionsTable is the 16-column Mentions 2.0 layout.
var MentionsTable = newTable(Mentions, []Column{
	integer("GLOBALEVENTID"),
	ts("EventTimeDate"),
	ts("MentionTimeDate"),
	str("MentionType"),
	str("MentionSourceName"),
	str("MentionIdentifier"),
	integer("SentenceID"),
	integer("Actor1CharOffset"),
	integer("Actor2CharOffset"),
	integer("ActionCharOffset"),
	boolean("InRawText"),
	integer("Confidence"),
	integer("MentionDocLen"),
	float("MentionDocTone"),
	str("MentionDocTranslationInfo"),
	str("Extras"),
}, []string{
	"GLOBALEVENTID", "EventTimeDate", "MentionTimeDate", "MentionType",
	"MentionSourceName", "MentionIdentifier", "InRawText", "Confidence", "MentionDocTone",
})
