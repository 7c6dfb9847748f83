// Package model defines the clean record types produced from raw GDELT snapshots.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sells-group/gdelt-ingest/internal/schema"
)

// Record is one cleaned row of any table kind. Values returns the row in the
// order of Columns(Table()).
type Record interface {
	Table() schema.Kind
	Values() []any
}

// Columns returns the sink column names for a table kind: the kept column
// names of its layout, lower-cased.
func Columns(k schema.Kind) ([]string, error) {
	t, err := schema.For(k)
	if err != nil {
		return nil, err
	}
	names := t.KeptNames()
	for i, n := range names {
		names[i] = strings.ToLower(n)
	}
	return names, nil
}

// EventRecord is a cleaned Events 2.0 row.
type EventRecord struct {
	GlobalEventID     *int64     `json:"GLOBALEVENTID"`
	Actor1Code        *string    `json:"Actor1Code"`
	Actor1Name        *string    `json:"Actor1Name"`
	Actor1CountryCode *string    `json:"Actor1CountryCode"`
	Actor1Type1Code   *string    `json:"Actor1Type1Code"`
	Actor1Type2Code   *string    `json:"Actor1Type2Code"`
	Actor1Type3Code   *string    `json:"Actor1Type3Code"`
	Actor2Code        *string    `json:"Actor2Code"`
	Actor2Name        *string    `json:"Actor2Name"`
	Actor2CountryCode *string    `json:"Actor2CountryCode"`
	Actor2Type1Code   *string    `json:"Actor2Type1Code"`
	Actor2Type2Code   *string    `json:"Actor2Type2Code"`
	Actor2Type3Code   *string    `json:"Actor2Type3Code"`
	IsRootEvent       *bool      `json:"IsRootEvent"`
	EventCode         *string    `json:"EventCode"`
	EventBaseCode     *string    `json:"EventBaseCode"`
	EventRootCode     *string    `json:"EventRootCode"`
	QuadClass         *int64     `json:"QuadClass"`
	AvgTone           *float64   `json:"AvgTone"`
	Actor1GeoType     *int64     `json:"Actor1Geo_Type"`
	Actor1GeoFullName *string    `json:"Actor1Geo_FullName"`
	Actor1GeoLat      *float64   `json:"Actor1Geo_Lat"`
	Actor1GeoLong     *float64   `json:"Actor1Geo_Long"`
	Actor2GeoType     *int64     `json:"Actor2Geo_Type"`
	Actor2GeoFullName *string    `json:"Actor2Geo_FullName"`
	Actor2GeoLat      *float64   `json:"Actor2Geo_Lat"`
	Actor2GeoLong     *float64   `json:"Actor2Geo_Long"`
	ActionGeoType     *int64     `json:"ActionGeo_Type"`
	ActionGeoFullName *string    `json:"ActionGeo_FullName"`
	ActionGeoLat      *float64   `json:"ActionGeo_Lat"`
	ActionGeoLong     *float64   `json:"ActionGeo_Long"`
	DateAdded         *time.Time `json:"DATEADDED"`
	SourceURL         *string    `json:"SOURCEURL"`
}

// Table implements Record.
func (*EventRecord) Table() schema.Kind { return schema.Events }

// Values implements Record.
func (r *EventRecord) Values() []any {
	return []any{
		r.GlobalEventID,
		r.Actor1Code, r.Actor1Name, r.Actor1CountryCode,
		r.Actor1Type1Code, r.Actor1Type2Code, r.Actor1Type3Code,
		r.Actor2Code, r.Actor2Name, r.Actor2CountryCode,
		r.Actor2Type1Code, r.Actor2Type2Code, r.Actor2Type3Code,
		r.IsRootEvent, r.EventCode, r.EventBaseCode, r.EventRootCode,
		r.QuadClass, r.AvgTone,
		r.Actor1GeoType, r.Actor1GeoFullName, r.Actor1GeoLat, r.Actor1GeoLong,
		r.Actor2GeoType, r.Actor2GeoFullName, r.Actor2GeoLat, r.Actor2GeoLong,
		r.ActionGeoType, r.ActionGeoFullName, r.ActionGeoLat, r.ActionGeoLong,
		r.DateAdded, r.SourceURL,
	}
}

// GKGRecord is a cleaned GKG 2.1 row with its compound fields expanded.
type GKGRecord struct {
	RecordID           *string    `json:"GKGRECORDID"`
	Date               *time.Time `json:"V21DATE"`
	SourceCommonName   *string    `json:"V2SourceCommonName"`
	DocumentIdentifier *string    `json:"V2DocumentIdentifier"`
	Counts             []Count    `json:"V1Counts"`
	Themes             []string   `json:"V1Themes"`
	Locations          []Location `json:"V1Locations"`
	Persons            []string   `json:"V1Persons"`
	Organizations      []string   `json:"V1Organizations"`
	Tone               Tone       `json:"V15Tone"`
}

// Table implements Record.
func (*GKGRecord) Table() schema.Kind { return schema.GKG }

// Values implements Record. Compound fields are returned as JSON text.
func (r *GKGRecord) Values() []any {
	return []any{
		r.RecordID, r.Date, r.SourceCommonName, r.DocumentIdentifier,
		jsonText(r.Counts), jsonText(r.Themes), jsonText(r.Locations),
		jsonText(r.Persons), jsonText(r.Organizations), jsonText(r.Tone),
	}
}

// MentionRecord is a cleaned Mentions 2.0 row.
type MentionRecord struct {
	GlobalEventID     *int64     `json:"GLOBALEVENTID"`
	EventTimeDate     *time.Time `json:"EventTimeDate"`
	MentionTimeDate   *time.Time `json:"MentionTimeDate"`
	MentionType       *string    `json:"MentionType"`
	MentionSourceName *string    `json:"MentionSourceName"`
	MentionIdentifier *string    `json:"MentionIdentifier"`
	InRawText         *bool      `json:"InRawText"`
	Confidence        *int64     `json:"Confidence"`
	MentionDocTone    *float64   `json:"MentionDocTone"`
}

// Table implements Record.
func (*MentionRecord) Table() schema.Kind { return schema.Mentions }

// Values implements Record.
func (r *MentionRecord) Values() []any {
	return []any{
		r.GlobalEventID, r.EventTimeDate, r.MentionTimeDate, r.MentionType,
		r.MentionSourceName, r.MentionIdentifier, r.InRawText, r.Confidence, r.MentionDocTone,
	}
}

// jsonText marshals compound values that cannot fail to encode.
func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
