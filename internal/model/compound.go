package model

// Location is one entry of the GKG V1Locations field.
type Location struct {
	Type        *int64   `json:"type"`
	FullName    *string  `json:"fullName"`
	CountryCode *string  `json:"countryCode"`
	Admin1Code  *string  `json:"admin1Code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	FeatureID   *string  `json:"featureId"`
}

// Count is one entry of the GKG V1Counts field.
type Count struct {
	CountType           *string  `json:"countType"`
	Count               *int64   `json:"count"`
	ObjectType          *string  `json:"objectType"`
	LocationType        *int64   `json:"locationType"`
	LocationFullName    *string  `json:"locationFullName"`
	LocationCountryCode *string  `json:"locationCountryCode"`
	LocationAdmin1Code  *string  `json:"locationAdmin1Code"`
	LocationLatitude    *float64 `json:"locationLatitude"`
	LocationLongitude   *float64 `json:"locationLongitude"`
	LocationFeatureID   *string  `json:"locationFeatureId"`
}

// Tone holds the seven V15Tone metrics. A raw value with fewer than seven
// positions yields no fields; an empty or unparsable position leaves only
// that field nil.
type Tone struct {
	Tone                *float64 `json:"tone"`
	Positive            *float64 `json:"positive"`
	Negative            *float64 `json:"negative"`
	Polarity            *float64 `json:"polarity"`
	ActivityRefDensity  *float64 `json:"activityRefDensity"`
	SelfGroupRefDensity *float64 `json:"selfGroupRefDensity"`
	WordCount           *int64   `json:"wordCount"`
}

// IsZero reports whether no tone metric is present.
func (t Tone) IsZero() bool {
	return t.Tone == nil && t.Positive == nil && t.Negative == nil && t.Polarity == nil &&
		t.ActivityRefDensity == nil && t.SelfGroupRefDensity == nil && t.WordCount == nil
}
