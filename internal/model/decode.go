package model

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdelt-ingest/internal/schema"
)

// DecodeBatches streams a clean JSON document (an array of records) and calls
// fn with at most batchSize records at a time. It returns the number of records
// decoded.
func DecodeBatches(k schema.Kind, r io.Reader, batchSize int, fn func([]Record) error) (int64, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	newRecord, err := recordFactory(k)
	if err != nil {
		return 0, err
	}

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return 0, eris.Wrap(err, "model: read array start")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return 0, eris.Errorf("model: expected JSON array, got %v", tok)
	}

	var total int64
	batch := make([]Record, 0, batchSize)
	for dec.More() {
		rec := newRecord()
		if err := dec.Decode(rec); err != nil {
			return total, eris.Wrapf(err, "model: decode %s record %d", k, total)
		}
		batch = append(batch, rec)
		total++
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return total, err
			}
			batch = make([]Record, 0, batchSize)
		}
	}
	if _, err := dec.Token(); err != nil {
		return total, eris.Wrap(err, "model: read array end")
	}
	if len(batch) > 0 {
		if err := fn(batch); err != nil {
			return total, err
		}
	}
	return total, nil
}

// DecodeAll reads every record of a clean JSON document.
func DecodeAll(k schema.Kind, r io.Reader) ([]Record, error) {
	var out []Record
	_, err := DecodeBatches(k, r, 0, func(b []Record) error {
		out = append(out, b...)
		return nil
	})
	return out, err
}

func recordFactory(k schema.Kind) (func() Record, error) {
	switch k {
	case schema.Events:
		return func() Record { return &EventRecord{} }, nil
	case schema.GKG:
		return func() Record { return &GKGRecord{} }, nil
	case schema.Mentions:
		return func() Record { return &MentionRecord{} }, nil
	default:
		return nil, eris.Errorf("model: unknown table kind %d", int(k))
	}
}
