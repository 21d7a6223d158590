package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JobRecord is one normalized listing. It serializes as a flat JSON object:
// every declared field name maps to a string, plus the engine-assigned
// "website" and "datePosted" (epoch milliseconds).
type JobRecord struct {
	Fields     map[string]string
	Website    string
	DatePosted int64
}

// Get returns the value of a declared field ("" when absent).
func (r JobRecord) Get(name string) string {
	return r.Fields[name]
}

func (r JobRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	m[KeyWebsite] = r.Website
	m[KeyDatePosted] = r.DatePosted
	return json.Marshal(m)
}

func (r *JobRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rec := JobRecord{Fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		switch k {
		case KeyWebsite:
			if err := json.Unmarshal(v, &rec.Website); err != nil {
				return fmt.Errorf("record: website: %w", err)
			}
		case KeyDatePosted:
			dec := json.NewDecoder(bytes.NewReader(v))
			dec.UseNumber()
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return fmt.Errorf("record: datePosted: %w", err)
			}
			ms, err := n.Int64()
			if err != nil {
				return fmt.Errorf("record: datePosted: %w", err)
			}
			rec.DatePosted = ms
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("record: field %q: %w", k, err)
			}
			rec.Fields[k] = s
		}
	}

	*r = rec
	return nil
}
