package domain

import "encoding/json"

// Location is the relayed position record. Ranges are documentation only,
// the relay never validates or clamps them. A field the client omitted is
// omitted in the relay, and an explicit null stays null.
type Location struct {
	Lat      Reading `json:"lat,omitzero"`      // degrees, -90..90
	Lng      Reading `json:"lng,omitzero"`      // degrees, -180..180
	Accuracy Reading `json:"accuracy,omitzero"` // metres, >= 0
	Heading  Reading `json:"heading,omitzero"`  // degrees clockwise from north, 0..360
	Speed    Reading `json:"speed,omitzero"`    // m/s, >= 0
	TS       Reading `json:"ts,omitzero"`       // client epoch millis
}

// Reading is one numeric location field. Present is false when the key was
// missing; Valid is false for an explicit null.
type Reading struct {
	Value   float64
	Valid   bool
	Present bool
}

func NewReading(v float64) Reading {
	return Reading{Value: v, Valid: true, Present: true}
}

// NullReading is a field sent as null, like a heading while standing still.
func NullReading() Reading {
	return Reading{Present: true}
}

func (r Reading) IsZero() bool { return !r.Present }

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = NullReading()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = NewReading(v)
	return nil
}
