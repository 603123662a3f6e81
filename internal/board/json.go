package board

import "encoding/json"

// MarshalJSON writes the occupancy as an object with all 64 square names,
// empty squares as null.
func (o Occupancy) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToMap())
}

// UnmarshalJSON rejects objects that do not name every square.
func (o *Occupancy) UnmarshalJSON(data []byte) error {
	var m map[string]*Piece
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	occ, err := FromMap(m)
	if err != nil {
		return err
	}
	*o = occ
	return nil
}
