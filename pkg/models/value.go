package models

import "encoding/json"

// Value is what a key's thread materializes to: a single text for the
// single* and voting types, an ordered list of texts for multiple.
type Value struct {
	Text  string
	Texts []string
	Multi bool
}

func SingleValue(s string) Value { return Value{Text: s} }

func MultiValue(list []string) Value {
	if list == nil {
		list = []string{}
	}
	return Value{Texts: list, Multi: true}
}

// MarshalJSON renders a single value as a JSON string and a multi value as
// a JSON array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Multi {
		return json.Marshal(v.Texts)
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*v = MultiValue(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*v = SingleValue(s)
	return nil
}
