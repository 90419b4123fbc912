package model

import "encoding/json"

// MarshalJSON renders a NamedSubtopic as the spec's [name, body] tuple
// instead of a struct, matching the artifact's documented wire shape.
func (n NamedSubtopic) MarshalJSON() ([]byte, error) {
	pair := [2]interface{}{n.Name, n.Body}
	return json.Marshal(pair)
}

// UnmarshalJSON parses a [name, body] tuple back into a NamedSubtopic.
func (n *NamedSubtopic) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &n.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &n.Body)
}

// MarshalJSON renders a NamedTopic as the spec's [name, body] tuple.
func (n NamedTopic) MarshalJSON() ([]byte, error) {
	pair := [2]interface{}{n.Name, n.Body}
	return json.Marshal(pair)
}

// UnmarshalJSON parses a [name, body] tuple back into a NamedTopic.
func (n *NamedTopic) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &n.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &n.Body)
}
