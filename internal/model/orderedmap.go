package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// OrderedMap is a string map that remembers insertion order. It backs the
// additive dictionaries on a candidate (company info, social profiles).
// The zero value is an empty map ready to use.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// NewOrderedMap builds a map from alternating key/value pairs.
func NewOrderedMap(pairs ...string) OrderedMap {
	var m OrderedMap
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set stores value under key. New keys are appended; existing keys keep their position.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m OrderedMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.keys)
}

// Clone returns an independent copy.
func (m OrderedMap) Clone() OrderedMap {
	var out OrderedMap
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// Merge returns a shallow merge of m and incoming: incoming values override
// existing keys in place, new keys are appended in incoming order.
func (m OrderedMap) Merge(incoming OrderedMap) OrderedMap {
	out := m.Clone()
	for _, k := range incoming.keys {
		out.Set(k, incoming.values[k])
	}
	return out
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
// Non-string values are stored as their raw JSON text.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	*m = OrderedMap{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "ordered map: read object start")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.New("ordered map: expected JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "ordered map: read key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.New("ordered map: non-string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return eris.Wrapf(err, "ordered map: read value for %s", key)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		m.Set(key, s)
	}
	return nil
}
