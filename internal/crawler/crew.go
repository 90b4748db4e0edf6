package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// CrewRole is one role heading and the people listed under it.
type CrewRole struct {
	Role  string
	Names []string
}

// Crew maps role names to people while keeping the page order of roles.
// It marshals to a JSON or YAML object keyed by role.
type Crew []CrewRole

// Names returns the members listed for role, or nil.
func (c Crew) Names(role string) []string {
	for _, r := range c {
		if r.Role == role {
			return r.Names
		}
	}
	return nil
}

// Roles lists role names in page order.
func (c Crew) Roles() []string {
	out := make([]string, 0, len(c))
	for _, r := range c {
		out = append(out, r.Role)
	}
	return out
}

// MarshalJSON writes the crew as an object whose keys follow page order.
func (c Crew) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalUnescaped(r.Role)
		if err != nil {
			return nil, fmt.Errorf("marshal crew role: %w", err)
		}
		names := r.Names
		if names == nil {
			names = []string{}
		}
		val, err := marshalUnescaped(names)
		if err != nil {
			return nil, fmt.Errorf("marshal crew names: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalUnescaped is json.Marshal without HTML escaping of &, < and >.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON reads an object of role -> names, keeping key order.
func (c *Crew) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode crew: %w", err)
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode crew: expected object, got %v", tok)
	}
	out := Crew{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode crew role: %w", err)
		}
		role, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode crew: unexpected key %v", keyTok)
		}
		var names []string
		if err := dec.Decode(&names); err != nil {
			return fmt.Errorf("decode crew names for %q: %w", role, err)
		}
		out = append(out, CrewRole{Role: role, Names: names})
	}
	*c = out
	return nil
}

// MarshalYAML emits a mapping node so roles keep page order.
func (c Crew) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, r := range c {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, name := range r.Names {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Role},
			seq,
		)
	}
	return node, nil
}
