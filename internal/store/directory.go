// Package store persists the room directory (room name to member list) so
// rooms survive a restart of the chat server.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Room is one entry of the persisted directory.
type Room struct {
	Name    string
	Members []string
}

// Directory is the persisted room table. Entry order is the room creation
// order and is preserved through every encoding.
type Directory []Room

// Names returns the room names in directory order.
func (d Directory) Names() []string {
	names := make([]string, 0, len(d))
	for _, room := range d {
		names = append(names, room.Name)
	}
	return names
}

// Format selects the on-disk encoding of a Directory.
type Format int

const (
	// FormatJSON encodes the directory as {"room": ["member", ...]}.
	FormatJSON Format = iota
	// FormatYAML encodes the directory as a YAML mapping of sequences.
	FormatYAML
)

// FormatForPath picks the encoding from a file extension; anything that is
// not .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode renders the directory in the given format.
func Encode(format Format, dir Directory) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(dir)
	}
	data, err := json.MarshalIndent(dir, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a directory previously produced by Encode. Blank input
// decodes to an empty directory.
func Decode(format Format, data []byte) (Directory, error) {
	dir := Directory{}
	if len(bytes.TrimSpace(data)) == 0 {
		return dir, nil
	}

	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &dir)
	} else {
		err = json.Unmarshal(data, &dir)
	}
	if err != nil {
		return nil, fmt.Errorf("decode room directory: %w", err)
	}
	if dir == nil {
		dir = Directory{}
	}
	return dir, nil
}

// MarshalJSON writes the directory as a JSON object keeping entry order.
func (d Directory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, room := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(room.Name)
		if err != nil {
			return nil, err
		}
		members, err := json.Marshal(nonNil(room.Members))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(members)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object in document order. A repeated key keeps
// its first position and its last value.
func (d *Directory) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("room directory must be an object, got %v", tok)
	}

	out := Directory{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected room key %v", tok)
		}

		var members []string
		if err := dec.Decode(&members); err != nil {
			return fmt.Errorf("room %q: %w", name, err)
		}
		out = upsert(out, index, name, members)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}

// MarshalYAML builds an ordered mapping node.
func (d Directory) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, room := range d {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(room.Members) == 0 {
			seq.Style = yaml.FlowStyle
		}
		for _, member := range room.Members {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: member})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: room.Name},
			seq,
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping node in document order.
func (d *Directory) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("room directory must be a mapping (line %d)", value.Line)
	}

	out := Directory{}
	index := make(map[string]int)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var name string
		if err := value.Content[i].Decode(&name); err != nil {
			return err
		}
		var members []string
		if err := value.Content[i+1].Decode(&members); err != nil {
			return fmt.Errorf("room %q: %w", name, err)
		}
		out = upsert(out, index, name, members)
	}

	*d = out
	return nil
}

func upsert(dir Directory, index map[string]int, name string, members []string) Directory {
	members = nonNil(members)
	if pos, ok := index[name]; ok {
		dir[pos].Members = members
		return dir
	}
	index[name] = len(dir)
	return append(dir, Room{Name: name, Members: members})
}

func nonNil(members []string) []string {
	if members == nil {
		return []string{}
	}
	return members
}
