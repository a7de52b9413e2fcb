package graph

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// storedNode is the document form of a Node. Enabled is optional and
// defaults to true.
type storedNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Position Point          `json:"position" yaml:"position"`
	Size     *Size          `json:"size,omitempty" yaml:"size,omitempty"`
	Inputs   []string       `json:"inputs" yaml:"inputs"`
	Outputs  []string       `json:"outputs" yaml:"outputs"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled  *bool          `json:"enabled" yaml:"enabled"`
}

var nodeFields = map[string]bool{
	"id": true, "type": true, "position": true, "size": true,
	"inputs": true, "outputs": true, "config": true, "enabled": true,
}

func (s storedNode) node() Node {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return Node{
		ID:       s.ID,
		Type:     s.Type,
		Position: s.Position,
		Size:     s.Size,
		Inputs:   s.Inputs,
		Outputs:  s.Outputs,
		Config:   s.Config,
		Enabled:  enabled,
	}
}

// UnmarshalJSON decodes a node, rejecting unknown fields.
func (n *Node) UnmarshalJSON(b []byte) error {
	var s storedNode
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return err
	}
	*n = s.node()
	return nil
}

// UnmarshalYAML decodes a node, rejecting unknown fields.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			if key := value.Content[i]; !nodeFields[key.Value] {
				return fmt.Errorf("line %d: field %s not found in node", key.Line, key.Value)
			}
		}
	}
	var s storedNode
	if err := value.Decode(&s); err != nil {
		return err
	}
	*n = s.node()
	return nil
}
