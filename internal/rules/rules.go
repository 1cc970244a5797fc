// Package rules holds the classification schema and routing table loaded once
// at startup and shared read-only by every pipeline invocation.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mailtriage/internal"
)

// RoutingValue is a tagged variant: a request type routes either through one
// flat entry or through a map keyed by sub-request type. Exactly one of the
// two fields is set after unmarshalling.
type RoutingValue struct {
	Flat *internal.RoutingEntry
	Sub  map[string]internal.RoutingEntry
}

func (v *RoutingValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("routing value must be a mapping, got %s", node.Tag)
	}

	flat := len(node.Content) > 0
	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "role", "assigned_to":
		default:
			flat = false
		}
	}

	if flat {
		var entry internal.RoutingEntry
		if err := node.Decode(&entry); err != nil {
			return err
		}
		v.Flat = &entry
		return nil
	}

	sub := map[string]internal.RoutingEntry{}
	if err := node.Decode(&sub); err != nil {
		return err
	}
	v.Sub = sub
	return nil
}

type Table map[string]RoutingValue

var unassigned = internal.RoutingEntry{Role: "Unassigned", AssignedTo: "General Support"}

// Resolve maps a (requestType, subRequestType) pair to a routing entry.
// Unknown request types fall back to the unassigned entry. When the value is
// keyed by sub-request type, a sub lookup miss also falls back: sub-request
// specificity is mandatory once a type is configured at that granularity,
// never the parent's entry.
func (t Table) Resolve(requestType, subRequestType string) internal.RoutingEntry {
	value, ok := t[requestType]
	if !ok {
		return unassigned
	}
	if value.Flat != nil {
		return *value.Flat
	}
	entry, ok := value.Sub[subRequestType]
	if !ok {
		return unassigned
	}
	return entry
}

// Rules is the full rules file: the classification taxonomy, the fields the
// model should extract per request type, and the routing table.
type Rules struct {
	Criteria          map[string][]string `yaml:"classification_criteria"`
	ExtractableFields map[string][]string `yaml:"extractable_fields"`
	Routing           Table               `yaml:"roles_and_skills"`
}

func Load(path string) (*Rules, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(blob)
}

func Parse(blob []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(blob, &r); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(r.Criteria) == 0 {
		return nil, fmt.Errorf("rules file defines no classification_criteria")
	}
	if r.ExtractableFields == nil {
		r.ExtractableFields = map[string][]string{}
	}
	if r.Routing == nil {
		r.Routing = Table{}
	}
	return &r, nil
}
