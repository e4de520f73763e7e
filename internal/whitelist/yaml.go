package whitelist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRules reads a rule file. An empty path yields no rules.
//
//	config:
//	  - cdn-image
//	data.collection:
//	  - summary
//	  - items:
//	      - id
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes YAML rules, keeping the document's key order.
func ParseRules(raw []byte) (Rules, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("whitelist line %d: expected a mapping of paths", root.Line)
	}

	rules := make(Rules, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		path := root.Content[i].Value
		d, err := parseDescriptor(root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("whitelist %s: %w", path, err)
		}
		rules = append(rules, Rule{Path: path, Descriptor: d})
	}
	return rules, nil
}

func parseDescriptor(node *yaml.Node) (Descriptor, error) {
	var d Descriptor
	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) {
			return d, nil
		}
		return Keys(node.Value), nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				d.Fields = append(d.Fields, Field{Key: item.Value})
			case yaml.MappingNode:
				fields, err := parseMapping(item)
				if err != nil {
					return d, err
				}
				d.Fields = append(d.Fields, fields...)
			default:
				return d, fmt.Errorf("line %d: unsupported entry", item.Line)
			}
		}
		return d, nil
	case yaml.MappingNode:
		fields, err := parseMapping(node)
		if err != nil {
			return d, err
		}
		d.Fields = fields
		return d, nil
	default:
		return d, fmt.Errorf("line %d: unsupported node", node.Line)
	}
}

func parseMapping(node *yaml.Node) ([]Field, error) {
	fields := make([]Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		if value.Kind == yaml.ScalarNode {
			fields = append(fields, Field{Key: key})
			continue
		}
		nested, err := parseDescriptor(value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Nested: &nested})
	}
	return fields, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && (node.Tag == "!!null" || node.Value == "")
}
