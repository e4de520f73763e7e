package whitelist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRulesKeepsOrderAndNesting(t *testing.T) {
	rules, err := ParseRules([]byte(`
config:
  - cdn-image
  - polltype-host
data.collection:
  - summary
  - items:
      - id
      - associated-metadata
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rules) != 2 || rules[0].Path != "config" || rules[1].Path != "data.collection" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	cfg := rules[0].Descriptor.Fields
	if len(cfg) != 2 || cfg[0].Key != "cdn-image" || cfg[1].Key != "polltype-host" {
		t.Fatalf("unexpected config descriptor: %+v", cfg)
	}
	collection := rules[1].Descriptor.Fields
	if len(collection) != 2 || collection[1].Key != "items" || collection[1].Nested == nil {
		t.Fatalf("items should be nested: %+v", collection)
	}
	if items := collection[1].Nested.Fields; len(items) != 2 || items[0].Key != "id" {
		t.Fatalf("unexpected items descriptor: %+v", items)
	}
}

func TestParseRulesMappingForm(t *testing.T) {
	rules, err := ParseRules([]byte(`
config:
  cdn-image: true
  social-links:
    - link1
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	fields := rules[0].Descriptor.Fields
	if len(fields) != 2 || fields[0].Nested != nil || fields[1].Nested == nil {
		t.Fatalf("unexpected mapping descriptor: %+v", fields)
	}
}

func TestParseRulesEmptyDocument(t *testing.T) {
	rules, err := ParseRules([]byte(""))
	if err != nil {
		t.Fatalf("empty document should parse: %v", err)
	}
	if !rules.Empty() {
		t.Fatalf("empty document should produce empty rules")
	}
	rules, err = ParseRules([]byte("config:\n"))
	if err != nil {
		t.Fatalf("null descriptor should parse: %v", err)
	}
	if !rules.Empty() {
		t.Fatalf("null descriptor should not filter")
	}
}

func TestParseRulesRejectsSequenceRoot(t *testing.T) {
	if _, err := ParseRules([]byte("- config\n")); err == nil {
		t.Fatalf("a sequence root is not a rule set")
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	if rules, err := LoadRules(""); err != nil || rules != nil {
		t.Fatalf("empty path should yield no rules, got %v %v", rules, err)
	}
	path := filepath.Join(t.TempDir(), "mobile.yml")
	if err := os.WriteFile(path, []byte("config:\n  - cdn-image\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Descriptor.Fields[0].Key != "cdn-image" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}
