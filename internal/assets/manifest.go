package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Entry maps one logical asset name to its hashed path on disk.
type Entry struct {
	Name string
	Path string
}

// Manifest is the ordered, read-only view of the build manifest.
type Manifest struct {
	entries []Entry
	index   map[string]string
}

// NewManifest builds a manifest from entries, keeping their order. Later
// duplicates replace the path of the first occurrence.
func NewManifest(entries ...Entry) *Manifest {
	m := &Manifest{index: make(map[string]string, len(entries))}
	for _, e := range entries {
		if _, exists := m.index[e.Name]; exists {
			for i := range m.entries {
				if m.entries[i].Name == e.Name {
					m.entries[i].Path = e.Path
				}
			}
		} else {
			m.entries = append(m.entries, e)
		}
		m.index[e.Name] = e.Path
	}
	return m
}

// LoadManifest reads a manifest JSON file ({"app.js": "/assets/app-<hash>.js", ...}).
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes manifest JSON preserving key order. Non-string values
// are ignored.
func ParseManifest(raw []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse manifest: expected object")
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		key, _ := keyTok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", key, err)
		}
		if path, ok := value.(string); ok {
			entries = append(entries, Entry{Name: key, Path: path})
		}
	}
	return NewManifest(entries...), nil
}

// Lookup returns the hashed path for a logical name.
func (m *Manifest) Lookup(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	path, ok := m.index[name]
	return path, ok
}

// Entries returns the manifest entries in file order.
func (m *Manifest) Entries() []Entry {
	if m == nil {
		return nil
	}
	return append([]Entry(nil), m.entries...)
}

// Len reports the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}
