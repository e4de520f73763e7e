package cms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Config is the publisher configuration document served by the CMS. It keeps
// the original bytes so re-encoding preserves the CMS key order, and a decoded
// map for lookups.
type Config struct {
	raw    json.RawMessage
	fields map[string]any
}

// ParseConfig decodes a CMS config document. Numbers stay json.Number.
func ParseConfig(raw []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Config{}, fmt.Errorf("decode cms config: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return Config{raw: append(json.RawMessage(nil), raw...), fields: fields}, nil
}

// NewConfig wraps an in-memory map, mainly for tests and fixtures. Encoding
// such a config sorts its keys.
func NewConfig(fields map[string]any) Config {
	if fields == nil {
		fields = map[string]any{}
	}
	return Config{fields: fields}
}

// Get returns a top-level config value.
func (c Config) Get(key string) (any, bool) {
	v, ok := c.fields[key]
	return v, ok
}

// MarshalJSON re-emits the original document when available.
func (c Config) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	if c.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.fields)
}

// Domain is one entry of the config "domains" list.
type Domain struct {
	Slug    string `mapstructure:"slug"`
	HostURL string `mapstructure:"host-url"`
}

// Section is a CMS section as used for route generation.
type Section struct {
	ID         int    `mapstructure:"id"`
	Slug       string `mapstructure:"slug"`
	Name       string `mapstructure:"name"`
	ParentID   int    `mapstructure:"parent-id"`
	DomainSlug string `mapstructure:"domain-slug"`
}

// ThemeAttributes holds the theme keys this service reads.
type ThemeAttributes struct {
	CacheBurst int `mapstructure:"cache-burst"`
}

// PagebuilderConfig holds the page-builder keys this service reads.
type PagebuilderConfig struct {
	Version int `mapstructure:"version"`
}

// HostView is the subset of Config the domain resolver reads.
type HostView struct {
	SketchesHost string
	Domains      []Domain
}

// ConfigView is the typed subset of Config the service relies on. Missing
// or malformed keys decode to zero values.
type ConfigView struct {
	HostView
	Sections          []Section
	ThemeAttributes   ThemeAttributes
	PagebuilderConfig PagebuilderConfig
}

// DecodeHosts reads sketches-host and domains only. Malformed domain entries
// are skipped and a malformed sketches-host reads as "".
func DecodeHosts(cfg Config) HostView {
	host, _ := decodeKey[string](cfg.fields, "sketches-host")
	domains, _ := decodeList[Domain](cfg.fields, "domains")
	return HostView{SketchesHost: host, Domains: domains}
}

// DecodeView extracts the typed view from cfg, accepting numbers encoded as
// strings or json.Number. Every key decodes on its own: a malformed key is
// left at its zero value, list entries that fail are dropped, and the
// returned error lists what was skipped. The view is usable either way.
func DecodeView(cfg Config) (ConfigView, error) {
	var (
		view ConfigView
		errs []error
		err  error
	)
	if view.SketchesHost, err = decodeKey[string](cfg.fields, "sketches-host"); err != nil {
		errs = append(errs, err)
	}
	if view.Domains, err = decodeList[Domain](cfg.fields, "domains"); err != nil {
		errs = append(errs, err)
	}
	if view.Sections, err = decodeList[Section](cfg.fields, "sections"); err != nil {
		errs = append(errs, err)
	}
	if view.ThemeAttributes, err = decodeKey[ThemeAttributes](cfg.fields, "theme-attributes"); err != nil {
		errs = append(errs, err)
	}
	if view.PagebuilderConfig, err = decodeKey[PagebuilderConfig](cfg.fields, "pagebuilder-config"); err != nil {
		errs = append(errs, err)
	}
	return view, errors.Join(errs...)
}

// DomainBySlug finds the domain entry with the given slug.
func (v HostView) DomainBySlug(slug string) (Domain, bool) {
	for _, d := range v.Domains {
		if d.Slug == slug {
			return d, true
		}
	}
	return Domain{}, false
}

func decodeKey[T any](fields map[string]any, key string) (T, error) {
	var out T
	value, ok := fields[key]
	if !ok || value == nil {
		return out, nil
	}
	if err := weakDecode(value, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("decode cms config %s: %w", key, err)
	}
	return out, nil
}

func decodeList[T any](fields map[string]any, key string) ([]T, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return nil, nil
	}
	items := reflect.ValueOf(value)
	if items.Kind() != reflect.Slice && items.Kind() != reflect.Array {
		return nil, fmt.Errorf("decode cms config %s: expected a list, got %T", key, value)
	}
	out := make([]T, 0, items.Len())
	var errs []error
	for i := 0; i < items.Len(); i++ {
		var item T
		if err := weakDecode(items.Index(i).Interface(), &item); err != nil {
			errs = append(errs, fmt.Errorf("decode cms config %s[%d]: %w", key, i, err))
			continue
		}
		out = append(out, item)
	}
	return out, errors.Join(errs...)
}

func weakDecode(input, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
