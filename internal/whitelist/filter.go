package whitelist

import "strings"

// Field admits one key. A nil Nested admits the value unchanged; otherwise
// the value is filtered with Nested.
type Field struct {
	Key    string
	Nested *Descriptor
}

// Descriptor lists the keys permitted at one level. The zero value filters nothing.
type Descriptor struct {
	Fields []Field
}

// Keys builds a descriptor of leaf fields.
func Keys(keys ...string) Descriptor {
	d := Descriptor{Fields: make([]Field, len(keys))}
	for i, key := range keys {
		d.Fields[i] = Field{Key: key}
	}
	return d
}

// With appends a nested field and returns the descriptor.
func (d Descriptor) With(key string, nested Descriptor) Descriptor {
	d.Fields = append(append([]Field(nil), d.Fields...), Field{Key: key, Nested: &nested})
	return d
}

// Empty reports whether the descriptor admits everything.
func (d Descriptor) Empty() bool {
	return len(d.Fields) == 0
}

func (d Descriptor) lookup(key string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Filter walks value and keeps only the keys admitted by d. Arrays are
// filtered element-wise with the same descriptor; scalars pass through.
func Filter(value any, d Descriptor) any {
	if d.Empty() {
		return value
	}
	switch v := value.(type) {
	case Object:
		out := make(Object, 0, len(v))
		for _, m := range v {
			f, ok := d.lookup(m.Key)
			if !ok {
				continue
			}
			if f.Nested != nil {
				out = append(out, Member{Key: m.Key, Value: Filter(m.Value, *f.Nested)})
				continue
			}
			out = append(out, m)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Filter(item, d)
		}
		return out
	default:
		return value
	}
}

// Rule binds a descriptor to the object found at a dotted path.
type Rule struct {
	Path       string
	Descriptor Descriptor
}

// Rules is an ordered rule set; rules apply one after another.
type Rules []Rule

// Empty reports whether applying the rules can change anything.
func (r Rules) Empty() bool {
	for _, rule := range r {
		if !rule.Descriptor.Empty() {
			return false
		}
	}
	return true
}

// Apply returns a copy of root with every rule applied at its path. Rules
// whose path does not exist in root are skipped.
func (r Rules) Apply(root Object) Object {
	for _, rule := range r {
		if rule.Descriptor.Empty() {
			continue
		}
		segments := strings.Split(rule.Path, ".")
		if out, ok := applyAt(root, segments, rule.Descriptor).(Object); ok {
			root = out
		}
	}
	return root
}

func applyAt(value any, segments []string, d Descriptor) any {
	if len(segments) == 0 {
		return Filter(value, d)
	}
	obj, ok := value.(Object)
	if !ok {
		return value
	}
	out := make(Object, len(obj))
	copy(out, obj)
	for i := range out {
		if out[i].Key == segments[0] {
			out[i].Value = applyAt(out[i].Value, segments[1:], d)
		}
	}
	return out
}
