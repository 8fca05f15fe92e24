package model

import "strings"

// Headers is an ordered header list with case-insensitive lookup.
type Headers []KeyValue

// Get returns the first enabled value for name.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if !kv.Disabled && strings.EqualFold(kv.Key, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Has reports whether an enabled header named name exists.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Set replaces the first header named name and drops any duplicates,
// or appends a new entry. The original key casing is kept on replace.
func (h *Headers) Set(name, value string) {
	out := (*h)[:0]
	replaced := false
	for _, kv := range *h {
		if strings.EqualFold(kv.Key, name) {
			if replaced {
				continue
			}
			kv.Value = value
			kv.Disabled = false
			replaced = true
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, KeyValue{Key: name, Value: value})
	}
	*h = out
}

// Delete removes every header named name.
func (h *Headers) Delete(name string) {
	out := (*h)[:0]
	for _, kv := range *h {
		if !strings.EqualFold(kv.Key, name) {
			out = append(out, kv)
		}
	}
	*h = out
}

// Enabled returns the entries that are not disabled, in order.
func (h Headers) Enabled() []KeyValue {
	var out []KeyValue
	for _, kv := range h {
		if !kv.Disabled {
			out = append(out, kv)
		}
	}
	return out
}

// Map flattens enabled headers, last write wins.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, kv := range h.Enabled() {
		m[kv.Key] = kv.Value
	}
	return m
}

// Clone returns a copy that shares no backing array.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return append(Headers(nil), h...)
}
