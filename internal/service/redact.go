package service

import (
	"bytes"
	"encoding/json"
	"strings"
)

const redactedValue = "***"

// redactor masks sensitive keys anywhere inside a JSON body.
type redactor struct {
	keys map[string]struct{}
}

func newRedactor(keys []string) *redactor {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return &redactor{keys: set}
}

// Body returns body with sensitive values masked. Bodies that are not JSON
// objects or arrays are returned unchanged.
func (r *redactor) Body(body []byte) []byte {
	if len(r.keys) == 0 || len(body) == 0 {
		return body
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return body
	}
	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil || dec.More() {
		return body
	}
	if !r.redactValue(&data) {
		return body
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return body
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// redactValue reports whether anything was masked.
func (r *redactor) redactValue(v *interface{}) bool {
	changed := false
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if r.isSensitiveKey(key) {
				raw[key] = redactedValue
				changed = true
				continue
			}
			vv := val
			if r.redactValue(&vv) {
				raw[key] = vv
				changed = true
			}
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			if r.redactValue(&vv) {
				raw[i] = vv
				changed = true
			}
		}
	}
	return changed
}

func (r *redactor) isSensitiveKey(key string) bool {
	_, ok := r.keys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}
