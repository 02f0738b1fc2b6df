package training

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Document is a generic view of a stored training sample.
type Document map[string]any

// ChangeRecord is one top-level or nested key whose value changed in a merge.
type ChangeRecord struct {
	Key      string `json:"key"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
}

// Merge deep-merges update into existing and returns the merged document with
// the keys whose values changed. Nested objects merge key by key; any other
// value, lists included, replaces the stored one. Keys missing from update
// are preserved.
func Merge(existing, update []byte) ([]byte, []ChangeRecord, error) {
	base, err := parseDocument(existing)
	if err != nil {
		return nil, nil, fmt.Errorf("parse stored sample: %w", err)
	}
	next, err := parseDocument(update)
	if err != nil {
		return nil, nil, fmt.Errorf("parse new sample: %w", err)
	}

	var changes []ChangeRecord
	merged := mergeMaps("", base, next, &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("encode merged sample: %w", err)
	}
	return out, changes, nil
}

func parseDocument(b []byte) (Document, error) {
	doc := make(Document)
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func mergeMaps(prefix string, base, next map[string]any, changes *[]ChangeRecord) map[string]any {
	out := make(map[string]any, len(base)+len(next))
	for k, v := range base {
		out[k] = v
	}

	for k, nv := range next {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		cur, ok := out[k]
		if !ok {
			*changes = append(*changes, ChangeRecord{Key: key, NewValue: nv})
			out[k] = nv
			continue
		}

		cm, curIsMap := cur.(map[string]any)
		nm, nextIsMap := nv.(map[string]any)
		if curIsMap && nextIsMap {
			out[k] = mergeMaps(key, cm, nm, changes)
			continue
		}

		if !sameJSON(cur, nv) {
			*changes = append(*changes, ChangeRecord{Key: key, OldValue: cur, NewValue: nv})
		}
		out[k] = nv
	}

	return out
}

func sameJSON(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
