package graph

import (
	"reflect"
)

// Reserved extraction property keys.
const (
	PropExtractionConfidence    = "_extraction_confidence"
	PropExtractionLLMConfidence = "_extraction_llm_confidence"
	PropExtractionSource        = "_extraction_source"
	PropExtractionSourceID      = "_extraction_source_id"
	PropExtractionJobID         = "_extraction_job_id"
	PropExtractionMergedJobIDs  = "_extraction_merged_job_ids"
)

// MergeProperties merges incoming properties into an existing object's
// properties without overwriting established values:
//   - absent or empty existing values are filled from incoming
//   - list values are unioned, preserving existing order
//   - the description is only taken when the existing one is empty
//   - the original _extraction_job_id is preserved; the incoming job id is
//     appended to _extraction_merged_job_ids instead
//
// The returned map is a new map; changed reports whether anything differs
// from existing.
func MergeProperties(existing, incoming map[string]any) (map[string]any, bool) {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}

	changed := false
	for key, incomingVal := range incoming {
		if incomingVal == nil {
			continue
		}

		if key == PropExtractionJobID {
			if appendMergedJobID(merged, incomingVal) {
				changed = true
			}
			continue
		}

		existingVal, present := merged[key]
		switch {
		case !present || isEmptyValue(existingVal):
			merged[key] = incomingVal
			changed = true
		case isList(existingVal) && isList(incomingVal):
			union, grew := unionLists(existingVal, incomingVal)
			if grew {
				merged[key] = union
				changed = true
			}
		}
		// Established scalar values win over incoming ones.
	}

	return merged, changed
}

// appendMergedJobID keeps the original _extraction_job_id and records the
// incoming job id in _extraction_merged_job_ids.
func appendMergedJobID(merged map[string]any, incomingVal any) bool {
	jobID, ok := incomingVal.(string)
	if !ok || jobID == "" {
		return false
	}

	if existing, present := merged[PropExtractionJobID]; !present || isEmptyValue(existing) {
		merged[PropExtractionJobID] = jobID
		return true
	}
	if merged[PropExtractionJobID] == jobID {
		return false
	}

	var ids []any
	if prev, ok := merged[PropExtractionMergedJobIDs].([]any); ok {
		ids = prev
	}
	for _, id := range ids {
		if id == jobID {
			return false
		}
	}
	merged[PropExtractionMergedJobIDs] = append(ids, jobID)
	return true
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func unionLists(existingVal, incomingVal any) ([]any, bool) {
	existing := toAnySlice(existingVal)
	incoming := toAnySlice(incomingVal)

	union := make([]any, len(existing))
	copy(union, existing)

	grew := false
	for _, item := range incoming {
		if !containsValue(union, item) {
			union = append(union, item)
			grew = true
		}
	}
	return union, grew
}

func toAnySlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func containsValue(list []any, item any) bool {
	for _, existing := range list {
		if reflect.DeepEqual(existing, item) {
			return true
		}
	}
	return false
}
