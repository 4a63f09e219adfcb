package audit

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

// Diff lists the values of changedFields in both snapshots. When
// changedFields is empty every differing field is listed. Object and array
// values are rendered as indented JSON instead of being compared
// structurally.
func Diff(oldData, newData map[string]any, changedFields []string) []models.FieldDiff {
	fields := changedFields
	if len(fields) == 0 {
		keys := map[string]struct{}{}
		for k := range oldData {
			keys[k] = struct{}{}
		}
		for k := range newData {
			keys[k] = struct{}{}
		}
		for k := range keys {
			if !reflect.DeepEqual(oldData[k], newData[k]) {
				fields = append(fields, k)
			}
		}
		sort.Strings(fields)
	}

	out := make([]models.FieldDiff, 0, len(fields))
	for _, f := range fields {
		out = append(out, models.FieldDiff{
			Field:    f,
			OldValue: display(oldData[f]),
			NewValue: display(newData[f]),
		})
	}
	return out
}

func display(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}
