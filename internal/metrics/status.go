package metrics

import "sort"

// FailureBucket is the number of sessions that ended for one reason.
type FailureBucket struct {
	Label string
	Count int
}

// FlattenFailures converts a label->count map into rows sorted by
// descending count, then by label for stability.
func FlattenFailures(failures map[string]int) []FailureBucket {
	if len(failures) == 0 {
		return nil
	}
	rows := make([]FailureBucket, 0, len(failures))
	for label, count := range failures {
		rows = append(rows, FailureBucket{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
