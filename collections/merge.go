package collections

// MergeByID merges two result sets of collections into one, deduplicating by
// document ID. The primary set is processed first and wins ties: a legacy
// schema query result for an ID already seen in the current schema result is
// discarded. Insertion order is preserved, primary before secondary.
func MergeByID(primary, secondary []Collection) []Collection {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	merged := make([]Collection, 0, len(primary)+len(secondary))
	for _, set := range [][]Collection{primary, secondary} {
		for _, c := range set {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			merged = append(merged, c)
		}
	}
	return merged
}
