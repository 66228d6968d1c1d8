package review

// Merge combines two record maps into a new map. Keys from overlay win on
// collision; neither input is modified. Used to fold shop contact fields
// over the pending submission when building an accepted record.
func Merge(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
