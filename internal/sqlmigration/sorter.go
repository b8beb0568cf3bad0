package sqlmigration

import "sort"

// Sort returns a new slice of files sorted by Version in lexicographic order.
// The sort is stable to preserve insertion order for equal versions.
func Sort(files []File) []File {
	sorted := make([]File, len(files))
	copy(sorted, files)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	return sorted
}
