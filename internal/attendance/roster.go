package attendance

import "sort"

// UniqueNames normalizes, de-duplicates and sorts names. Empty names are dropped.
// Enrollment can yield the same person once per photo sample.
func UniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeName(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ComputeAbsentees returns every roster member without a record, sorted by name.
func ComputeAbsentees(roster []string, records map[string]Record) []string {
	absent := make([]string, 0)
	for _, name := range UniqueNames(roster) {
		if _, ok := records[name]; !ok {
			absent = append(absent, name)
		}
	}
	return absent
}

// PresentNames returns the names that have a record, sorted.
func PresentNames(records map[string]Record) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
