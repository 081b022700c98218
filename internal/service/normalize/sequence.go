package normalize

// ContainsSequence reports whether needle occurs as a contiguous token run in haystack
func ContainsSequence(haystack, needle []string) bool {
	return IndexSequence(haystack, needle, 0) >= 0
}

// IndexSequence returns the first index at or after from where needle starts, or -1
func IndexSequence(haystack, needle []string, from int) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := from; i+len(needle) <= len(haystack); i++ {
		for j, n := range needle {
			if haystack[i+j] != n {
				continue outer
			}
		}
		return i
	}
	return -1
}
