package registry

// Selection is the resolved, immutable set of tests for one run, in
// registration order.
type Selection struct {
	cases []TestCase
	index map[string]bool
}

// Len returns the number of selected tests.
func (s Selection) Len() int {
	return len(s.cases)
}

// Contains reports whether id is selected.
func (s Selection) Contains(id string) bool {
	return s.index[id]
}

// IDs returns the selected ids in order.
func (s Selection) IDs() []string {
	ids := make([]string, len(s.cases))
	for i, tc := range s.cases {
		ids[i] = tc.ID
	}
	return ids
}

// Cases returns the selected test cases in order.
func (s Selection) Cases() []TestCase {
	out := make([]TestCase, len(s.cases))
	copy(out, s.cases)
	return out
}

// OfKind returns the selected test cases of one kind, in order.
func (s Selection) OfKind(kind Kind) []TestCase {
	var out []TestCase
	for _, tc := range s.cases {
		if tc.Kind == kind {
			out = append(out, tc)
		}
	}
	return out
}
