package reconcile

// SeenSet records the EANs already reconciled in one batch run so a product
// listed twice in the same crawl is applied once.
type SeenSet struct {
	eans map[int64]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{eans: make(map[int64]struct{})}
}

// Seen reports whether ean was already marked.
func (s *SeenSet) Seen(ean int64) bool {
	_, ok := s.eans[ean]
	return ok
}

// Mark records ean as reconciled.
func (s *SeenSet) Mark(ean int64) {
	s.eans[ean] = struct{}{}
}

// Len returns the number of marked EANs.
func (s *SeenSet) Len() int {
	return len(s.eans)
}
