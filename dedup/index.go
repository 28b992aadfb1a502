package dedup

import "github.com/use-agent/listwatch/models"

// Index is the set of listing states already in the collection, keyed by
// models.Property.Key. It is not safe for concurrent use.
type Index struct {
	keys map[string]struct{}
}

// NewIndex creates an Index holding every property in props.
func NewIndex(props []models.Property) *Index {
	idx := &Index{keys: make(map[string]struct{}, len(props))}
	for _, p := range props {
		idx.Add(p)
	}
	return idx
}

// Contains reports whether a property with the same listing state was added.
func (idx *Index) Contains(p models.Property) bool {
	_, ok := idx.keys[p.Key()]
	return ok
}

// Add records p's listing state.
func (idx *Index) Add(p models.Property) {
	idx.keys[p.Key()] = struct{}{}
}

// Len returns the number of distinct listing states.
func (idx *Index) Len() int {
	return len(idx.keys)
}
