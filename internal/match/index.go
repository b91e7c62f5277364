package match

import (
	"sync"

	id "platbook/pkg/domain"
)

// Entry pairs a property with its current scoring profile.
type Entry struct {
	PropertyID id.PropertyID
	Profile    Profile
}

// Index is the read-mostly candidate index. Lookups bucket by city-state (or
// zip) so a new listing is only scored against properties that could
// plausibly be the same building. Rebuilt from the property store at startup;
// updated as consolidation changes profiles.
type Index struct {
	mu     sync.RWMutex
	bySlug map[string][]Entry
	slugOf map[id.PropertyID]string
}

func NewIndex() *Index {
	return &Index{
		bySlug: make(map[string][]Entry),
		slugOf: make(map[id.PropertyID]string),
	}
}

// Upsert inserts or replaces a property's profile, moving it between buckets
// if its slug changed.
func (ix *Index) Upsert(propertyID id.PropertyID, profile Profile) {
	slug := profile.SlugKey()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prev, ok := ix.slugOf[propertyID]; ok {
		ix.removeLocked(prev, propertyID)
	}
	if slug == "" {
		delete(ix.slugOf, propertyID)
		return
	}
	ix.bySlug[slug] = append(ix.bySlug[slug], Entry{PropertyID: propertyID, Profile: profile})
	ix.slugOf[propertyID] = slug
}

// Remove drops a property from the index.
func (ix *Index) Remove(propertyID id.PropertyID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if slug, ok := ix.slugOf[propertyID]; ok {
		ix.removeLocked(slug, propertyID)
		delete(ix.slugOf, propertyID)
	}
}

func (ix *Index) removeLocked(slug string, propertyID id.PropertyID) {
	entries := ix.bySlug[slug]
	for i, e := range entries {
		if e.PropertyID == propertyID {
			entries[i] = entries[len(entries)-1]
			entries = entries[:len(entries)-1]
			break
		}
	}
	if len(entries) == 0 {
		delete(ix.bySlug, slug)
	} else {
		ix.bySlug[slug] = entries
	}
}

// Candidates returns the entries sharing the profile's bucket. A profile with
// no usable bucket gets no candidates; the caller treats the listing as a new
// property.
func (ix *Index) Candidates(profile Profile) []Entry {
	slug := profile.SlugKey()
	if slug == "" {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := ix.bySlug[slug]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Rebuild atomically replaces the index contents.
func (ix *Index) Rebuild(entries []Entry) {
	bySlug := make(map[string][]Entry)
	slugOf := make(map[id.PropertyID]string)
	for _, e := range entries {
		slug := e.Profile.SlugKey()
		if slug == "" {
			continue
		}
		bySlug[slug] = append(bySlug[slug], e)
		slugOf[e.PropertyID] = slug
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.bySlug = bySlug
	ix.slugOf = slugOf
}

// Len reports how many properties are indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.slugOf)
}
