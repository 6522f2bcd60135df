package topics

import (
	"strings"

	"admin-gateway/internal/common/logger"
)

// IndexEntry is one normalized keyword mapped to its owning topic.
type IndexEntry struct {
	Keyword string
	TopicID string
}

// KeywordIndex maps normalized keywords to topic ids. Built once after the
// registry loads, read-only afterwards, so concurrent lookups need no locking.
type KeywordIndex struct {
	byKeyword map[string]string
	entries   []IndexEntry
}

// BuildIndex derives the keyword index from the registry. When two topics
// claim the same keyword the earlier-declared topic keeps it; the conflict is
// logged so registry authors can see which declaration won.
func BuildIndex(reg *Registry, log logger.Logger) *KeywordIndex {
	idx := &KeywordIndex{byKeyword: make(map[string]string)}

	for _, topic := range reg.All() {
		for _, kw := range topic.AllKeywords() {
			if owner, exists := idx.byKeyword[kw]; exists {
				if owner != topic.ID && log != nil {
					log.Warn("keyword claimed by multiple topics, earlier declaration wins", map[string]interface{}{
						"keyword": kw,
						"kept":    owner,
						"ignored": topic.ID,
					})
				}
				continue
			}
			idx.byKeyword[kw] = topic.ID
			idx.entries = append(idx.entries, IndexEntry{Keyword: kw, TopicID: topic.ID})
		}
	}

	return idx
}

// Lookup returns the topic owning an exact normalized keyword.
func (idx *KeywordIndex) Lookup(keyword string) (string, bool) {
	id, ok := idx.byKeyword[Normalize(keyword)]
	return id, ok
}

// MatchCounts scans the whole index against a query and counts, per topic,
// how many distinct keywords appear as substrings of the normalized query.
// Substring containment tolerates inflection and surrounding words; the
// occasional false positive on short keywords is accepted in exchange for
// recall.
func (idx *KeywordIndex) MatchCounts(query string) map[string]int {
	normalized := Normalize(query)
	counts := make(map[string]int)
	if normalized == "" {
		return counts
	}
	for _, entry := range idx.entries {
		if strings.Contains(normalized, entry.Keyword) {
			counts[entry.TopicID]++
		}
	}
	return counts
}

// Entries returns every keyword mapping in insertion order.
func (idx *KeywordIndex) Entries() []IndexEntry {
	return idx.entries
}

// Size returns the number of indexed keywords.
func (idx *KeywordIndex) Size() int {
	return len(idx.entries)
}
