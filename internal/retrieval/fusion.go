package retrieval

import (
	"regexp"
	"sort"
	"strings"
)

// rrfK is the standard dampening constant from Cormack et al. 2009.
const rrfK = 60

// frStopwords are dropped during tokenization so that French function words
// do not dominate lexical overlap.
var frStopwords = map[string]bool{
	"le": true, "la": true, "les": true, "de": true, "du": true, "des": true,
	"un": true, "une": true, "et": true, "en": true, "à": true, "au": true,
	"aux": true, "est": true, "pour": true, "par": true, "sur": true,
	"ce": true, "je": true, "il": true, "elle": true, "on": true,
	"nous": true, "vous": true, "ils": true, "elles": true, "que": true,
	"qui": true, "ou": true, "si": true, "ne": true, "pas": true,
	"plus": true, "avec": true, "dans": true,
}

// tokenPattern keeps Latin letters with their diacritics, which both French
// and Vietnamese text depend on.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9\x{00C0}-\x{024F}]+`)

// Tokenize lower-cases, splits on non-alphanumeric runs and drops short
// tokens and French stop words.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len([]rune(tok)) > 1 && !frStopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// Rerank fuses the store's ranking (best first, as handed in) with a lexical
// token-overlap ranking of the same candidates using reciprocal rank fusion,
// returning at most topN snippets. An empty tokenized query leaves the store
// ordering untouched.
func Rerank(query string, docs []Snippet, topN int) []Snippet {
	if len(docs) == 0 {
		return nil
	}
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return docs[:topN]
	}

	storeRank := make([]int, len(docs))
	for i := range docs {
		storeRank[i] = i
	}

	fused := rrfMerge([][]int{storeRank, lexicalRank(queryTokens, docs)}, len(docs), topN)
	out := make([]Snippet, 0, len(fused))
	for _, i := range fused {
		out = append(out, docs[i])
	}
	return out
}

// lexicalRank orders document indices by how many query-token occurrences
// each document contains, ties broken by original position for determinism.
func lexicalRank(queryTokens []string, docs []Snippet) []int {
	scores := make([]int, len(docs))
	for i, doc := range docs {
		counts := make(map[string]int)
		for _, tok := range Tokenize(doc.Text) {
			counts[tok]++
		}
		for _, q := range queryTokens {
			scores[i] += counts[q]
		}
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

func rrfMerge(rankedLists [][]int, nDocs, topN int) []int {
	scores := make([]float64, nDocs)
	for _, list := range rankedLists {
		for rank, idx := range list {
			scores[idx] += 1.0 / float64(rrfK+rank+1)
		}
	}

	order := make([]int, nDocs)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topN > nDocs {
		topN = nDocs
	}
	return order[:topN]
}
