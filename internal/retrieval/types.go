// Package retrieval searches the legal document index and fuses lexical and
// semantic rankings into one ordered snippet list.
package retrieval

// Snippet is one retrieved piece of source text with its identifier.
type Snippet struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}
