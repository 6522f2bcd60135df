package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
)

// candidateMultiplier widens the Elasticsearch result set so the fusion step
// has more than topK candidates to rerank.
const candidateMultiplier = 2

// DurationRecorder is satisfied by *observability.Observability.
type DurationRecorder interface {
	RecordRetrievalDuration(ctx context.Context, duration time.Duration, index string)
}

// Retriever runs lexical search against the legal document index and reranks
// the result. Results may legitimately be empty; the caller decides what an
// empty context means.
type Retriever struct {
	client  *elasticsearch.Client
	index   string
	topK    int
	timeout time.Duration
	obs     DurationRecorder
	logger  logger.Logger
}

func NewRetriever(client *elasticsearch.Client, index string, topK int, timeout time.Duration, obs DurationRecorder, log logger.Logger) *Retriever {
	if topK <= 0 {
		topK = 10
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Retriever{
		client:  client,
		index:   index,
		topK:    topK,
		timeout: timeout,
		obs:     obs,
		logger:  log.WithFields(map[string]interface{}{"component": "retrieval", "index": index}),
	}
}

// Search returns the fused top snippets for a query, ordered best first.
// Duration is recorded for every outcome, timeouts and errors included.
func (r *Retriever) Search(ctx context.Context, query string) ([]Snippet, error) {
	start := time.Now()
	defer func() {
		if r.obs != nil {
			r.obs.RecordRetrievalDuration(ctx, time.Since(start), r.index)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"content^2", "title", "article"},
				"type":   "best_fields",
			},
		},
	}
	body, _ := json.Marshal(queryBody)

	size := r.topK * candidateMultiplier
	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewRetrievalTimeoutError(r.index)
		}
		return nil, errors.NewRetrievalQueryFailedError(r.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, errors.NewIndexNotFoundError(r.index)
		}
		return nil, errors.NewRetrievalQueryFailedError(r.index, fmt.Errorf("search failed: %s", res.Status()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Title   string `json:"title"`
					Content string `json:"content"`
					Article string `json:"article"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewRetrievalQueryFailedError(r.index, err)
	}

	candidates := make([]Snippet, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		source := hit.Source.Article
		if source == "" {
			source = hit.Source.Title
		}
		if source == "" {
			source = hit.ID
		}
		candidates = append(candidates, Snippet{
			Source: source,
			Text:   hit.Source.Content,
			Score:  hit.Score,
		})
	}

	fused := Rerank(query, candidates, r.topK)
	r.logger.Debug("retrieval complete", map[string]interface{}{
		"candidates": len(candidates),
		"returned":   len(fused),
	})
	return fused, nil
}
