// Package classify turns free-text queries into topic ids and intent labels.
// Topic detection is keyword-driven and never calls a model, so it can run on
// every turn at zero added latency.
package classify

import (
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/topics"
)

// Classifier resolves queries against the keyword index.
type Classifier struct {
	registry *topics.Registry
	index    *topics.KeywordIndex
	logger   logger.Logger
}

func NewClassifier(registry *topics.Registry, index *topics.KeywordIndex, log logger.Logger) *Classifier {
	return &Classifier{
		registry: registry,
		index:    index,
		logger:   log.WithFields(map[string]interface{}{"component": "classifier"}),
	}
}

// DetectTopic returns the best-matching topic id for a query, or "" when no
// keyword matches. The topic with the most distinct matching keywords wins.
// Ties prefer the hint when it is among the tied topics, then the
// earliest-declared topic.
func (c *Classifier) DetectTopic(query, hint string) string {
	counts := c.index.MatchCounts(query)
	if len(counts) == 0 {
		return ""
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	var tied []string
	for _, topic := range c.registry.All() {
		if counts[topic.ID] == max {
			tied = append(tied, topic.ID)
		}
	}

	if len(tied) > 1 {
		hint = topics.Normalize(hint)
		for _, id := range tied {
			if id == hint {
				c.logger.Debug("topic tie resolved by upstream hint", map[string]interface{}{
					"topic":      id,
					"candidates": tied,
				})
				return id
			}
		}
		c.logger.Debug("topic tie resolved by declaration order", map[string]interface{}{
			"topic":      tied[0],
			"candidates": tied,
		})
	}

	return tied[0]
}
