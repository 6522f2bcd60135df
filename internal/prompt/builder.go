// Package prompt renders topic-scoped instruction fragments for the
// generator: the topic's rules, the profile variables still to collect, and
// the exemplars anchoring the response format.
package prompt

import (
	"fmt"
	"strings"

	"admin-gateway/internal/topics"
)

// Builder renders prompt fragments from the immutable topic registry. All
// methods are pure functions of their arguments, safe for concurrent turns.
type Builder struct {
	registry *topics.Registry
}

func NewBuilder(registry *topics.Registry) *Builder {
	return &Builder{registry: registry}
}

// BuildFragment renders the instruction fragment for a resolved topic. Block
// order is fixed: rules first, then the variables to ask for, then exemplars
// last so they are freshest in context. The variable block merges the
// mandatory variables missing from the profile with the conditional variables
// whose trigger substring occurs in the query; variables the profile already
// holds are omitted, and when nothing remains the whole block is dropped. An
// empty topicID yields the global-rules fallback, never an empty string.
func (b *Builder) BuildFragment(topicID string, profile map[string]string, query string) string {
	if topicID == "" {
		return b.BuildGlobalRules()
	}
	topic, err := b.registry.Get(topicID)
	if err != nil {
		return b.BuildGlobalRules()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "TOPIC: %s\n", topic.DisplayName)

	if len(topic.Rules) > 0 {
		sb.WriteString("\nRULES FOR THIS TOPIC:\n")
		for _, rule := range topic.Rules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}

	vars := missingVariables(topic, profile)
	vars = append(vars, topic.ApplicableConditionals(query)...)
	if len(vars) > 0 {
		sb.WriteString("\nVARIABLES YOU MUST ASK FOR (if not already known):\n")
		for _, v := range vars {
			if v.Why != "" {
				fmt.Fprintf(&sb, "- %s: %s\n", v.Name, v.Why)
			} else {
				fmt.Fprintf(&sb, "- %s\n", v.Name)
			}
		}
	}

	for _, ex := range topic.Exemplars {
		sb.WriteString("\nEXAMPLE for this topic:\n")
		fmt.Fprintf(&sb, "Input: %s\n", ex.Input)
		fmt.Fprintf(&sb, "Expected output:\n%s\n", ex.Output)
	}

	return strings.TrimSpace(sb.String())
}

// BuildGlobalRules renders the topic-independent rule sets (format
// requirements, disclaimers). Composed by the caller alongside the topic
// fragment, never duplicated inside it.
func (b *Builder) BuildGlobalRules() string {
	var sb strings.Builder
	for _, set := range b.registry.GlobalRules() {
		category := strings.ToUpper(strings.ReplaceAll(set.Category, "_", " "))
		fmt.Fprintf(&sb, "\n%s:\n", category)
		for _, rule := range set.Rules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		out = "Answer only questions about public administration procedures."
	}
	return out
}

// Missing returns the names of a topic's mandatory variables not yet present
// in the profile, in the topic's declared priority order. Unknown topics
// have no mandatory variables.
func (b *Builder) Missing(topicID string, profile map[string]string) []string {
	topic, err := b.registry.Get(topicID)
	if err != nil {
		return nil
	}
	vars := missingVariables(topic, profile)
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.Name)
	}
	return names
}

// missingVariables keeps the topic's declared priority order. A value of
// "None" counts as missing, matching how upstream extraction marks unknowns.
func missingVariables(topic *topics.TopicDefinition, profile map[string]string) []topics.Variable {
	var missing []topics.Variable
	for _, v := range topic.MandatoryVariables {
		value, ok := profile[v.Name]
		if !ok || value == "" || value == "None" {
			missing = append(missing, v)
		}
	}
	return missing
}
