// Package topics holds the declarative topic registry: per-topic rules,
// mandatory variables, multilingual guardrail keywords and exemplars, loaded
// once at startup and immutable afterwards.
package topics

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"admin-gateway/internal/common/errors"
)

// DefaultLanguages is the language set a legacy flat keyword list expands to.
var DefaultLanguages = []string{"fr", "en", "vi"}

// DefaultStep controls whether a topic answers directly or asks qualifying
// questions first.
type DefaultStep string

const (
	StepDirectAnswer  DefaultStep = "DIRECT_ANSWER"
	StepClarification DefaultStep = "CLARIFICATION"
)

// Exemplar is an input/output pair steering the generator's response format.
type Exemplar struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
}

// Variable is a profile fact a topic needs before answering. Why tells the
// generator what to say when asking for it. When carries the query substring
// that activates a conditional variable; mandatory variables leave it empty.
type Variable struct {
	Name string `yaml:"name" json:"name"`
	Why  string `yaml:"why,omitempty" json:"why,omitempty"`
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// UnmarshalYAML accepts either a bare variable name or the full mapping.
func (v *Variable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Name = strings.TrimSpace(node.Value)
		return nil
	}
	type plain Variable
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*v = Variable(p)
	return nil
}

// TopicDefinition is one subject-matter bucket (immigration, labor, taxes...).
// Keywords are stored normalized: lower-cased and trimmed, diacritics kept
// because matching for French and Vietnamese depends on them.
type TopicDefinition struct {
	ID                   string
	DisplayName          string
	DefaultStep          DefaultStep
	MandatoryVariables   []Variable
	ConditionalVariables []Variable
	Keywords             map[string][]string
	Rules                []string
	Exemplars            []Exemplar
}

// ApplicableConditionals returns the conditional variables whose trigger
// substring occurs in the query, in declaration order. Matching uses the
// same normalization as keywords.
func (t *TopicDefinition) ApplicableConditionals(query string) []Variable {
	q := Normalize(query)
	if q == "" {
		return nil
	}
	var out []Variable
	for _, v := range t.ConditionalVariables {
		trigger := Normalize(v.When)
		if trigger != "" && strings.Contains(q, trigger) {
			out = append(out, v)
		}
	}
	return out
}

// AllKeywords returns the language-merged keyword set, de-duplicated, in a
// stable order (language code, then declaration order within the language).
func (t *TopicDefinition) AllKeywords() []string {
	langs := make([]string, 0, len(t.Keywords))
	for lang := range t.Keywords {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	seen := make(map[string]bool)
	var out []string
	for _, lang := range langs {
		for _, kw := range t.Keywords[lang] {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// GlobalRuleSet is one category of topic-independent rules (format
// requirements, disclaimers) in declaration order.
type GlobalRuleSet struct {
	Category string
	Rules    []string
}

// Registry exposes the loaded topic definitions. Declaration order is
// preserved: it is the tie-break authority for keyword conflicts and
// classifier ties.
type Registry struct {
	topics      []*TopicDefinition
	byID        map[string]*TopicDefinition
	globalRules []GlobalRuleSet
}

// Get returns the definition for id or a TOPIC_NOT_FOUND error.
func (r *Registry) Get(id string) (*TopicDefinition, error) {
	if def, ok := r.byID[id]; ok {
		return def, nil
	}
	return nil, errors.NewTopicNotFoundError(id)
}

// Has reports whether id is a declared topic.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns every definition in declaration order.
func (r *Registry) All() []*TopicDefinition {
	return r.topics
}

// GlobalRules returns the topic-independent rule sets in declaration order.
func (r *Registry) GlobalRules() []GlobalRuleSet {
	return r.globalRules
}

// Normalize applies the keyword/query normalization used everywhere in the
// registry: lower-case and trim, diacritics untouched.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
