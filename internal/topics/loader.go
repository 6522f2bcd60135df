package topics

import (
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"admin-gateway/internal/common/errors"
)

// registrySchema is the structural contract for topics.yaml. A definition
// that fails it is a configuration defect, fatal at startup.
const registrySchema = `{
	"type": "object",
	"required": ["topics"],
	"properties": {
		"topics": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"default_step": {"enum": ["DIRECT_ANSWER", "CLARIFICATION"]},
					"mandatory_variables": {
						"type": "array",
						"items": {
							"oneOf": [
								{"type": "string"},
								{
									"type": "object",
									"required": ["name"],
									"properties": {
										"name": {"type": "string"},
										"why": {"type": "string"}
									}
								}
							]
						}
					},
					"conditional_variables": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "when"],
							"properties": {
								"name": {"type": "string"},
								"why": {"type": "string"},
								"when": {"type": "string"}
							}
						}
					},
					"guardrail_keywords": {
						"oneOf": [
							{"type": "array", "items": {"type": "string"}},
							{
								"type": "object",
								"additionalProperties": {"type": "array", "items": {"type": "string"}}
							}
						]
					},
					"rules": {"type": "array", "items": {"type": "string"}},
					"exemplars": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["input", "output"],
							"properties": {
								"input": {"type": "string"},
								"output": {"type": "string"}
							}
						}
					}
				}
			}
		},
		"global_rules": {
			"type": "object",
			"additionalProperties": {"type": "array", "items": {"type": "string"}}
		}
	}
}`

// Load reads and parses the topic registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("cannot read topic registry: %v", err))
	}
	return Parse(data)
}

// Parse validates and parses a topic registry document. Declaration order of
// topics and global rule categories is preserved.
func Parse(data []byte) (*Registry, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("topic registry is not valid YAML: %v", err))
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("topic registry is not valid YAML: %v", err))
	}
	if len(root.Content) == 0 {
		return nil, errors.NewSchemaError("topic registry document is empty")
	}

	reg := &Registry{byID: make(map[string]*TopicDefinition)}

	docNode := root.Content[0]
	for i := 0; i+1 < len(docNode.Content); i += 2 {
		key := docNode.Content[i].Value
		value := docNode.Content[i+1]
		switch key {
		case "topics":
			if err := parseTopics(value, reg); err != nil {
				return nil, err
			}
		case "global_rules":
			if err := parseGlobalRules(value, reg); err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}

func validateDocument(doc interface{}) error {
	schemaLoader := gojsonschema.NewStringLoader(registrySchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewSchemaError(fmt.Sprintf("schema validation error: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewSchemaError(fmt.Sprintf("topic registry validation failed: %v", errs))
	}
	return nil
}

func parseTopics(node *yaml.Node, reg *Registry) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := Normalize(node.Content[i].Value)
		if id == "" {
			return errors.NewSchemaError("topic with empty id")
		}
		if _, exists := reg.byID[id]; exists {
			return errors.NewSchemaError(fmt.Sprintf("duplicate topic id %q", id))
		}
		def, err := parseTopic(id, node.Content[i+1])
		if err != nil {
			return err
		}
		reg.topics = append(reg.topics, def)
		reg.byID[id] = def
	}
	return nil
}

func parseTopic(id string, node *yaml.Node) (*TopicDefinition, error) {
	var raw struct {
		Name                 string     `yaml:"name"`
		DefaultStep          string     `yaml:"default_step"`
		MandatoryVariables   []Variable `yaml:"mandatory_variables"`
		ConditionalVariables []Variable `yaml:"conditional_variables"`
		Keywords             yaml.Node  `yaml:"guardrail_keywords"`
		Rules                []string   `yaml:"rules"`
		Exemplars            []Exemplar `yaml:"exemplars"`
	}
	if err := node.Decode(&raw); err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("topic %q: %v", id, err))
	}

	def := &TopicDefinition{
		ID:                   id,
		DisplayName:          raw.Name,
		DefaultStep:          DefaultStep(raw.DefaultStep),
		MandatoryVariables:   raw.MandatoryVariables,
		ConditionalVariables: raw.ConditionalVariables,
		Rules:                raw.Rules,
		Exemplars:            raw.Exemplars,
	}
	if def.DisplayName == "" {
		def.DisplayName = id
	}
	if def.DefaultStep == "" {
		def.DefaultStep = StepDirectAnswer
	}

	keywords, err := parseKeywords(id, &raw.Keywords)
	if err != nil {
		return nil, err
	}
	def.Keywords = keywords

	return def, nil
}

// parseKeywords accepts either the lang→list mapping or the legacy flat list.
// A flat list expands to every default language so matching behaves the same
// as a topic that duplicated the list per language.
func parseKeywords(topicID string, node *yaml.Node) (map[string][]string, error) {
	out := make(map[string][]string)

	switch node.Kind {
	case 0: // absent
		return out, nil

	case yaml.SequenceNode:
		var flat []string
		if err := node.Decode(&flat); err != nil {
			return nil, errors.NewSchemaError(fmt.Sprintf("topic %q: guardrail_keywords: %v", topicID, err))
		}
		normalized := normalizeKeywordList(flat)
		for _, lang := range DefaultLanguages {
			out[lang] = normalized
		}
		return out, nil

	case yaml.MappingNode:
		var byLang map[string][]string
		if err := node.Decode(&byLang); err != nil {
			return nil, errors.NewSchemaError(fmt.Sprintf("topic %q: guardrail_keywords: %v", topicID, err))
		}
		for lang, list := range byLang {
			out[Normalize(lang)] = normalizeKeywordList(list)
		}
		return out, nil
	}

	return nil, errors.NewSchemaError(fmt.Sprintf(
		"topic %q: guardrail_keywords must be a list of strings or a language mapping", topicID))
}

// normalizeKeywordList lower-cases, trims and de-duplicates while keeping
// declaration order.
func normalizeKeywordList(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, kw := range list {
		n := Normalize(kw)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func parseGlobalRules(node *yaml.Node, reg *Registry) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		category := node.Content[i].Value
		var rules []string
		if err := node.Content[i+1].Decode(&rules); err != nil {
			return errors.NewSchemaError(fmt.Sprintf("global_rules %q: %v", category, err))
		}
		reg.globalRules = append(reg.globalRules, GlobalRuleSet{Category: category, Rules: rules})
	}
	return nil
}
