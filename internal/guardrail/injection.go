package guardrail

import (
	"regexp"

	"admin-gateway/internal/common/logger"
)

// injectionPatterns covers known prompt injection phrasings across English,
// French and Vietnamese. Vietnamese alternatives sit outside \b groups
// because Go's \b only knows ASCII word characters.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\b(ignore|oublie?)\b|bỏ qua).*(instructions?|prompt|directions?|hướng dẫn)`),
	regexp.MustCompile(`(?i)\b(system prompt|instructions de base)\b`),
	regexp.MustCompile(`(?i)\b(you are now|tu es maintenant)\b|(?i)bạn bây giờ là`),
	regexp.MustCompile(`(?i)(\bforget\b|bỏ |xoá ).*(context|contexte|ngữ cảnh)`),
	regexp.MustCompile(`(?i)(\b(act as|agis comme)\b|hãy đóng vai).*(uncensored|jailbreak|no rules|sans règles|không có luật)`),
	regexp.MustCompile(`(?i)^[\s\W]*(ignore|forget|bypass|override)[\s\W]+`),
	regexp.MustCompile(`(?i)\b(print|show|display|affiche).*(previous|system|précédent) (instructions?|prompt)\b`),
}

// InjectionGuard scans queries for prompt injection attempts before any other
// guardrail stage runs.
type InjectionGuard struct {
	logger logger.Logger
}

func NewInjectionGuard(log logger.Logger) *InjectionGuard {
	return &InjectionGuard{
		logger: log.WithFields(map[string]interface{}{"component": "injection_guard"}),
	}
}

// Detect reports whether the query matches a known injection pattern.
func (g *InjectionGuard) Detect(query string) bool {
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(query) {
			g.logger.Warn("prompt injection detected", map[string]interface{}{
				"pattern": pattern.String(),
			})
			return true
		}
	}
	return false
}
