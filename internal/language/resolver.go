// Package language resolves the effective response language for a session
// from the frontend hint, the per-turn detection and the stored session
// language. Pure functions, no model calls, no state mutation.
package language

import (
	"strings"

	"admin-gateway/internal/common/logger"
)

const (
	French     = "French"
	English    = "English"
	Vietnamese = "Vietnamese"
)

// langNames maps codes and names to canonical full names.
var langNames = map[string]string{
	"fr":         French,
	"french":     French,
	"en":         English,
	"english":    English,
	"vi":         Vietnamese,
	"vietnamese": Vietnamese,
}

// nonDefault marks the languages where switching away from French is a
// deliberate user signal.
var nonDefault = map[string]bool{
	English:    true,
	Vietnamese: true,
}

// Normalize maps a language code or name to its canonical full name. Unknown
// inputs pass through unchanged.
func Normalize(code string) string {
	if name, ok := langNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// Code returns the two-letter code for a canonical language name, defaulting
// to "fr".
func Code(name string) string {
	switch Normalize(name) {
	case English:
		return "en"
	case Vietnamese:
		return "vi"
	}
	return "fr"
}

// Resolver applies the switching rules in priority order: frontend override,
// anti-hallucination guard, first-message switch, then plain detection.
type Resolver struct {
	logger logger.Logger
}

func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{logger: log.WithFields(map[string]interface{}{"component": "language"})}
}

// Resolve returns the effective full language name for the response.
//
// detected is the per-turn detection (code or name, may be empty), userLang
// the frontend hint, current the language stored on the session, hasHistory
// whether prior turns exist.
func (r *Resolver) Resolve(detected, userLang, current string, hasHistory bool) string {
	if current == "" {
		current = French
	}
	if detected == "" {
		return current
	}

	normalizedDetected := Normalize(detected)
	normalizedUser := ""
	if userLang != "" {
		normalizedUser = Normalize(userLang)
	}

	// Frontend manual override: an explicit non-French frontend choice beats
	// whatever the detector thinks.
	if normalizedUser != "" && nonDefault[normalizedUser] {
		if normalizedDetected != normalizedUser {
			r.logger.Info("blocking detection, frontend chose another language", map[string]interface{}{
				"detected": normalizedDetected,
				"frontend": normalizedUser,
			})
		}
		return normalizedUser
	}

	// Anti-hallucination guard: a "fr" detection while the session already
	// runs in English or Vietnamese is usually noise from French
	// administrative keywords in the query.
	if strings.EqualFold(detected, "fr") && nonDefault[current] {
		r.logger.Info("ignoring fr detection, session already switched", map[string]interface{}{
			"current": current,
		})
		return current
	}

	// Switching away from French is allowed on the first message and with
	// history alike; only the logging differs.
	if nonDefault[normalizedDetected] && current == French {
		if !hasHistory {
			r.logger.Info("first-message language switch", map[string]interface{}{
				"to": normalizedDetected,
			})
		}
		return normalizedDetected
	}

	return normalizedDetected
}
