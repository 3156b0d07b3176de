// Package localization provides the user-facing copy of the API in several
// languages. Translations are JSON files named after their language code
// ("en.json") and are compiled into the binary.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

const defaultLang = "en"

//go:embed locales/*.json
var locales embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	matcher      language.Matcher
	langs        []string
	mu           sync.RWMutex
}

// Default returns a Localizer over the built-in locales.
func Default() (*Localizer, error) {
	sub, err := fs.Sub(locales, "locales")
	if err != nil {
		return nil, err
	}
	return NewLocalizer(sub)
}

// NewLocalizer loads every *.json file at the root of fsys.
func NewLocalizer(fsys fs.FS) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || path.Ext(file.Name()) != ".json" {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
		l.langs = append(l.langs, lang)
	}

	// the matcher falls back to its first tag, so the default language leads
	sort.Slice(l.langs, func(i, j int) bool {
		if (l.langs[i] == defaultLang) != (l.langs[j] == defaultLang) {
			return l.langs[i] == defaultLang
		}
		return l.langs[i] < l.langs[j]
	})
	tags := make([]language.Tag, 0, len(l.langs))
	for _, lang := range l.langs {
		tags = append(tags, language.Make(lang))
	}
	l.matcher = language.NewMatcher(tags)

	return l, nil
}

// Languages lists the loaded language codes, the default first.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.langs...)
}

// Negotiate picks the best loaded language for an Accept-Language header.
func (l *Localizer) Negotiate(acceptLanguage string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.langs) == 0 {
		return defaultLang
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return l.langs[0]
	}
	_, idx, conf := l.matcher.Match(tags...)
	if conf == language.No {
		return l.langs[0]
	}
	return l.langs[idx]
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Fallback to a default language if the key is not found in the specified language
	if lang != defaultLang {
		if enTranslations, ok := l.translations[defaultLang]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// ErrorMessage returns the copy shown for an error kind.
func (l *Localizer) ErrorMessage(lang, kind string) string {
	return l.GetString(lang, "error."+kind)
}
