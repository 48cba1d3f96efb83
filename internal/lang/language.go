// Package lang validates the language codes passed to transcription and
// conversion.
package lang

import (
	"fmt"
	"strings"
)

// validLanguages contains ISO 639-1 language codes supported by OpenAI's transcription API.
// This is not exhaustive but covers the most common languages.
// OpenAI supports additional languages; users can request additions.
var validLanguages = map[string]bool{
	"af": true, // Afrikaans
	"ar": true, // Arabic
	"bg": true, // Bulgarian
	"bn": true, // Bengali
	"ca": true, // Catalan
	"cs": true, // Czech
	"da": true, // Danish
	"de": true, // German
	"el": true, // Greek
	"en": true, // English
	"es": true, // Spanish
	"et": true, // Estonian
	"fa": true, // Persian
	"fi": true, // Finnish
	"fr": true, // French
	"gu": true, // Gujarati
	"he": true, // Hebrew
	"hi": true, // Hindi
	"hr": true, // Croatian
	"hu": true, // Hungarian
	"id": true, // Indonesian
	"it": true, // Italian
	"ja": true, // Japanese
	"kn": true, // Kannada
	"ko": true, // Korean
	"lt": true, // Lithuanian
	"lv": true, // Latvian
	"mk": true, // Macedonian
	"ml": true, // Malayalam
	"mr": true, // Marathi
	"ms": true, // Malay
	"nl": true, // Dutch
	"no": true, // Norwegian
	"pa": true, // Punjabi
	"pl": true, // Polish
	"pt": true, // Portuguese
	"ro": true, // Romanian
	"ru": true, // Russian
	"sk": true, // Slovak
	"sl": true, // Slovenian
	"sr": true, // Serbian
	"sv": true, // Swedish
	"sw": true, // Swahili
	"ta": true, // Tamil
	"te": true, // Telugu
	"th": true, // Thai
	"tl": true, // Tagalog
	"tr": true, // Turkish
	"uk": true, // Ukrainian
	"ur": true, // Urdu
	"vi": true, // Vietnamese
	"zh": true, // Chinese
}

// Normalize normalizes a language code to lowercase with hyphen separator.
// Accepts: "pt-BR", "pt_BR", "PT-BR", "pt-br" -> "pt-br"
func Normalize(lang string) string {
	return strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
}

// Validate checks if the language code is valid.
// Accepts ISO 639-1 codes (e.g., "en", "fr") and locales (e.g., "pt-BR", "zh-CN").
// Returns ErrInvalid if the base language is not recognized.
func Validate(lang string) error {
	if lang == "" {
		return nil // Empty means auto-detect, which is valid
	}

	normalized := Normalize(lang)

	// Extract base language from locale (pt-br -> pt)
	base := normalized
	if idx := strings.Index(normalized, "-"); idx != -1 {
		base = normalized[:idx]
	}

	if !validLanguages[base] {
		return fmt.Errorf("invalid language code %q (use ISO 639-1 codes like 'en', 'fr', 'pt-BR'): %w",
			lang, ErrInvalid)
	}

	return nil
}

// BaseCode extracts the ISO 639-1 base language code from a locale.
// OpenAI's transcription API only accepts base codes, not regional variants.
// Examples: "pt-BR" -> "pt", "zh-CN" -> "zh", "en" -> "en"
func BaseCode(lang string) string {
	if lang == "" {
		return ""
	}
	normalized := Normalize(lang)
	if idx := strings.Index(normalized, "-"); idx != -1 {
		return normalized[:idx]
	}
	return normalized
}

// conversionLanguages are the text languages the singing-voice model
// accepts for style and voice conversion.
var conversionLanguages = map[string]string{
	"en": "English",
	"zh": "Chinese",
}

// Default is the language assumed when none is given.
const Default = "en"

// ValidateConversion checks that lang is usable by the conversion model.
// Regional variants are accepted by base code ("en-GB" -> "en").
// Empty means Default and is valid.
func ValidateConversion(lang string) error {
	if lang == "" {
		return nil
	}
	if err := Validate(lang); err != nil {
		return err
	}
	if _, ok := conversionLanguages[BaseCode(lang)]; !ok {
		return fmt.Errorf("language %q is not supported by the conversion model (use 'en' or 'zh'): %w",
			lang, ErrUnsupported)
	}
	return nil
}

// OrDefault returns the base code of lang, or Default when lang is empty.
func OrDefault(lang string) string {
	if lang == "" {
		return Default
	}
	return BaseCode(lang)
}

// DisplayName returns a human-readable name for a conversion language.
// Falls back to the code itself.
func DisplayName(lang string) string {
	if name, ok := conversionLanguages[BaseCode(lang)]; ok {
		return name
	}
	return lang
}
