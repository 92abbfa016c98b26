package sdkforge

import (
	"sort"
	"strings"
)

// DefaultLang is the language every message template set is expected to
// carry, used as the fallback for unknown language codes.
const DefaultLang = "en"

// MessageStore holds the repository's localized message templates,
// keyed by message ID then language code. Templates reference parameters
// as "${name}".
type MessageStore map[string]map[string]string

// Render renders the message template for the given language, falling
// back to [DefaultLang] and then to any language for which a template
// exists (smallest language code, for determinism). Unknown message IDs
// render as the empty string.
func (m MessageStore) Render(msgid, lang string, params map[string]string) string {
	byLang, ok := m[msgid]
	if !ok || len(byLang) == 0 {
		return ""
	}
	tmpl, ok := byLang[lang]
	if !ok {
		tmpl, ok = byLang[DefaultLang]
	}
	if !ok {
		langs := make([]string, 0, len(byLang))
		for l := range byLang {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		tmpl = byLang[langs[0]]
	}
	return expandParams(tmpl, params)
}

func expandParams(tmpl string, params map[string]string) string {
	if len(params) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
