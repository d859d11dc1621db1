package gtfs

import (
	"strings"

	"golang.org/x/text/language"
)

type translationKey struct {
	table string
	field string
	id    string
}

// Translator resolves translations.txt entries for one locale
type Translator struct {
	byRecord map[translationKey]string
	byValue  map[translationKey]string
	byText   map[string]string // GTFS-JP: trans_id is the original text
}

// emptyTranslator returns every value unchanged
func emptyTranslator() *Translator {
	return &Translator{
		byRecord: map[translationKey]string{},
		byValue:  map[translationKey]string{},
		byText:   map[string]string{},
	}
}

// LoadTranslations reads translations.txt for locale. Nothing is loaded when
// locale is the feed language. Both the GTFS-JP layout
// (trans_id,lang,translation) and the standard layout are accepted.
func LoadTranslations(dir, locale, feedLang string) (*Translator, error) {
	t := emptyTranslator()
	if locale == "" || sameLanguage(locale, feedLang) {
		return t, nil
	}

	rows, err := parseFile(dir, "translations.txt")
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		lang := row.Get("language")
		if !row.Has("language") {
			lang = row.Get("lang")
		}
		if !sameLanguage(locale, lang) {
			continue
		}
		translation := row.Get("translation")
		if translation == "" {
			continue
		}

		if row.Has("trans_id") {
			t.byText[row.Get("trans_id")] = translation
			continue
		}

		table, field := row.Get("table_name"), row.Get("field_name")
		if id := row.Get("record_id"); id != "" {
			t.byRecord[translationKey{table, field, id}] = translation
		}
		if value := row.Get("field_value"); value != "" {
			t.byValue[translationKey{table, field, value}] = translation
		}
	}
	return t, nil
}

// Translate looks up by record id, then by field value, then returns value
func (t *Translator) Translate(table, field, recordID, value string) string {
	if value == "" {
		return ""
	}
	if s, ok := t.byRecord[translationKey{table, field, recordID}]; ok {
		return s
	}
	if s, ok := t.byValue[translationKey{table, field, value}]; ok {
		return s
	}
	if s, ok := t.byText[value]; ok {
		return s
	}
	return value
}

// Len returns the number of loaded entries
func (t *Translator) Len() int {
	return len(t.byRecord) + len(t.byValue) + len(t.byText)
}

// sameLanguage compares base languages ("en-US" matches "en"). Scripts are
// significant so "ja-Hrkt" (kana readings) does not match "ja".
func sameLanguage(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	if baseA != baseB {
		return false
	}
	scriptA, confA := ta.Script()
	scriptB, confB := tb.Script()
	if confA == language.Exact && confB == language.Exact {
		return scriptA == scriptB
	}
	return confA != language.Exact && confB != language.Exact
}
