package model

import "strings"

// DefaultLanguage — язык интерфейса без сохранённого выбора.
const DefaultLanguage = "en"

// Languages — поддерживаемые двухбуквенные коды интерфейса.
var Languages = map[string]string{
	"en": "English",
	"es": "Español",
	"fr": "Français",
	"de": "Deutsch",
	"zh": "中文",
	"ja": "日本語",
	"hi": "हिन्दी",
	"ar": "العربية",
	"pt": "Português",
	"ru": "Русский",
}

// NormalizeLanguage приводит код к нижнему регистру; неизвестный код — false.
func NormalizeLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	_, ok := Languages[code]
	return code, ok
}
