package i18n

import (
	"regexp"
	"strings"
	"sync/atomic"
)

// Translator retrieves localized messages for Issue codes.
// data provides optional values substituted into {name} placeholders
// (for example "type" or "key").
type Translator interface {
	Message(code string, data map[string]string) string
}

var dictionaries = map[string]map[string]string{
	"en": {
		"parse_error":           "malformed JSON",
		"invalid_type":          "invalid type",
		"unknown_key":           "unknown property {key}",
		"duplicate_key":         "duplicate key",
		"invalid_enum":          "code {value} is not in the value set",
		"invalid_format":        "invalid {shape} value",
		"discriminator_missing": "resourceType missing",
		"discriminator_unknown": "unknown resourceType {type}",
		"choice_violation":      "more than one alternative of {field} is populated",
		"sidecar_mismatch":      "value and sidecar lists of {field} differ in length",
		"truncated":             "input truncated",
		"canceled":              "operation canceled",
	},
	"ja": {
		"parse_error":           "JSONの構文が不正です",
		"invalid_type":          "型が不正です",
		"unknown_key":           "未知のプロパティ {key} です",
		"duplicate_key":         "キーが重複しています",
		"invalid_enum":          "コード {value} は値セットに含まれていません",
		"invalid_format":        "{shape} の値が不正です",
		"discriminator_missing": "resourceType がありません",
		"discriminator_unknown": "未知の resourceType {type} です",
		"choice_violation":      "{field} の選択肢が複数設定されています",
		"sidecar_mismatch":      "{field} の値とサイドカーの長さが一致しません",
		"truncated":             "入力が途中で終わっています",
		"canceled":              "処理が中断されました",
	},
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := dictionaries[t.lang][code]
	if !ok {
		return code
	}
	if !strings.Contains(msg, "{") {
		return msg
	}
	if len(data) > 0 {
		pairs := make([]string, 0, 2*len(data))
		for k, v := range data {
			pairs = append(pairs, "{"+k+"}", v)
		}
		msg = strings.NewReplacer(pairs...).Replace(msg)
	}
	return strings.TrimSpace(unresolved.ReplaceAllString(msg, ""))
}

// unresolved matches placeholders the caller supplied no value for.
var unresolved = regexp.MustCompile(`\s?\{[a-zA-Z]+\}`)

type holder struct{ tr Translator }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{tr: dictTranslator{lang: "en"}}) }

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := dictionaries[lang]; !ok {
		lang = "en"
	}
	current.Store(&holder{tr: dictTranslator{lang: lang}})
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version). nil restores the English dictionary.
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	current.Store(&holder{tr: tr})
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return current.Load().tr.Message(code, data) }
