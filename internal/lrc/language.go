package lrc

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the majority language of the given lyric lines.
func DetectLanguage(texts []string) language.Tag {
	if len(texts) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, text := range texts {
		if text == "" {
			continue
		}
		info := whatlanggo.Detect(text)
		if !info.IsReliable() {
			continue
		}
		langMap[info.Lang.Iso6391()]++
	}

	topLang := ""
	topCount := 0
	for lang, count := range langMap {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		// Short lines are rarely reliable on their own.
		topLang = whatlanggo.DetectLang(strings.Join(texts, "\n")).Iso6391()
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}
