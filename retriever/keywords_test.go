package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/ragflow/store"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"how do I change the engine oil", store.LanguageEnglish},
		{"엔진 오일 교체 주기 알려줘", store.LanguageKorean},
		{"GV80 엔진 오일", store.LanguageKorean},
		{"GV80 spec sheet", store.LanguageEnglish},
		{"", store.LanguageEnglish},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.text), "text: %q", tt.text)
	}
}

func TestExtractKeywordsEnglish(t *testing.T) {
	// Three words: two keywords after POS selection.
	kws := ExtractKeywords("change engine oil", store.LanguageEnglish)
	assert.Equal(t, []string{"change", "engine"}, kws)

	// Longer query yields more keywords; only nouns, verbs and adjectives
	// survive the tagger, so "how often should" contributes nothing.
	kws = ExtractKeywords("how often should I replace the brake fluid reservoir", store.LanguageEnglish)
	assert.Equal(t, []string{"replace", "brake", "fluid", "reservoir"}, kws)
}

func TestExtractKeywordsDropsNonContentWords(t *testing.T) {
	kws := ExtractKeywords("quickly check the spare tire pressure", store.LanguageEnglish)
	assert.NotContains(t, kws, "quickly")
	assert.Contains(t, kws, "tire")
}

func TestExtractKeywordsKorean(t *testing.T) {
	kws := ExtractKeywords("엔진오일을 교체하는 주기", store.LanguageKorean)
	assert.Contains(t, kws, "엔진오일")
	assert.LessOrEqual(t, len(kws), 2)
}

func TestExtractKeywordsDeduplicates(t *testing.T) {
	kws := ExtractKeywords("oil oil oil filter filter replacement interval", store.LanguageEnglish)
	assert.Equal(t, []string{"oil", "filter", "replacement", "interval"}, kws)
}

func TestBuildExpression(t *testing.T) {
	tests := []struct {
		keywords []string
		want     string
	}{
		{nil, ""},
		{[]string{"oil"}, "oil"},
		{[]string{"engine", "oil"}, "engine & oil"},
		{[]string{"engine", "oil", "interval"}, "(engine & oil) | interval"},
		{[]string{"engine", "oil", "interval", "filter"}, "(engine & oil) | interval | filter"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildExpression(tt.keywords))
	}
}

func TestStripJosa(t *testing.T) {
	assert.Equal(t, "엔진오일", stripJosa("엔진오일을"))
	assert.Equal(t, "브레이크", stripJosa("브레이크가"))
	assert.Equal(t, "설명서", stripJosa("설명서에서는"))
	// Too short after stripping: keep the original token.
	assert.Equal(t, "오일", stripJosa("오일"))
}
