package retriever

import (
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"

	"github.com/smallnest/ragflow/store"
)

// englishStopwords are dropped after POS selection. The tagger keeps verbs,
// so auxiliaries and other function words that slip through still need to go.
var englishStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "this": true, "that": true, "these": true, "those": true,
	"what": true, "which": true, "who": true, "whom": true, "when": true,
	"where": true, "why": true, "how": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "with": true, "about": true,
	"from": true, "by": true, "as": true, "can": true, "could": true,
	"will": true, "would": true, "should": true, "my": true, "me": true,
	"tell": true, "show": true, "please": true, "there": true,
}

// koreanStopwords are standalone particles and fillers dropped after josa
// stripping.
var koreanStopwords = map[string]bool{
	"그리고": true, "그런데": true, "하지만": true, "또는": true, "및": true,
	"있는": true, "없는": true, "대한": true, "대해": true, "관한": true,
	"무엇": true, "어떻게": true, "어디": true, "언제": true, "왜": true,
	"좀": true, "것": true, "수": true, "때": true, "알려줘": true,
	"알려주세요": true, "해줘": true, "주세요": true,
}

// josaSuffixes are Korean case particles trimmed from token tails, longest
// first so compound particles win over their prefixes.
var josaSuffixes = []string{
	"에서는", "에게서", "으로는", "이라는", "까지", "부터", "에서", "에게",
	"으로", "이란", "라는", "은", "는", "이", "가", "을", "를", "의",
	"에", "로", "와", "과", "도", "만",
}

// DetectLanguage classifies text as Korean or English by script ratio:
// Korean when at least 30% of the letters are Hangul.
func DetectLanguage(text string) string {
	var hangul, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		}
	}
	if letters > 0 && float64(hangul)/float64(letters) >= 0.3 {
		return store.LanguageKorean
	}
	return store.LanguageEnglish
}

// ExtractKeywords returns the query's most useful search terms in order of
// appearance. English queries go through POS tagging (nouns, verbs,
// adjectives and proper nouns survive); Korean queries are josa-stripped and
// stopword-filtered. The number of keywords scales with query length: 2 for
// up to three words, 3 for up to six, 4 beyond that.
func ExtractKeywords(text, language string) []string {
	tokens := tokenize(text)
	limit := keywordLimit(len(tokens))

	candidates := tokens
	if language != store.LanguageKorean {
		if tagged := contentWords(text); len(tagged) > 0 {
			candidates = tagged
		}
	}

	seen := make(map[string]bool)
	keywords := make([]string, 0, limit)
	for _, tok := range candidates {
		var kw string
		if language == store.LanguageKorean {
			kw = stripJosa(tok)
			if len([]rune(kw)) < 2 || koreanStopwords[kw] {
				continue
			}
		} else {
			kw = strings.ToLower(tok)
			if len(kw) < 2 || englishStopwords[kw] {
				continue
			}
		}
		if seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == limit {
			break
		}
	}
	return keywords
}

// contentWords POS-tags the text and keeps nouns (NN*, incl. proper nouns),
// verbs (VB*) and adjectives (JJ*). A tagger failure falls back to the plain
// token stream.
func contentWords(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil
	}
	var out []string
	for _, tok := range doc.Tokens() {
		switch {
		case strings.HasPrefix(tok.Tag, "NN"),
			strings.HasPrefix(tok.Tag, "VB"),
			strings.HasPrefix(tok.Tag, "JJ"):
			out = append(out, tok.Text)
		}
	}
	return out
}

// BuildExpression turns keywords into a boolean tsquery expression. One or
// two keywords are all conjoined; with three or more the first two are
// conjoined and the rest widen the match as alternatives:
// (a & b) | c | d.
func BuildExpression(keywords []string) string {
	switch len(keywords) {
	case 0:
		return ""
	case 1:
		return keywords[0]
	case 2:
		return keywords[0] + " & " + keywords[1]
	default:
		expr := "(" + keywords[0] + " & " + keywords[1] + ")"
		for _, kw := range keywords[2:] {
			expr += " | " + kw
		}
		return expr
	}
}

func keywordLimit(words int) int {
	switch {
	case words <= 3:
		return 2
	case words <= 6:
		return 3
	default:
		return 4
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stripJosa(token string) string {
	for _, suffix := range josaSuffixes {
		if trimmed := strings.TrimSuffix(token, suffix); trimmed != token && len([]rune(trimmed)) >= 2 {
			return trimmed
		}
	}
	return token
}
