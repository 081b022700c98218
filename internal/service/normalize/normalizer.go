package normalize

import (
	"html"
	"regexp"
	"strings"
)

var (
	markdownLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	urlPattern      = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
	emailPattern    = regexp.MustCompile(`\S+@\S+\.\S+`)
	htmlTag         = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	redditRef       = regexp.MustCompile(`(^|[^\w/])/?[ur]/[\w-]+`)
	handlePattern   = regexp.MustCompile(`(^|[^\w])@\w+`)
	markdownMarks   = regexp.MustCompile("[*_~`#]+")
	quoteMarker     = regexp.MustCompile(`(?m)^\s*>+`)
	repeatedBang    = regexp.MustCompile(`([!?])[!?]+`)
	repeatedDots    = regexp.MustCompile(`\.{2,}`)
	repeatedCommas  = regexp.MustCompile(`,{2,}`)
	whitespace      = regexp.MustCompile(`\s+`)
	tokenPattern    = regexp.MustCompile(`emo_[a-z]+|[\p{L}\p{N}]+(?:['’-][\p{L}\p{N}]+)*`)
	trailingPunct   = ".,!?;"
	emoticonTokens  = map[string]string{
		":)": "emo_smile", ":-)": "emo_smile", "=)": "emo_smile", ":]": "emo_smile", "(:": "emo_smile",
		":(": "emo_frown", ":-(": "emo_frown", ":[": "emo_frown", "=(": "emo_frown",
		":d": "emo_laugh", ":-d": "emo_laugh", "xd": "emo_laugh",
		";)": "emo_wink", ";-)": "emo_wink",
		"<3": "emo_heart",
		":'(": "emo_cry",
	}
)

// Result is the normalized form of one text
type Result struct {
	Text    string
	Cleaned string
	Tokens  []string
	Empty   bool
}

// Key returns the punctuation-insensitive form used for exact-duplicate checks
func (r Result) Key() string {
	return strings.Join(r.Tokens, " ")
}

// Normalizer cleans raw post text. It holds no state and is safe for concurrent use.
type Normalizer struct{}

// New creates a new normalizer
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize lower-cases raw text, strips links, user references and markup,
// maps emoticons to stable tokens, collapses repeated punctuation and
// tokenizes the result in order. Text that cleans to nothing is flagged Empty.
func (n *Normalizer) Normalize(raw string) Result {
	cleaned := n.Clean(raw)
	text := repeatedBang.ReplaceAllString(cleaned, "$1")
	text = repeatedDots.ReplaceAllString(text, ".")
	text = repeatedCommas.ReplaceAllString(text, ",")

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Result{Tokens: []string{}, Empty: true}
	}
	return Result{Text: text, Cleaned: cleaned, Tokens: tokens}
}

// Clean applies every normalization step except punctuation collapsing, so
// repeated "!" and "?" survive for emphasis scoring.
func (n *Normalizer) Clean(raw string) string {
	text := markdownLink.ReplaceAllString(raw, "$1")
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")
	text = htmlTag.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.ToLower(text)
	text = redditRef.ReplaceAllString(text, "$1 ")
	text = handlePattern.ReplaceAllString(text, "$1 ")
	text = quoteMarker.ReplaceAllString(text, " ")
	text = markdownMarks.ReplaceAllString(text, " ")
	text = replaceEmoticons(text)
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Tokenize splits already normalized text into word tokens
func Tokenize(text string) []string {
	tokens := tokenPattern.FindAllString(text, -1)
	for i, t := range tokens {
		tokens[i] = strings.ReplaceAll(t, "’", "'")
	}
	return tokens
}

func replaceEmoticons(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		core := strings.TrimRight(f, trailingPunct)
		if core == "" {
			continue
		}
		if tok, ok := emoticonTokens[core]; ok {
			fields[i] = tok + f[len(core):]
		}
	}
	return strings.Join(fields, " ")
}
