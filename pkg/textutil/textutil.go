// Package textutil builds the text handed to the embedding model and
// the short previews shown in result lists.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/jaytaylor/html2text"
)

// PreviewLen is the maximum preview length in runes.
const PreviewLen = 160

// CleanForEmbedding strips control characters and unpaired surrogate
// code units from s. Surrogates survive some decoders as raw runes and
// make tokenizers choke, so they are dropped outright.
func CleanForEmbedding(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if utf16.IsSurrogate(r) || r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// EmbeddingText combines subject and the best available body text into
// the document fed to the embedding model. Returns "" when there is
// nothing worth embedding.
func EmbeddingText(subject, plainText, html string) string {
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}
	body := strings.TrimSpace(plainText)
	if body == "" && html != "" {
		body = HTMLToText(html)
	}
	text := CleanForEmbedding(subject + "\n" + body)
	if strings.TrimSpace(text) == "" || text == "(no subject)" {
		return ""
	}
	return text
}

// HTMLToText reduces an HTML body to readable plain text. Falls back to
// the raw input with tags left in place if conversion fails.
func HTMLToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(text)
}

// Preview returns the first PreviewLen runes of text with all runs of
// whitespace collapsed to single spaces. If text is empty, subject is
// used instead.
func Preview(text, subject string) string {
	src := strings.TrimSpace(text)
	if src == "" {
		src = strings.TrimSpace(subject)
	}
	collapsed := strings.Join(strings.Fields(src), " ")
	runes := []rune(collapsed)
	if len(runes) > PreviewLen {
		return string(runes[:PreviewLen])
	}
	return collapsed
}
