package hud

import (
	"regexp"
	"strings"
)

// noise maps line breaks to spaces and drops punctuation that Tesseract
// tends to hallucinate around the overlay's borders.
var noise = strings.NewReplacer(
	"\r\n", " ", "\n", " ", "\r", " ",
	`"`, "", "'", "", "“", "", "”", "", "‘", "", "’", "",
	".", "", ",", "", "-", "", "+", "", "|", "", "/", "", `\`, "",
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "", "<", "", ">", "",
	"~", "",
)

var multiSpace = regexp.MustCompile(` {2,}`)

// Normalize cleans raw OCR text. It is idempotent.
func Normalize(raw string) string {
	s := noise.Replace(raw)
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}
