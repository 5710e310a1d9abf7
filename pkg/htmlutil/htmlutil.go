package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node in document order.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		// not rendered as text by a browser
		if node.Data == "script" || node.Data == "style" {
			return
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText approximates what a browser shows for a text run: non printable
// runes dropped, whitespace runs collapsed into one space, ends trimmed.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Texts returns the cleaned text of every node in sel, in document order.
func Texts(sel *goquery.Selection) []string {
	out := make([]string, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		out = append(out, CleanText(GetText(n)))
	}
	return out
}
