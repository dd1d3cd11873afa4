package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/gmail/v1"
)

// extractBody picks the message text: a top-level text/plain part, else a
// text/html part converted to text, else the first nested part of the first part.
// Messages without parts use the top-level body.
func extractBody(payload *gmail.MessagePart) (string, error) {
	if payload == nil {
		return "", nil
	}

	if len(payload.Parts) == 0 {
		if payload.Body == nil || payload.Body.Data == "" {
			return "", nil
		}
		text, err := decodeData(payload.Body.Data)
		return strings.TrimSpace(text), err
	}

	target := firstPartOfType(payload.Parts, "text/plain")
	if target == nil {
		target = firstPartOfType(payload.Parts, "text/html")
	}

	if target != nil && target.Body != nil && target.Body.Data != "" {
		text, err := decodeData(target.Body.Data)
		if err != nil {
			return "", err
		}
		if target.MimeType == "text/html" {
			text = htmlToText(text)
		}
		return strings.TrimSpace(text), nil
	}

	if nested := payload.Parts[0].Parts; len(nested) > 0 && nested[0].Body != nil && nested[0].Body.Data != "" {
		text, err := decodeData(nested[0].Body.Data)
		return strings.TrimSpace(text), err
	}

	return "", nil
}

func firstPartOfType(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, p := range parts {
		if p != nil && p.MimeType == mimeType {
			return p
		}
	}
	return nil
}

// decodeData decodes base64url data with or without padding.
func decodeData(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// htmlToText returns the document's text nodes, trimmed and joined by newlines.
// On a parse failure the raw markup is returned.
func htmlToText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	var lines []string
	collectText(doc.Selection, &lines)
	return strings.Join(lines, "\n")
}

func collectText(s *goquery.Selection, lines *[]string) {
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "#text":
			if text := strings.TrimSpace(child.Text()); text != "" {
				*lines = append(*lines, text)
			}
		case "#comment", "script", "style":
		default:
			collectText(child, lines)
		}
	})
}
