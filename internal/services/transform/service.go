package transform

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// Service converts captured page HTML into readable evidence
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new transform service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// DOMSnapshot renders page HTML as markdown for failure evidence.
// Script and style content is dropped. Conversion failures fall back to the visible text.
func (s *Service) DOMSnapshot(html, pageURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("empty document")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	// Hidden modals are part of the state under test; mark them so they stay identifiable.
	doc.Find("[id]").Each(func(_ int, sel *goquery.Selection) {
		if style, ok := sel.Attr("style"); ok && strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			id, _ := sel.Attr("id")
			sel.PrependHtml(fmt.Sprintf("<p>hidden: %s</p>", id))
		}
	})

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialise document: %w", err)
	}

	converter := md.NewConverter(pageURL, true, nil)
	converted, err := converter.ConvertString(cleaned)
	if err != nil || strings.TrimSpace(converted) == "" {
		s.logger.Warn().Err(err).Int("html_length", len(html)).Msg("Markdown conversion failed, using page text")
		return strings.TrimSpace(doc.Text()), nil
	}

	s.logger.Debug().
		Int("markdown_length", len(converted)).
		Int("html_length", len(html)).
		Msg("DOM snapshot converted")
	return converted, nil
}
