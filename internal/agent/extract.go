// internal/agent/extract.go
package agent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	extractMaxTextBytes = 6000
	extractMaxLinks     = 40
	extractMaxLinkText  = 80
	extractMaxHref      = 120
)

// skipExtractTags holds element names whose subtrees carry no readable
// content.
var skipExtractTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"head":     {},
	"svg":      {},
	"iframe":   {},
}

// Extractor turns the live document's HTML into a bounded plain-text digest
// for extract_data. The output is model-facing, so the same truncation
// discipline as the snapshot applies: a huge page must not blow the context
// budget.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

type extractedLink struct {
	Text string
	Href string
}

// Extract parses pageHTML and returns a digest of its readable text and
// links, prefixed with the model's stated goal so the result is
// self-describing when it lands in history and task output.
func (e *Extractor) Extract(pageHTML, description string) (string, error) {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var text strings.Builder
	var links []extractedLink
	collect(root, &text, &links)

	body := strings.TrimSpace(text.String())
	if len(body) > extractMaxTextBytes {
		body = body[:extractMaxTextBytes] + "..."
	}
	if body == "" {
		body = "(no readable text)"
	}

	var sb strings.Builder
	if description != "" {
		sb.WriteString("Extraction goal: " + description + "\n\n")
	}
	sb.WriteString(body)

	if len(links) > 0 {
		if len(links) > extractMaxLinks {
			links = links[:extractMaxLinks]
		}
		sb.WriteString("\n\nLinks:\n")
		for _, link := range links {
			sb.WriteString("- " + link.Text + " (" + link.Href + ")\n")
		}
	}

	e.logger.Debug("Page data extracted.",
		zap.Int("text_bytes", len(body)),
		zap.Int("links", len(links)))
	return sb.String(), nil
}

// collect walks the parse tree in document order, appending readable text
// and recording anchors with both text and href.
func collect(n *html.Node, text *strings.Builder, links *[]extractedLink) {
	if n.Type == html.ElementNode {
		if _, skip := skipExtractTags[n.Data]; skip {
			return
		}
		if n.Data == "a" {
			if link, ok := anchorLink(n); ok {
				*links = append(*links, link)
			}
		}
	}
	if n.Type == html.TextNode {
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(trimmed)
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collect(child, text, links)
	}
}

// anchorLink extracts a bounded (text, href) pair from an anchor node.
func anchorLink(n *html.Node) (extractedLink, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return extractedLink{}, false
	}

	var text strings.Builder
	var dummy []extractedLink
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collect(child, &text, &dummy)
	}
	label := strings.TrimSpace(text.String())
	if label == "" {
		return extractedLink{}, false
	}

	if len(label) > extractMaxLinkText {
		label = label[:extractMaxLinkText] + "..."
	}
	if len(href) > extractMaxHref {
		href = href[:extractMaxHref] + "..."
	}
	return extractedLink{Text: label, Href: href}, true
}
