package scraper

import (
	"sort"
	"strings"

	"resalewatch/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const cardSelector = "li, article, section, div"

var hiddenTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "section": true, "table": true, "td": true,
	"th": true, "tr": true, "ul": true, "button": true,
}

// OfferExtractor turns resale page content into priced offers
type OfferExtractor struct {
	patterns *Patterns
	logger   *logrus.Logger
}

// NewOfferExtractor creates an extractor; nil patterns means the sterling defaults
func NewOfferExtractor(patterns *Patterns, logger *logrus.Logger) *OfferExtractor {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OfferExtractor{patterns: patterns, logger: logger}
}

// Patterns exposes the pattern set in use
func (oe *OfferExtractor) Patterns() *Patterns {
	return oe.patterns
}

// Extract runs the structured pass over the markup and, when that finds
// nothing, the line-based fallback pass over the body text. Callers must
// have classified the page as not blocked first.
func (oe *OfferExtractor) Extract(bodyText, rawHTML string) (hasResale bool, offers []models.Offer, phase string) {
	if !oe.patterns.HasResaleSignal(bodyText) {
		return false, []models.Offer{}, ""
	}

	counts := make(map[string]int)
	phase = models.PhaseStructured
	oe.structuredPass(rawHTML, counts)

	if len(counts) == 0 {
		phase = models.PhaseFallback
		oe.fallbackPass(bodyText, counts)
	}

	offers = oe.finalize(counts)
	if len(offers) == 0 {
		phase = ""
	}
	return true, offers, phase
}

// structuredPass walks the deepest elements whose text reads like
// "£45.00 each" and takes the ticket count from the enclosing card.
func (oe *OfferExtractor) structuredPass(rawHTML string, counts map[string]int) {
	if strings.TrimSpace(rawHTML) == "" {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		oe.logger.WithError(err).Debug("Could not parse page markup, skipping structured pass")
		return
	}

	matched := 0
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if matched >= oe.patterns.NodeCap {
			return false
		}
		if s.Closest("script, style, noscript, template, head, svg").Length() > 0 {
			return true
		}

		line := nodeText(s)
		if line == "" || !oe.patterns.PricedQualifier.MatchString(line) {
			return true
		}
		if oe.hasMatchingChild(s) {
			return true
		}
		matched++

		tokens := oe.patterns.ExtractTokens(line)
		if len(tokens) == 0 {
			return true
		}
		priceRaw := tokens[0]
		value, err := oe.patterns.ParsePrice(priceRaw)
		if err != nil || value < oe.patterns.MinPrice {
			return true
		}

		cardText := line
		if card := s.ParentsFiltered(cardSelector).First(); card.Length() > 0 {
			if t := nodeText(card); t != "" {
				cardText = t
			}
		}

		counts[priceRaw] += oe.patterns.QuantityIn(cardText)
		return true
	})
}

func (oe *OfferExtractor) hasMatchingChild(s *goquery.Selection) bool {
	found := false
	s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if oe.patterns.PricedQualifier.MatchString(nodeText(c)) {
			found = true
			return false
		}
		return true
	})
	return found
}

// fallbackPass counts every non-fee price mention as one listing
func (oe *OfferExtractor) fallbackPass(bodyText string, counts map[string]int) {
	for _, raw := range strings.Split(bodyText, "\n") {
		line := NormalizeWhitespace(raw)
		if line == "" || oe.patterns.IsFeeLine(line) {
			continue
		}
		for _, token := range oe.patterns.ExtractTokens(line) {
			value, err := oe.patterns.ParsePrice(token)
			if err != nil || value < oe.patterns.MinPrice {
				continue
			}
			counts[token]++
		}
	}
}

func (oe *OfferExtractor) finalize(counts map[string]int) []models.Offer {
	offers := make([]models.Offer, 0, len(counts))
	for raw, qty := range counts {
		value, err := oe.patterns.ParsePrice(raw)
		if err != nil {
			oe.logger.WithField("token", raw).Debug("Dropping unparseable price token")
			continue
		}
		offers = append(offers, models.Offer{PriceRaw: raw, PriceValue: value, Quantity: qty})
	}
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].PriceValue != offers[j].PriceValue {
			return offers[i].PriceValue < offers[j].PriceValue
		}
		return offers[i].PriceRaw < offers[j].PriceRaw
	})
	return offers
}

// nodeText returns the normalized visible text under a selection
func nodeText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeVisibleText(&b, n)
	}
	return NormalizeWhitespace(b.String())
}

// VisibleText approximates a browser's innerText for markup that was not
// rendered: hidden elements are dropped, block elements start new lines and
// inline elements run together.
func VisibleText(rawHTML string) string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var b strings.Builder
	writeVisibleText(&b, root)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = NormalizeWhitespace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func writeVisibleText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if hiddenTags[n.Data] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisibleText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
