package scraper

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Patterns holds every heuristic the extractor relies on, so another
// currency or locale can be swapped in without touching the extractor.
type Patterns struct {
	CurrencySymbol string
	// Token matches one currency amount, e.g. £45 or £45.50
	Token *regexp.Regexp
	// PricedQualifier matches an amount followed by "each" or "per"
	PricedQualifier *regexp.Regexp
	// Quantity captures the ticket count in a listing card
	Quantity *regexp.Regexp
	// ResaleSignals mark a page that actually lists resale inventory
	ResaleSignals []*regexp.Regexp
	FeeKeywords   []string
	// MinPrice drops amounts below face-value range (handling, delivery fees)
	MinPrice float64
	// NodeCap bounds the structured pass on very large pages
	NodeCap int
}

// DefaultPatterns returns the pattern set for pound-sterling listings
func DefaultPatterns() *Patterns {
	return NewPatterns("£")
}

// NewPatterns builds the pattern set for a currency symbol
func NewPatterns(symbol string) *Patterns {
	sym := regexp.QuoteMeta(symbol)
	return &Patterns{
		CurrencySymbol:  symbol,
		Token:           regexp.MustCompile(sym + `\d+(?:\.\d{2})?`),
		PricedQualifier: regexp.MustCompile(`(?i)` + sym + `\d+(?:\.\d{2})?\s*(?:each|per)`),
		Quantity:        regexp.MustCompile(`(?i)\b(\d+)\s*(?:tickets|ticket)\b`),
		ResaleSignals: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Verified Resale Ticket`),
			regexp.MustCompile(`(?i)\bResale\b`),
		},
		FeeKeywords: []string{
			"handling",
			"fee",
			"fees",
			"delivery",
			"service charge",
			"order",
			"facility",
			"transaction",
		},
		MinPrice: 20,
		NodeCap:  60,
	}
}

// ParsePrice converts a currency token into its numeric value.
// Tokens that do not yield a finite number are rejected.
func (p *Patterns) ParsePrice(token string) (float64, error) {
	numberStr := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), p.CurrencySymbol))
	value, err := strconv.ParseFloat(numberStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price token %q: %w", token, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid price token %q: not a finite number", token)
	}
	return value, nil
}

// ExtractTokens returns every currency token in text, in order of appearance
func (p *Patterns) ExtractTokens(text string) []string {
	return p.Token.FindAllString(text, -1)
}

// IsFeeLine reports whether a normalized line talks about fees or order
// charges rather than a ticket listing
func (p *Patterns) IsFeeLine(line string) bool {
	l := strings.ToLower(line)
	for _, kw := range p.FeeKeywords {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}

// HasResaleSignal reports whether the body text mentions resale listings
func (p *Patterns) HasResaleSignal(bodyText string) bool {
	for _, re := range p.ResaleSignals {
		if re.MatchString(bodyText) {
			return true
		}
	}
	return false
}

// QuantityIn finds the ticket count in card text, defaulting to 1
func (p *Patterns) QuantityIn(cardText string) int {
	m := p.Quantity.FindStringSubmatch(cardText)
	if m == nil {
		return 1
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty < 1 {
		return 1
	}
	return qty
}

// NormalizeWhitespace collapses runs of whitespace and trims the result
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
