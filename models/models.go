package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Offer represents a price point and the number of tickets seen at it
type Offer struct {
	PriceRaw   string  `json:"price_raw"`
	PriceValue float64 `json:"price_value"`
	Quantity   int     `json:"quantity"`
}

// String renders the offer the way it appears in alert messages
func (o Offer) String() string {
	unit := "tickets"
	if o.Quantity == 1 {
		unit = "ticket"
	}
	return fmt.Sprintf("%s — %d %s", o.PriceRaw, o.Quantity, unit)
}

// Extraction phases
const (
	PhaseStructured = "structured"
	PhaseFallback   = "fallback"
)

// ExtractionResult is the outcome of one fetch+classify+extract cycle
type ExtractionResult struct {
	HasResaleSignal bool    `json:"has_resale_signal"`
	Offers          []Offer `json:"offers"`
	Blocked         bool    `json:"blocked"`
	BlockReason     string  `json:"block_reason,omitempty"`
	FinalURL        string  `json:"final_url"`
	Phase           string  `json:"phase,omitempty"` // diagnostics only
}

// Usable reports whether the result carries real listings worth acting on
func (r ExtractionResult) Usable() bool {
	return !r.Blocked && r.HasResaleSignal && len(r.Offers) > 0
}

// PageSnapshot is what a renderer hands back for one URL
type PageSnapshot struct {
	BodyText   string
	HTML       string
	FinalURL   string
	Title      string
	StatusCode int
	Screenshot []byte
}

// EventConfig is one operator-supplied event to watch
type EventConfig struct {
	URL          string  `json:"url" yaml:"url"`
	Artist       string  `json:"artist" yaml:"artist"`
	DateLabel    string  `json:"date_label" yaml:"date"`
	Location     string  `json:"location" yaml:"location"`
	MaxPrice     float64 `json:"max_price" yaml:"max_price"`
	MinQuantity  int     `json:"min_quantity" yaml:"min_quantity"`
	EnabledUntil string  `json:"enabled_until,omitempty" yaml:"enabled_until"`
}

// Label is the short human name used in logs
func (e EventConfig) Label() string {
	return fmt.Sprintf("%s (%s)", e.Artist, e.DateLabel)
}

// Qualifying returns the offers at or under the event's price cap and their total quantity
func (e EventConfig) Qualifying(offers []Offer) ([]Offer, int) {
	var qualifying []Offer
	total := 0
	for _, o := range offers {
		if o.PriceValue <= e.MaxPrice {
			qualifying = append(qualifying, o)
			total += o.Quantity
		}
	}
	return qualifying, total
}

// Notification is the payload sent when an event enters the qualifying state
type Notification struct {
	Event         EventConfig `json:"event"`
	Qualifying    []Offer     `json:"qualifying"`
	TotalQuantity int         `json:"total_quantity"`
	FoundAt       time.Time   `json:"found_at"`
}

// Format renders the notification text; timestamps are shown in loc
func (n Notification) Format(currencySymbol string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	matches := make([]string, 0, len(n.Qualifying))
	for _, o := range n.Qualifying {
		matches = append(matches, o.String())
	}

	var b strings.Builder
	b.WriteString("🚨 **RESALE TICKETS DETECTED (MATCHED FILTERS)!** 🚨\n")
	fmt.Fprintf(&b, "Artist: %s\n", n.Event.Artist)
	fmt.Fprintf(&b, "Location: %s\n", n.Event.Location)
	fmt.Fprintf(&b, "Event Date: %s\n", n.Event.DateLabel)
	fmt.Fprintf(&b, "Max Price: %s%s\n", currencySymbol, formatAmount(n.Event.MaxPrice))
	fmt.Fprintf(&b, "Matches: %s\n", strings.Join(matches, " | "))
	fmt.Fprintf(&b, "Total qualifying tickets: %d\n", n.TotalQuantity)
	fmt.Fprintf(&b, "Time Found (UK): %s\n", n.FoundAt.In(loc).Format("02 Jan 2006, 15:04:05"))
	b.WriteString(n.Event.URL)
	return b.String()
}

// formatAmount prints the configured cap as written: 2000, 45.5, 120.25
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AlertRecord is a sent notification as stored in the alert history
type AlertRecord struct {
	ID            int       `json:"id" db:"id"`
	EventURL      string    `json:"event_url" db:"event_url"`
	Artist        string    `json:"artist" db:"artist"`
	DateLabel     string    `json:"date_label" db:"date_label"`
	Location      string    `json:"location" db:"location"`
	MaxPrice      float64   `json:"max_price" db:"max_price"`
	TotalQuantity int       `json:"total_quantity" db:"total_quantity"`
	Matches       string    `json:"matches" db:"matches"`
	SentAt        time.Time `json:"sent_at" db:"sent_at"`
}
