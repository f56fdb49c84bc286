package scraper

import (
	"net/http"
	"regexp"
	"strings"

	"resalewatch/models"
)

// Signal keys reported in Protection.Reason
const (
	SignalQueue             = "queue"
	SignalAccessDenied      = "access-denied"
	SignalInterruption      = "interruption"
	SignalHumanVerification = "human-verification"
	SignalCaptcha           = "captcha"
	SignalBotBlock          = "bot-block"
)

type signal struct {
	key      string
	patterns []*regexp.Regexp
}

// Protection is the classifier's verdict for one fetched page
type Protection struct {
	Blocked bool     `json:"blocked"`
	Reason  string   `json:"reason,omitempty"`
	Matched []string `json:"matched,omitempty"`
}

// BotDetector detects queue pages, bot walls and CAPTCHAs
type BotDetector struct {
	signals []signal
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		signals: []signal{
			{SignalQueue, []*regexp.Regexp{
				regexp.MustCompile(`queue-it`),
				regexp.MustCompile(`\bin queue\b`),
				regexp.MustCompile(`you are now in line`),
			}},
			{SignalAccessDenied, []*regexp.Regexp{
				regexp.MustCompile(`access denied`),
				regexp.MustCompile(`\bforbidden\b`),
				regexp.MustCompile(`\b(?:error|http|status) 403\b`),
			}},
			{SignalInterruption, []*regexp.Regexp{
				regexp.MustCompile(`pardon (?:our|the) interruption`),
				regexp.MustCompile(`unusual traffic`),
			}},
			{SignalHumanVerification, []*regexp.Regexp{
				regexp.MustCompile(`verify you are (?:a )?human`),
				regexp.MustCompile(`are you a robot`),
				regexp.MustCompile(`press and hold`),
			}},
			{SignalCaptcha, []*regexp.Regexp{
				regexp.MustCompile(`captcha`),
			}},
			{SignalBotBlock, []*regexp.Regexp{
				regexp.MustCompile(`you have been blocked`),
				regexp.MustCompile(`bot detection`),
				regexp.MustCompile(`automated requests`),
			}},
		},
	}
}

// Classify checks page text, markup and the final URL for protection
// signals. Every matching category is reported, not just the first.
func (bd *BotDetector) Classify(bodyText, html, finalURL string) Protection {
	inputs := []string{
		strings.ToLower(bodyText),
		strings.ToLower(html),
		strings.ToLower(finalURL),
	}

	var matched []string
	for _, s := range bd.signals {
		if s.matchesAny(inputs) {
			matched = append(matched, s.key)
		}
	}

	return Protection{
		Blocked: len(matched) > 0,
		Reason:  strings.Join(matched, ","),
		Matched: matched,
	}
}

// ClassifyPage classifies a rendered snapshot. A 403 or 429 response
// counts as access denied even when the body is empty.
func (bd *BotDetector) ClassifyPage(page models.PageSnapshot) Protection {
	p := bd.Classify(page.BodyText, page.HTML, page.FinalURL)
	if page.StatusCode == http.StatusForbidden || page.StatusCode == http.StatusTooManyRequests {
		if !containsString(p.Matched, SignalAccessDenied) {
			p.Matched = insertOrdered(bd.order(), p.Matched, SignalAccessDenied)
			p.Reason = strings.Join(p.Matched, ",")
		}
		p.Blocked = true
	}
	return p
}

func (s signal) matchesAny(inputs []string) bool {
	for _, in := range inputs {
		if in == "" {
			continue
		}
		for _, re := range s.patterns {
			if re.MatchString(in) {
				return true
			}
		}
	}
	return false
}

func (bd *BotDetector) order() []string {
	keys := make([]string, 0, len(bd.signals))
	for _, s := range bd.signals {
		keys = append(keys, s.key)
	}
	return keys
}

// insertOrdered adds key to matched keeping the detector's signal order
func insertOrdered(order, matched []string, key string) []string {
	set := map[string]bool{key: true}
	for _, m := range matched {
		set[m] = true
	}
	out := make([]string, 0, len(set))
	for _, k := range order {
		if set[k] {
			out = append(out, k)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
