package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resalewatch/models"

	"github.com/sirupsen/logrus"
)

// ErrEmptyPage is returned when a render produced neither text nor markup
var ErrEmptyPage = errors.New("rendered page is empty")

// Renderer turns a URL into page text, markup and the final URL
type Renderer interface {
	Render(ctx context.Context, url string) (models.PageSnapshot, error)
	Close() error
}

// ArtifactWriter receives snapshots of pages classified as blocked
type ArtifactWriter interface {
	WriteBlocked(label string, page models.PageSnapshot, reason string)
}

// Checker runs one fetch, classify and extract cycle for a URL
type Checker struct {
	renderer  Renderer
	detector  *BotDetector
	extractor *OfferExtractor
	artifacts ArtifactWriter
	logger    *logrus.Logger
	verbose   bool
}

// NewChecker wires a renderer to the classifier and extractor
func NewChecker(renderer Renderer, detector *BotDetector, extractor *OfferExtractor, logger *logrus.Logger) *Checker {
	if detector == nil {
		detector = NewBotDetector()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if extractor == nil {
		extractor = NewOfferExtractor(nil, logger)
	}
	return &Checker{
		renderer:  renderer,
		detector:  detector,
		extractor: extractor,
		logger:    logger,
	}
}

// WithArtifacts enables debug dumps for blocked pages
func (c *Checker) WithArtifacts(w ArtifactWriter) *Checker {
	c.artifacts = w
	return c
}

// WithVerbose logs page diagnostics (URL, title, lengths, previews) on every fetch
func (c *Checker) WithVerbose(verbose bool) *Checker {
	c.verbose = verbose
	return c
}

// Check fetches url and returns the classified extraction result.
// The label is only used for logs and debug artifacts.
func (c *Checker) Check(ctx context.Context, url, label string) (models.ExtractionResult, error) {
	start := time.Now()
	page, err := c.renderer.Render(ctx, url)
	if err != nil {
		return models.ExtractionResult{FinalURL: url}, fmt.Errorf("failed to render %s: %w", url, err)
	}
	if page.FinalURL == "" {
		page.FinalURL = url
	}
	if page.BodyText == "" && page.HTML != "" {
		page.BodyText = VisibleText(page.HTML)
	}

	if c.verbose {
		c.logger.WithFields(logrus.Fields{
			"label":        label,
			"url":          page.FinalURL,
			"title":        page.Title,
			"status":       page.StatusCode,
			"html_length":  len(page.HTML),
			"body_length":  len(page.BodyText),
			"html_preview": preview(page.HTML, 400),
			"body_preview": preview(page.BodyText, 400),
			"render_time":  time.Since(start),
		}).Info("Page diagnostics")
	}

	protection := c.detector.ClassifyPage(page)
	if protection.Blocked {
		c.logger.WithFields(logrus.Fields{
			"label":  label,
			"url":    page.FinalURL,
			"reason": protection.Reason,
		}).Warn("🚫 Bot/queue protection likely detected on this run")
		if c.artifacts != nil {
			c.artifacts.WriteBlocked(label, page, protection.Reason)
		}
		return models.ExtractionResult{
			Offers:      []models.Offer{},
			Blocked:     true,
			BlockReason: protection.Reason,
			FinalURL:    page.FinalURL,
		}, nil
	}

	if page.BodyText == "" && page.HTML == "" {
		return models.ExtractionResult{FinalURL: page.FinalURL}, fmt.Errorf("failed to render %s: %w", url, ErrEmptyPage)
	}

	hasResale, offers, phase := c.extractor.Extract(page.BodyText, page.HTML)
	return models.ExtractionResult{
		HasResaleSignal: hasResale,
		Offers:          offers,
		FinalURL:        page.FinalURL,
		Phase:           phase,
	}, nil
}

func preview(s string, n int) string {
	s = NormalizeWhitespace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
