package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"resalewatch/models"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

const maxRedirects = 10

// HTTPRenderer fetches pages without a browser. It sees only server-rendered
// markup, which is enough for queue/block pages and static resale listings.
type HTTPRenderer struct {
	timeout time.Duration
	logger  *logrus.Logger
}

// NewHTTPRenderer creates a colly-backed renderer
func NewHTTPRenderer(timeout time.Duration, logger *logrus.Logger) *HTTPRenderer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPRenderer{timeout: timeout, logger: logger}
}

// contextTransport also cancels requests when ctx is done, so a cancelled
// fetch aborts the in-flight request instead of waiting out the timeout
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	resp, err := t.base.RoundTrip(req.WithContext(reqCtx))
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, release: func() { stop(); cancel() }}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	release func()
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// newCollector builds a fresh collector per fetch so redirect tracking and
// callbacks never leak between concurrent checks
func (hr *HTTPRenderer) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(desktopUserAgent),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(&contextTransport{ctx: ctx, base: http.DefaultTransport})
	c.SetRequestTimeout(hr.timeout)
	// block pages are usually served as 403/429; we still want their body
	c.ParseHTTPErrorResponse = true
	return c
}

// Render fetches url and returns the raw markup, status and final URL
func (hr *HTTPRenderer) Render(ctx context.Context, url string) (models.PageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.PageSnapshot{}, err
	}

	c := hr.newCollector(ctx)
	snap := models.PageSnapshot{FinalURL: url}
	var fetchErr error

	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		hr.logger.WithFields(logrus.Fields{
			"from": via[len(via)-1].URL.String(),
			"to":   req.URL.String(),
		}).Debug("Following redirect")
		snap.FinalURL = req.URL.String()
		return nil
	})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-GB,en;q=0.9")
	})

	c.OnResponse(func(r *colly.Response) {
		snap.StatusCode = r.StatusCode
		snap.HTML = string(r.Body)
	})

	c.OnHTML("title", func(e *colly.HTMLElement) {
		if snap.Title == "" {
			snap.Title = e.Text
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PageSnapshot{}, ctxErr
		}
		return models.PageSnapshot{}, fmt.Errorf("request failed: %w", err)
	}
	c.Wait()

	if snap.StatusCode == 0 {
		if fetchErr == nil {
			fetchErr = errors.New("no response received")
		}
		return models.PageSnapshot{}, fmt.Errorf("request failed: %w", fetchErr)
	}

	return snap, nil
}

// Close is a no-op; colly holds no long-lived resources
func (hr *HTTPRenderer) Close() error {
	return nil
}
