package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"resalewatch/config"
	"resalewatch/scraper"

	cli "github.com/jawher/mow.cli"
	"github.com/sirupsen/logrus"
)

func main() {
	app := cli.App("resalecheck", "Fetch one resale event page and print the offers found on it")

	verbose := app.BoolOpt("v verbose", false, "Log page diagnostics")

	app.Command("check", "Check a single event URL", func(cmd *cli.Cmd) {
		cmd.Spec = "[--renderer] [--label] [--timeout] [--retry] [--debug-dir] URL"

		var (
			url      = cmd.StringArg("URL", "", "Event page URL")
			renderer = cmd.StringOpt("r renderer", config.RendererHTTP, "Page renderer: browser or http")
			label    = cmd.StringOpt("l label", "", "Label used in logs and debug files")
			timeout  = cmd.StringOpt("t timeout", "90s", "Per-fetch timeout")
			retry    = cmd.BoolOpt("retry", false, "Apply the default retry policy")
			debugDir = cmd.StringOpt("debug-dir", "", "Write blocked pages to this directory")
		)

		cmd.Action = func() {
			logger := logrus.New()
			logger.SetOutput(os.Stderr)
			if *verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			fetchTimeout, err := time.ParseDuration(*timeout)
			if err != nil {
				logger.WithError(err).Error("Invalid timeout")
				cli.Exit(2)
			}

			if err := run(logger, *url, *label, *renderer, fetchTimeout, *retry, *debugDir, *verbose); err != nil {
				logger.WithError(err).Error("❌ Check failed")
				cli.Exit(1)
			}
		}
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, url, label, rendererKind string, timeout time.Duration, retry bool, debugDir string, verbose bool) error {
	var renderer scraper.Renderer
	switch rendererKind {
	case config.RendererHTTP:
		renderer = scraper.NewHTTPRenderer(timeout, logger)
	case config.RendererBrowser:
		br, err := scraper.NewBrowserRenderer(scraper.BrowserOptions{
			Bin:         os.Getenv("CHROME_BIN"),
			Timeout:     timeout,
			Screenshots: debugDir != "",
		}, logger)
		if err != nil {
			return err
		}
		renderer = br
	default:
		return fmt.Errorf("unknown renderer %q", rendererKind)
	}
	defer renderer.Close()

	checker := scraper.NewChecker(renderer, nil, nil, logger).WithVerbose(verbose)
	if debugDir != "" {
		checker.WithArtifacts(scraper.NewDebugArtifacts(debugDir, logger))
	}
	if label == "" {
		label = "cli"
	}

	ctx := context.Background()
	policy := &scraper.RetryPolicy{}
	if retry {
		policy = scraper.DefaultRetryPolicy()
	}

	outcome, err := scraper.FetchWithRetry(ctx, checker.Check, url, label, policy, logger)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(map[string]interface{}{
		"attempts": outcome.Attempts,
		"result":   outcome.Result,
	})
}
