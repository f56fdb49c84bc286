package scraper

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"resalewatch/models"

	"github.com/sirupsen/logrus"
)

var safeFilenameReplaceRegex = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// DebugArtifacts dumps blocked pages to disk for later inspection.
// Failures are logged and otherwise ignored.
type DebugArtifacts struct {
	dir    string
	now    func() time.Time
	logger *logrus.Logger
}

// NewDebugArtifacts writes artifacts under dir
func NewDebugArtifacts(dir string, logger *logrus.Logger) *DebugArtifacts {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DebugArtifacts{dir: dir, now: time.Now, logger: logger}
}

// WriteBlocked writes <timestamp>_<label>.{html,txt,png}
func (d *DebugArtifacts) WriteBlocked(label string, page models.PageSnapshot, reason string) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.WithError(err).Warn("Could not create debug directory")
		return
	}

	base := filepath.Join(d.dir, ArtifactName(d.now(), label))

	info := fmt.Sprintf("url: %s\ntitle: %s\nstatus: %d\nreason: %s\n\n%s\n",
		page.FinalURL, page.Title, page.StatusCode, reason, page.BodyText)
	d.write(base+".txt", []byte(info))
	if page.HTML != "" {
		d.write(base+".html", []byte(page.HTML))
	}
	if len(page.Screenshot) > 0 {
		d.write(base+".png", page.Screenshot)
	}

	d.logger.WithField("path", base).Info("🧾 Saved debug artifacts for blocked page")
}

func (d *DebugArtifacts) write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.WithError(err).WithField("path", path).Warn("Could not write debug artifact")
	}
}

// ArtifactName derives a filesystem-safe name from a timestamp and label
func ArtifactName(t time.Time, label string) string {
	safe := strings.Trim(safeFilenameReplaceRegex.ReplaceAllString(label, "-"), "-")
	if safe == "" {
		safe = "page"
	}
	return t.UTC().Format("20060102T150405Z") + "_" + safe
}
