package repository

import (
	"net/url"
	"strings"
	"sync"
)

// AlertStateRepository tracks, per event URL, whether an alert has already
// fired for the current qualifying streak. It lives in memory only; a
// restart clears it.
type AlertStateRepository struct {
	mu      sync.RWMutex
	alerted map[string]bool
}

func NewAlertStateRepository() *AlertStateRepository {
	return &AlertStateRepository{alerted: make(map[string]bool)}
}

// IsAlerted reports whether eventURL is in the alerted state
func (r *AlertStateRepository) IsAlerted(eventURL string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alerted[NormalizeURL(eventURL)]
}

// SetAlerted records the alert state for eventURL
func (r *AlertStateRepository) SetAlerted(eventURL string, alerted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerted[NormalizeURL(eventURL)] = alerted
}

// Snapshot returns a copy of the whole state table
func (r *AlertStateRepository) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.alerted))
	for k, v := range r.alerted {
		out[k] = v
	}
	return out
}

// NormalizeURL makes equivalent event URLs share one state key:
// scheme and host are lower-cased, fragments and trailing slashes dropped.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
