package scraper

import (
	"net/http"
	"testing"

	"resalewatch/models"
)

func TestClassify(t *testing.T) {
	bd := NewBotDetector()

	cases := []struct {
		name       string
		body, html string
		url        string
		blocked    bool
		reason     string
	}{
		{"clean listing", "Verified Resale Ticket £45.00 each", "<div>£45.00 each</div>", "https://www.ticketmaster.co.uk/event/1", false, ""},
		{"captcha in text", "Please complete the CAPTCHA", "", "https://www.ticketmaster.co.uk/event/1", true, SignalCaptcha},
		{"queue url", "", "", "https://ticketmaster.queue-it.net/?c=tm", true, SignalQueue},
		{"queue text", "You are now in line. Thank you for your patience.", "", "", true, SignalQueue},
		{"interruption markup", "", "<h1>Pardon Our Interruption</h1>", "", true, SignalInterruption},
		{"access denied", "Access Denied", "", "", true, SignalAccessDenied},
		{"403 status text", "Error 403: request blocked", "", "", true, SignalAccessDenied},
		{"403 as a price", "Verified Resale Ticket £403.00 each", "", "", false, ""},
		{"press and hold", "Press and hold the button", "", "", true, SignalHumanVerification},
		{"several signals", "Pardon our interruption. Verify you are human. captcha", "", "", true, "interruption,human-verification,captcha"},
		{"bot block", "Sorry, you have been blocked", "", "", true, SignalBotBlock},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := bd.Classify(c.body, c.html, c.url)
			if got.Blocked != c.blocked {
				t.Errorf("Blocked = %v, expected %v", got.Blocked, c.blocked)
			}
			if got.Reason != c.reason {
				t.Errorf("Reason = %q, expected %q", got.Reason, c.reason)
			}
		})
	}
}

func TestClassifyPageStatus(t *testing.T) {
	bd := NewBotDetector()

	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		p := bd.ClassifyPage(models.PageSnapshot{StatusCode: status, FinalURL: "https://example.com"})
		if !p.Blocked || p.Reason != SignalAccessDenied {
			t.Errorf("status %d: got %+v, expected access-denied block", status, p)
		}
	}

	p := bd.ClassifyPage(models.PageSnapshot{
		StatusCode: http.StatusForbidden,
		BodyText:   "queue-it waiting room, captcha",
	})
	if p.Reason != "queue,access-denied,captcha" {
		t.Errorf("Reason = %q, expected signal order preserved", p.Reason)
	}

	p = bd.ClassifyPage(models.PageSnapshot{StatusCode: http.StatusOK, BodyText: "Verified Resale Ticket"})
	if p.Blocked {
		t.Errorf("expected 200 page not to be blocked, got %+v", p)
	}
}
