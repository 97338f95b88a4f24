package discovery

import (
	"regexp"
	"strings"
	"time"
)

// Reject reasons reported by Filter.Evaluate.
const (
	RejectBadName   = "bad_name"
	RejectSpamBurst = "spam_burst"
)

type recentToken struct {
	seenAt time.Time
	name   string
	symbol string
}

// Filter rejects creation events by forbidden name pattern or by
// recent-duplicate burst. It keeps no ownership: rejected tokens never reach
// the cache or the forwarder.
//
// The pattern and window are read per evaluation so runtime config changes
// take effect immediately.
type Filter struct {
	pattern func() *regexp.Regexp
	window  func() time.Duration
	recent  []recentToken
	now     func() time.Time
}

// NewFilter creates a filter. pattern and window are typically bound to the
// config store; now defaults to time.Now.
func NewFilter(pattern func() *regexp.Regexp, window func() time.Duration, now func() time.Time) *Filter {
	if now == nil {
		now = time.Now
	}
	return &Filter{
		pattern: pattern,
		window:  window,
		now:     now,
	}
}

// Evaluate decides whether a token passes. The returned reason is empty on
// accept, RejectBadName or RejectSpamBurst otherwise. Accepted tokens are
// recorded for burst detection.
func (f *Filter) Evaluate(name, symbol string) (bool, string) {
	if re := f.pattern(); re != nil && re.MatchString(name) {
		return false, RejectBadName
	}

	now := f.now()
	window := f.window()

	for _, r := range f.recent {
		if now.Sub(r.seenAt) > window {
			continue
		}
		if strings.EqualFold(r.name, name) || strings.EqualFold(r.symbol, symbol) {
			return false, RejectSpamBurst
		}
	}

	f.recent = append(f.recent, recentToken{seenAt: now, name: name, symbol: symbol})
	f.prune(now, 2*window)

	return true, ""
}

// prune drops recorded tokens older than the retention horizon.
func (f *Filter) prune(now time.Time, keep time.Duration) {
	kept := f.recent[:0]
	for _, r := range f.recent {
		if now.Sub(r.seenAt) <= keep {
			kept = append(kept, r)
		}
	}
	f.recent = kept
}
