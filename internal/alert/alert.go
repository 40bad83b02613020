// Package alert turns forecast snapshots into notification payloads.
package alert

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

const (
	DefaultThreshold   = 15
	DefaultLookahead   = 2
	DefaultDigestHours = 6
)

// Config tunes the Evaluator. Zero values take the defaults above and UTC.
type Config struct {
	// Threshold is the rain probability that must be exceeded (strictly) to alert.
	Threshold int
	// Lookahead is how many upcoming hourly points are examined.
	Lookahead int
	// DigestHours is how many upcoming hourly points a digest summarizes.
	DigestHours int
	// Location renders time labels in local civil time.
	Location *time.Location
}

// Evaluator applies the rain alert policy. It is stateless and safe for concurrent use.
type Evaluator struct {
	threshold   int
	lookahead   int
	digestHours int
	loc         *time.Location
}

func NewEvaluator(cfg Config) *Evaluator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.DigestHours <= 0 {
		cfg.DigestHours = DefaultDigestHours
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Evaluator{
		threshold:   cfg.Threshold,
		lookahead:   cfg.Lookahead,
		digestHours: cfg.DigestHours,
		loc:         cfg.Location,
	}
}

// Evaluate inspects the first Lookahead hourly points after now and returns an
// alert for the first one whose rain probability exceeds the threshold.
func (e *Evaluator) Evaluate(loc models.Location, snap models.ForecastSnapshot, now time.Time) (models.AlertPayload, bool) {
	for _, h := range snap.Upcoming(now, e.lookahead) {
		if h.RainProb <= e.threshold {
			continue
		}
		return models.AlertPayload{
			Kind:         models.KindAlert,
			Title:        fmt.Sprintf("🌧️ Rain Alert: %s", loc.Name),
			Body:         fmt.Sprintf("Rain expected around %s (%d%% chance).", e.clock(h.Time), h.RainProb),
			LocationID:   loc.ID,
			LocationName: loc.Name,
			GeneratedAt:  now,
			TriggerTime:  h.Time,
			RainProb:     h.RainProb,
		}, true
	}
	return models.AlertPayload{}, false
}

// Digest summarizes the next DigestHours hourly points. It returns false when
// the snapshot has no upcoming points.
func (e *Evaluator) Digest(loc models.Location, snap models.ForecastSnapshot, now time.Time) (models.AlertPayload, bool) {
	points := snap.Upcoming(now, e.digestHours)
	if len(points) == 0 {
		return models.AlertPayload{}, false
	}

	minT, maxT := math.Inf(1), math.Inf(-1)
	peak := points[0]
	for _, p := range points {
		minT = math.Min(minT, p.Temp)
		maxT = math.Max(maxT, p.Temp)
		if p.RainProb > peak.RainProb {
			peak = p
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d-%d°C over the next %d hours.", points[0].Condition,
		int(math.Round(minT)), int(math.Round(maxT)), len(points))
	if peak.RainProb > 0 {
		fmt.Fprintf(&b, " Peak rain chance %d%% at %s.", peak.RainProb, e.clock(peak.Time))
	} else {
		b.WriteString(" No rain expected.")
	}

	return models.AlertPayload{
		Kind:         models.KindDigest,
		Title:        fmt.Sprintf("🌤️ Next %d hours: %s", len(points), loc.Name),
		Body:         b.String(),
		LocationID:   loc.ID,
		LocationName: loc.Name,
		GeneratedAt:  now,
		RainProb:     peak.RainProb,
	}, true
}

// Report builds the scheduled batch report payload from current conditions.
func (e *Evaluator) Report(loc models.Location, snap models.ForecastSnapshot, now time.Time) models.AlertPayload {
	return models.AlertPayload{
		Kind:  models.KindReport,
		Title: fmt.Sprintf("📢 Weather Alert: %s Report", loc.Name),
		Body: fmt.Sprintf("%s, %d°C, rain risk %d%%.", snap.Current.Condition,
			int(math.Round(snap.Current.Temp)), snap.Current.RainProb),
		LocationID:   loc.ID,
		LocationName: loc.Name,
		GeneratedAt:  now,
		RainProb:     snap.Current.RainProb,
	}
}

// Manual builds an operator-triggered payload carrying message verbatim.
// An empty message falls back to the current conditions line.
func (e *Evaluator) Manual(loc models.Location, snap models.ForecastSnapshot, message string, now time.Time) models.AlertPayload {
	p := e.Report(loc, snap, now)
	p.Kind = models.KindManual
	p.Title = fmt.Sprintf("Weather Alert: %s - %s", loc.Name, snap.Current.Condition)
	if strings.TrimSpace(message) != "" {
		p.Body = strings.TrimSpace(message)
	}
	return p
}

// ClockLabel formats t as a local "3:04 PM" label.
func (e *Evaluator) ClockLabel(t time.Time) string {
	return e.clock(t)
}

func (e *Evaluator) clock(t time.Time) string {
	return t.In(e.loc).Format("3:04 PM")
}
