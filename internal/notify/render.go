package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

const (
	reportHours         = 6
	currentRainHotAbove = 30
	hourlyRainHotAbove  = 40
)

type hourRow struct {
	Time      string
	Condition string
	Temp      int
	Rain      int
	RainHot   bool
	Alt       bool
}

type emailView struct {
	Title       string
	Body        string
	Location    string
	Recipient   string
	Subtitle    string
	LogoCID     string
	Temp        int
	Rain        int
	RainHot     bool
	Condition   string
	Hours       []hourRow
	GeneratedAt string
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background-color:#f1f5f9;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;">
<div style="max-width:600px;margin:40px auto;background-color:#ffffff;border-radius:16px;overflow:hidden;">
  <div style="background:linear-gradient(135deg,#23529c 0%,#0f172a 100%);padding:30px 20px;text-align:center;">
    {{if .LogoCID}}<img src="cid:{{.LogoCID}}" alt="Company Logo" style="height:50px;margin-bottom:15px;display:inline-block;">{{end}}
    <h1 style="color:#ffffff;margin:0;font-size:24px;font-weight:700;">{{.Location}} Weather</h1>
    <p style="color:#94a3b8;margin:5px 0 0;font-size:13px;text-transform:uppercase;letter-spacing:1px;font-weight:600;">{{.Subtitle}}</p>
  </div>
  <div style="padding:30px;">
    {{if .Body}}<p style="color:#334155;font-size:15px;margin:0 0 20px;">{{.Body}}</p>{{end}}
    <table width="100%" style="background-color:#f8fafc;border:1px solid #e2e8f0;border-radius:12px;margin-bottom:10px;">
      <tr>
        <td style="text-align:center;width:50%;padding:20px;border-right:1px solid #e2e8f0;">
          <p style="margin:0;color:#64748b;font-size:11px;text-transform:uppercase;font-weight:600;">Temperature</p>
          <p style="margin:5px 0 0;color:#0f172a;font-size:28px;font-weight:800;">{{.Temp}}°C</p>
        </td>
        <td style="text-align:center;width:50%;padding:20px;">
          <p style="margin:0;color:#64748b;font-size:11px;text-transform:uppercase;font-weight:600;">Rain Chance</p>
          <p style="margin:5px 0 0;color:{{if .RainHot}}#ef4444{{else}}#3b82f6{{end}};font-size:28px;font-weight:800;">{{.Rain}}%</p>
        </td>
      </tr>
    </table>
    <div style="text-align:center;margin-bottom:20px;">
      <span style="background-color:#e2e8f0;color:#334155;padding:4px 12px;border-radius:20px;font-size:12px;font-weight:bold;">Condition: {{.Condition}}</span>
    </div>
    {{if .Hours}}
    <h3 style="color:#1e293b;font-size:16px;font-weight:700;border-bottom:2px solid #e2e8f0;padding-bottom:10px;">📅 Forecast for Next {{len .Hours}} Hours</h3>
    <table width="100%" cellspacing="0" cellpadding="0" style="font-size:14px;text-align:left;">
      <thead>
        <tr style="background-color:#f8fafc;">
          <th style="padding:12px 15px;color:#64748b;font-size:11px;">Time</th>
          <th style="padding:12px 15px;color:#64748b;font-size:11px;">Condition</th>
          <th style="padding:12px 15px;color:#64748b;font-size:11px;">Temp</th>
          <th style="padding:12px 15px;color:#64748b;font-size:11px;">Rain Chance</th>
        </tr>
      </thead>
      <tbody>
      {{range .Hours}}
        <tr style="background-color:{{if .Alt}}#fcfcfc{{else}}#ffffff{{end}};">
          <td style="padding:12px 15px;color:#334155;font-weight:500;">{{.Time}}</td>
          <td style="padding:12px 15px;color:#334155;">{{.Condition}}</td>
          <td style="padding:12px 15px;color:#0f172a;font-weight:700;">{{.Temp}}°C</td>
          <td style="padding:12px 15px;color:{{if .RainHot}}#ef4444{{else}}#3b82f6{{end}};font-weight:600;">{{.Rain}}%</td>
        </tr>
      {{end}}
      </tbody>
    </table>
    {{else}}
    <p style="color:#64748b;font-size:14px;text-align:center;padding:20px;">🌙 No hourly data available.</p>
    {{end}}
    <p style="color:#94a3b8;font-size:12px;text-align:center;margin-top:30px;">
      Sent automatically to <a href="mailto:{{.Recipient}}" style="color:#3b82f6;text-decoration:none;">{{.Recipient}}</a> at {{.GeneratedAt}}
    </p>
  </div>
</div>
</body>
</html>
`))

// RenderEmail renders the HTML e-mail body for msg. msg.Snapshot must be set.
func RenderEmail(msg Message, tz *time.Location, logoCID string) (string, error) {
	snap := msg.Snapshot
	if snap == nil {
		return "", fmt.Errorf("render email: no snapshot")
	}
	view := emailView{
		Title:       msg.Payload.Title,
		Body:        msg.Payload.Body,
		Location:    msg.Location.Name,
		Recipient:   msg.Location.Email,
		Subtitle:    subtitle(msg.Payload.Kind),
		LogoCID:     logoCID,
		Temp:        round(snap.Current.Temp),
		Rain:        snap.Current.RainProb,
		RainHot:     snap.Current.RainProb > currentRainHotAbove,
		Condition:   snap.Current.Condition,
		GeneratedAt: msg.Now.In(tz).Format("Jan 2, 3:04 PM"),
	}
	for i, h := range snap.Upcoming(msg.Now, reportHours) {
		view.Hours = append(view.Hours, hourRow{
			Time:      h.Time.In(tz).Format("3:04 PM"),
			Condition: h.Condition,
			Temp:      round(h.Temp),
			Rain:      h.RainProb,
			RainHot:   h.RainProb > hourlyRainHotAbove,
			Alt:       i%2 == 1,
		})
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// RenderTelegram renders the Bot API HTML message for msg.
func RenderTelegram(msg Message, tz *time.Location) string {
	var b strings.Builder
	esc := html.EscapeString

	if msg.Payload.Kind == models.KindAlert || msg.Payload.Kind == models.KindManual {
		fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n", esc(msg.Payload.Title), esc(msg.Payload.Body))
	}
	fmt.Fprintf(&b, "<b>🌤️ Weather Update: %s</b>\n\n", esc(msg.Location.Name))

	if msg.Snapshot == nil {
		b.WriteString("<i>No cached forecast available.</i>")
		return b.String()
	}
	cur := msg.Snapshot.Current
	fmt.Fprintf(&b, "<b>Condition:</b> %s\n", esc(cur.Condition))
	fmt.Fprintf(&b, "<b>Temp:</b> %d°C\n", round(cur.Temp))
	fmt.Fprintf(&b, "<b>Rain Risk:</b> %d%%\n\n", cur.RainProb)
	fmt.Fprintf(&b, "<b>📅 Forecast (Next %d Hours):</b>\n", reportHours)

	upcoming := msg.Snapshot.Upcoming(msg.Now, reportHours)
	if len(upcoming) == 0 {
		b.WriteString("<i>No hourly data available.</i>")
		return b.String()
	}
	for _, h := range upcoming {
		icon := "💧"
		if h.RainProb > hourlyRainHotAbove {
			icon = "🌧️"
		}
		fmt.Fprintf(&b, "• <b>%s</b>: %d°C | %s %d%%\n", h.Time.In(tz).Format("3:04 PM"), round(h.Temp), icon, h.RainProb)
	}
	return b.String()
}

func subtitle(kind models.PayloadKind) string {
	switch kind {
	case models.KindAlert:
		return "Rain Alert"
	case models.KindManual:
		return "Manager Notice"
	case models.KindDigest:
		return "Hourly Digest"
	default:
		return "Daily Manager Report"
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
