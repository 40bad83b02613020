package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Mail is one outbound e-mail.
type Mail struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Inline  []InlineFile
}

// InlineFile is an attachment referenced from the HTML body as cid:ContentID.
type InlineFile struct {
	Path      string
	ContentID string
}

// Mailer delivers Mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// EmailNotifier renders messages as HTML e-mail to the location's mailbox.
type EmailNotifier struct {
	mailer   Mailer
	tz       *time.Location
	logoPath string
}

const logoContentID = "company-logo"

// NewEmailNotifier creates an EmailNotifier. logoPath is optional.
func NewEmailNotifier(mailer Mailer, tz *time.Location, logoPath string) *EmailNotifier {
	if tz == nil {
		tz = time.UTC
	}
	return &EmailNotifier{mailer: mailer, tz: tz, logoPath: logoPath}
}

func (e *EmailNotifier) Channel() string { return ChannelEmail }

// Notify sends the e-mail. It is skipped when the location has no mailbox or
// no cached snapshot exists.
func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Location.Email == "" {
		return fmt.Errorf("%w: no mailbox for location %d", ErrSkipped, msg.Location.ID)
	}
	if msg.Snapshot == nil {
		return fmt.Errorf("%w: no cached snapshot for location %d", ErrSkipped, msg.Location.ID)
	}

	cid := ""
	var inline []InlineFile
	if e.logoPath != "" {
		cid = logoContentID
		inline = append(inline, InlineFile{Path: e.logoPath, ContentID: cid})
	}
	body, err := RenderEmail(msg, e.tz, cid)
	if err != nil {
		return fmt.Errorf("%w: email: %w", ErrChannel, err)
	}

	m := Mail{
		To:      msg.Location.Email,
		Subject: msg.Payload.Title,
		HTML:    body,
		Text:    msg.Payload.Title + "\n\n" + msg.Payload.Body,
		Inline:  inline,
	}
	if err := e.mailer.Send(ctx, m); err != nil {
		return fmt.Errorf("%w: email: %w", ErrChannel, err)
	}
	return nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	FromAddr string
	// TLS is "starttls" (default), "ssl" or "none".
	TLS     string
	Timeout time.Duration
}

// SMTPMailer delivers Mail over SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.FromAddr == "" {
		cfg.FromAddr = cfg.Username
	}
	if cfg.FromAddr == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "Meteoscope Bot"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (s *SMTPMailer) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	switch s.cfg.TLS {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send builds a multipart message and delivers it in one SMTP session.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromAddr); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("set recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	if m.Text != "" {
		msg.AddAlternativeString(mail.TypeTextPlain, m.Text)
	}
	for _, f := range m.Inline {
		msg.EmbedFile(f.Path, mail.WithFileContentID(f.ContentID))
	}

	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}
