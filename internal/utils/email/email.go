package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendExpiryReport mails the list of cards expired on day to the report address
func (s *Sender) SendExpiryReport(day time.Time, expired []*models.Card) error {
	e := s.buildExpiryReport(day, expired)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send expiry report to %s: %v", s.cfg.ReportEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.ReportEmail, e.Subject)
	return nil
}

func (s *Sender) buildExpiryReport(day time.Time, expired []*models.Card) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.ReportEmail}
	e.Subject = fmt.Sprintf("Expired cards report for %s", day.Format("2006-01-02"))

	var body strings.Builder
	fmt.Fprintf(&body, "%d card(s) were moved to EXPIRED on %s.\n\n", len(expired), day.Format("2006-01-02"))
	for _, c := range expired {
		fmt.Fprintf(&body, "  #%d  %s  %s  expired %s\n",
			c.ID, models.MaskCardNumber(c.CardNumber), c.OwnerName, c.ExpirationDate.Format("2006-01-02"))
	}
	body.WriteString("\nBest regards,\nBank Cards Service")
	e.Text = []byte(body.String())
	return e
}
