package services

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/example/exodetect/internal/config"
)

// Mailer sends OTP mail through an SMTP relay. Without credentials it
// runs in mock mode and logs the code instead, so local setups work
// end to end.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer builds a Mailer from config. A nil dialer means mock mode.
func NewMailer(cfg *config.Config) *Mailer {
	if cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		log.Println("[mail] SMTP credentials missing, using mock mode")
		return &Mailer{}
	}

	from := cfg.MailFrom
	if from == "" {
		from = cfg.SMTPUser
	}

	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   from,
	}
}

// SendOtp delivers a verification code to an email address.
func (m *Mailer) SendOtp(to, code, purpose string) error {
	if m.dialer == nil {
		log.Printf("[MOCK OTP] To: %s, Code: %s", to, code)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("OTP for %s", purpose))
	msg.SetBody("text/plain", fmt.Sprintf("Your OTP is %s. It will expire in 5 minutes.", code))
	msg.AddAlternative("text/html", fmt.Sprintf(
		"<p>Use the following code to complete your %s:</p><h2>%s</h2><p>It expires in 5 minutes. Do not share it with anyone.</p>",
		purpose, code))

	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Printf("[mail] send failed: %v", err)
		return fmt.Errorf("email could not be sent: %w", err)
	}

	return nil
}
