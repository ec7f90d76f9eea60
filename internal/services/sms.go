package services

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var smsClient = &http.Client{Timeout: 15 * time.Second}

// SMSService sends OTP codes through a Twilio-style REST gateway.
// Without credentials it runs in mock mode and logs the code.
type SMSService struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

// NewSMSService builds the gateway client. Empty credentials mean mock mode.
func NewSMSService(baseURL, accountSID, authToken, from string) *SMSService {
	if accountSID == "" || authToken == "" || from == "" {
		log.Println("[sms] gateway credentials missing, using mock mode")
	}
	return &SMSService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (s *SMSService) mock() bool {
	return s.accountSID == "" || s.authToken == "" || s.from == ""
}

// SendOtp delivers a verification code to a phone number.
func (s *SMSService) SendOtp(to, code string) error {
	if s.mock() {
		log.Printf("[MOCK OTP] To: %s, Code: %s", to, code)
		return nil
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	form := url.Values{
		"From": {s.from},
		"To":   {to},
		"Body": {fmt.Sprintf("Your OTP is: %s. It will expire in 5 minutes.", code)},
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := smsClient.Do(req)
	if err != nil {
		log.Printf("[sms] send failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[sms] gateway returned status %d", resp.StatusCode)
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	return nil
}
