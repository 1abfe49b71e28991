package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Sender sends transactional emails (invite, welcome). Nil = no-op.
type Sender interface {
	SendInvite(ctx context.Context, toEmail, inviteLink, inviterName string) error
	SendWelcome(ctx context.Context, toEmail, firstName string) error
}

// BrevoClient sends emails via the Brevo (Sendinblue) API. Configured via
// SENDINBLUE_API_KEY and MAIL_FROM; an empty key turns sending into a no-op.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@wearemci.com"
}

// send sends one email via Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "MCI Analytics"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: "support@wearemci.com", Name: "MCI Analytics Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendInvite sends the invitation email with the signup link.
func (c *BrevoClient) SendInvite(ctx context.Context, toEmail, inviteLink, inviterName string) error {
	if c.APIKey == "" {
		return nil
	}
	content := invitationContent(inviteLink, inviterName)
	return c.send(ctx, toEmail, "You have been invited to MCI Analytics", EmailLayout(content))
}

// SendWelcome sends the welcome email after the account is confirmed.
func (c *BrevoClient) SendWelcome(ctx context.Context, toEmail, firstName string) error {
	if c.APIKey == "" {
		return nil
	}
	if firstName == "" {
		firstName = "there"
	}
	content := welcomeContent(firstName)
	return c.send(ctx, toEmail, "Welcome to MCI Analytics!", EmailLayout(content))
}

func invitationContent(inviteLink, inviterName string) string {
	return fmt.Sprintf(`
    <h1>You've Been Invited to MCI Analytics</h1>
    <p>%s has invited you to create an account on the <strong>MCI Analytics</strong> dashboard.</p>
    <p>Click the button below to accept your invitation and set up your account:</p>
    <center>
      <a href="%s" class="mci-button">Accept Invitation</a>
    </center>
    <p style="margin-top:20px;font-size:14px;color:#666;">
      If you were not expecting this invitation, you can safely ignore this email.
    </p>
    <p>— The MCI Analytics Team</p>
`, EscapeHTML(inviterName), inviteLink)
}

func welcomeContent(userName string) string {
	dashboardURL := "https://analytics.wearemci.com/"
	return fmt.Sprintf(`
    <h1>Welcome aboard, %s!</h1>
    <p>Your <strong>MCI Analytics</strong> account is ready. You now have access to campaign dashboards, reporting and client insights.</p>
    <center>
      <a href="%s" class="mci-button">Open Your Dashboard</a>
    </center>
    <p style="margin-top: 20px; font-size: 14px; color: #666;">
      If you did not sign up for this account, please contact our support team immediately.
    </p>
    <p>— The MCI Analytics Team</p>
`, EscapeHTML(userName), dashboardURL)
}
