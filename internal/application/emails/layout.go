package emails

import (
	"fmt"
	"strings"
	"time"
)

// Brand configuration for the transactional email layout.
const (
	themePrimary   = "#1D4ED8"
	themeTextMain  = "#1F2937"
	themeTextMuted = "#6B7280"
	themeBgBody    = "#F3F4F6"
	themeWhite     = "#FFFFFF"
)

// EmailLayout wraps content in the shared MCI Analytics HTML frame.
func EmailLayout(contentHTML string) string {
	year := time.Now().Year()
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en" xmlns="http://www.w3.org/1999/xhtml" xmlns:o="urn:schemas-microsoft-com:office:office">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>MCI Analytics</title>
  <style>
    body { margin: 0; padding: 0; width: 100%% !important; background-color: %s; -webkit-font-smoothing: antialiased; }
    table { border-collapse: collapse; }
    img { border: 0; outline: none; text-decoration: none; }
    body, td, p, a, li { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %s; }
    .content-body p { margin: 0 0 24px 0; font-size: 16px; line-height: 1.6; color: #374151; }
    .content-body h1 { color: #111827; font-size: 24px; margin-top: 0; margin-bottom: 20px; font-weight: 700; letter-spacing: -0.025em; }
    .content-body a { color: %s; font-weight: 600; text-decoration: none; }
    .content-body a:hover { text-decoration: underline; }
    .mci-button { display: inline-block; background-color: %s; color: #ffffff !important; padding: 12px 32px; text-decoration: none !important; border-radius: 6px; font-weight: 600; font-size: 15px; text-align: center; margin-top: 10px; margin-bottom: 10px; }
    .footer-text { color: %s; font-size: 13px; line-height: 1.5; }
    @media only screen and (max-width: 600px) { .main-container { width: 100%% !important; } .mobile-p { padding-left: 20px !important; padding-right: 20px !important; } }
  </style>
</head>
<body style="margin: 0; padding: 0; background-color: %s;">
  <table role="presentation" width="100%%" border="0" cellspacing="0" cellpadding="0" style="background-color: %s;">
    <tr>
      <td align="center" style="padding: 40px 0;">
        <table class="main-container" role="presentation" width="600" border="0" cellspacing="0" cellpadding="0" style="width: 600px; background-color: %s; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.05); overflow: hidden;">
          <tr>
            <td align="center" style="padding: 48px 0 32px 0;">
              <a href="https://analytics.wearemci.com" target="_blank" style="font-size: 22px; font-weight: 700; color: %s; text-decoration: none;">MCI Analytics</a>
            </td>
          </tr>
          <tr>
            <td class="content-body mobile-p" style="padding: 0 48px 30px 48px;">%s</td>
          </tr>
          <tr>
            <td class="mobile-p" style="padding: 0 48px 30px 48px;">
              <div style="background-color: #F9FAFB; border-radius: 6px; padding: 16px; text-align: center;">
                <p style="margin: 0; font-size: 14px; color: #4B5563;">Need assistance? Contact us at <a href="mailto:support@wearemci.com" style="color: %s; font-weight: 700; text-decoration: none;">support@wearemci.com</a></p>
              </div>
            </td>
          </tr>
          <tr>
            <td style="padding: 0 48px;"><div style="height: 1px; background-color: #E5E7EB; width: 100%%;"></div></td>
          </tr>
          <tr>
            <td class="mobile-p" align="center" style="padding: 32px 48px 40px 48px; background-color: %s;">
              <p class="footer-text" style="margin: 0 0 10px 0;">© %d MCI. All rights reserved.</p>
              <p class="footer-text" style="margin: 0;">This is a transactional message about your MCI Analytics account.</p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`,
		themeBgBody, themeTextMain, themePrimary, themePrimary, themeTextMuted,
		themeBgBody, themeBgBody, themeWhite, themePrimary, contentHTML, themePrimary,
		themeWhite, year)
}

// EscapeHTML escapes HTML specials for safe interpolation.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
