package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// MailAdapter sends plain-text mail through a configured SMTP relay. It
// covers both bucket failure/repair notices and the admin alerts the
// failure envelope sends for operator-context errors.
type MailAdapter struct {
	host     string
	port     int
	username string
	password string
	from     string

	auth smtp.Auth

	// Transport performs the actual delivery; defaults to smtp.SendMail.
	// Tests substitute a stub here to avoid a real SMTP dial, the same way
	// health.HTTPChecker exposes its *http.Client for substitution.
	Transport func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailAdapter builds a MailAdapter that authenticates with PLAIN auth
// against host:port using username/password, sending as from.
func NewMailAdapter(host string, port int, username, password, from string) *MailAdapter {
	return &MailAdapter{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		from:      from,
		auth:      smtp.PlainAuth("", username, password, host),
		Transport: smtp.SendMail,
	}
}

// Send delivers a plain-text message with subject to a single recipient.
func (m *MailAdapter) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	msg := buildMessage(m.from, to, subject, body)
	return m.Transport(addr, m.auth, m.from, []string{to}, []byte(msg))
}

// FailureMessage formats the body for a bucket that just failed.
func FailureMessage(project, bucketName, guiURL string) string {
	return fmt.Sprintf("Bucket %q of project %q failed.\n\nDetails: %s", bucketName, project, guiURL)
}

// FixedMessage formats the body for a bucket that just repaired a
// previously failing predecessor.
func FixedMessage(project, bucketName, guiURL string) string {
	return fmt.Sprintf("Bucket %q of project %q is fixed.\n\nDetails: %s", bucketName, project, guiURL)
}

func buildMessage(from, to, subject, body string) string {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}
