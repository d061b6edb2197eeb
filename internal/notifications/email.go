package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/lasko44/geosource-sub001/internal/models"
	"gopkg.in/gomail.v2"
)

// mailSender is satisfied by *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends digests over SMTP
type EmailChannel struct {
	from   string
	to     string
	sender mailSender
}

// NewEmailChannel creates a new SMTP channel
func NewEmailChannel(host string, port int, username, password, to string) *EmailChannel {
	return &EmailChannel{
		from:   username,
		to:     to,
		sender: gomail.NewDialer(host, port, username, password),
	}
}

func (e *EmailChannel) Name() string {
	return "email"
}

func (e *EmailChannel) Send(ctx context.Context, digest *Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := e.buildMessage(digest)
	if err != nil {
		return err
	}

	if err := e.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailChannel) buildMessage(digest *Digest) (*gomail.Message, error) {
	gained, lost := digest.Counts()
	subject := fmt.Sprintf("Citation changes: %d new, %d lost", gained, lost)

	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(digest))
	m.AddAlternative("text/html", htmlBody)
	return m, nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"lost": func(t models.AlertType) bool { return t == models.AlertLostCitation },
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Citation changes</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .alert { border-left: 4px solid #107c10; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .lost { border-left-color: #d13438; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Citation changes</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>
    {{range .Items}}
    <div class="alert{{if lost .Alert.Type}} lost{{end}}">
        <div><strong>{{.Alert.Message}}</strong></div>
        <div class="meta">{{.Alert.Platform}} | {{.Domain}} | {{.Alert.CreatedAt.Format "Jan 2, 2006 15:04"}}</div>
    </div>
    {{end}}
</body>
</html>
`))

func buildEmailHTML(digest *Digest) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(digest *Digest) string {
	var text strings.Builder

	gained, lost := digest.Counts()
	text.WriteString("CITATION CHANGES\n")
	text.WriteString("================\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(fmt.Sprintf("New citations: %d | Lost citations: %d\n", gained, lost))

	for i, item := range digest.Items {
		text.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, item.Alert.Message))
		text.WriteString(fmt.Sprintf("   Platform: %s | Domain: %s | Date: %s\n",
			item.Alert.Platform, item.Domain, item.Alert.CreatedAt.Format("Jan 2, 2006 15:04")))
	}

	return text.String()
}
