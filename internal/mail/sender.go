// Package mail renders and sends the transactional emails of the auth flows.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"
)

// Template names.
const (
	TemplatePasswordReset = "password_reset"
	TemplateWelcome       = "welcome"
)

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

// Message is a single outbound email. Data is passed to Template.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     any
}

// Sender delivers a Message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordResetData is the data of TemplatePasswordReset.
type PasswordResetData struct {
	FirstName        string
	ResetURL         string
	ExpiresInMinutes int
}

// WelcomeData is the data of TemplateWelcome.
type WelcomeData struct {
	FirstName string
	Email     string
}

// Render executes the named template with data and returns the plain text body.
func Render(name string, data any) (string, error) {
	tmpl := templates.Lookup(name + ".txt")
	if tmpl == nil {
		return "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
