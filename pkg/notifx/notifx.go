package notifx

import (
	"bytes"
	"context"
	"html/template"
	"sync"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Client sends notifications through a provider. Templates are parsed once
// at registration and rendered per send; registration and rendering may run
// concurrently.
type Client struct {
	provider  EmailSender
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewClient creates a new notification client.
func NewClient(provider EmailSender) *Client {
	return &Client{
		provider:  provider,
		templates: make(map[string]*template.Template),
	}
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	return c.provider.SendEmail(ctx, msg)
}

// RegisterTemplate parses and stores a named html/template for later use.
// Re-registering a name replaces the previous template.
func (c *Client) RegisterTemplate(name, tmplString string) error {
	t, err := template.New(name).Parse(tmplString)
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}

	c.mu.Lock()
	c.templates[name] = t
	c.mu.Unlock()

	return nil
}

// SendTemplatedEmail renders a registered template into the HTML body and
// sends the resulting email.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data interface{}, msg EmailMessage) error {
	body, err := c.render(templateName, data)
	if err != nil {
		return err
	}

	msg.HTMLBody = body
	return c.SendEmail(ctx, msg)
}

func (c *Client) render(name string, data interface{}) (string, error) {
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()

	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}

	return buf.String(), nil
}
