package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"ghstats/config"
)

const (
	emailSubject  = "GitHub repository stats run"
	mailSendPath  = "/v3/mail/send"
	defaultSGHost = "https://api.sendgrid.com"
)

type SendGridNotifier struct {
	host   string
	apiKey string
	from   *mail.Email
	to     []*mail.Email
	client *rest.Client
}

func NewSendGridNotifier(cfg *config.EmailConfig, client *http.Client) *SendGridNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	host := cfg.SendGridHost
	if host == "" {
		host = defaultSGHost
	}

	var to []*mail.Email
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, mail.NewEmail("", addr))
		}
	}
	return &SendGridNotifier{
		host:   strings.TrimRight(host, "/"),
		apiKey: cfg.APIKey,
		from:   mail.NewEmail("", cfg.From),
		to:     to,
		client: &rest.Client{HTTPClient: client},
	}
}

// message builds one email to every recipient with a plain-text alternative.
func (n *SendGridNotifier) message(html string) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(n.from)
	m.Subject = emailSubject

	p := mail.NewPersonalization()
	p.AddTos(n.to...)
	m.AddPersonalizations(p)

	m.AddContent(
		mail.NewContent("text/plain", PlainText(html)),
		mail.NewContent("text/html", html),
	)
	return m
}

func (n *SendGridNotifier) Notify(ctx context.Context, html string) error {
	req := sendgrid.GetRequest(n.apiKey, mailSendPath, n.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(n.message(html))

	resp, err := n.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid error %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogNotifier writes notifications to the log when email is disabled.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, html string) error {
	log.Printf("Notification: %s", strings.ReplaceAll(PlainText(html), "\n", " | "))
	return nil
}
