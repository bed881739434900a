package email

import (
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Client sends plain-text mail through one SMTP relay.
type Client struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string

	send SendFunc
	now  func() time.Time
}

func NewClient(server string, port int, username, password, fromName string) *Client {
	return &Client{
		Server:   server,
		Port:     port,
		Username: username,
		Password: password,
		FromName: fromName,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

// WithSendFunc replaces the SMTP transport, mainly for tests.
func (c *Client) WithSendFunc(fn SendFunc) *Client {
	c.send = fn
	return c
}

// ValidateAddress reports whether to is a single usable mailbox.
func ValidateAddress(to string) error {
	addr, err := mail.ParseAddress(to)
	if err != nil || !strings.Contains(addr.Address, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}
	return nil
}

func (c *Client) Send(to, subject, body string) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}
	from := (&mail.Address{Name: c.FromName, Address: c.Username}).String()
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + c.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n")

	var auth smtp.Auth
	if c.Username != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Server)
	}
	addr := fmt.Sprintf("%s:%d", c.Server, c.Port)
	return c.send(addr, auth, c.Username, []string{to}, msg)
}
