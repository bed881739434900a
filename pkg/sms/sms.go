package sms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrInvalidNumber marks a recipient that is not in E.164 form.
var ErrInvalidNumber = errors.New("invalid phone number")

// Client sends SMS through Twilio.
type Client struct {
	rest       *twilio.RestClient
	fromNumber string
}

func NewClient(accountSID, authToken, fromNumber string) *Client {
	return &Client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		fromNumber: fromNumber,
	}
}

func ValidateNumber(toNumber string) error {
	if !strings.HasPrefix(toNumber, "+") || len(toNumber) < 8 {
		return fmt.Errorf("%w: %s", ErrInvalidNumber, toNumber)
	}
	for _, r := range toNumber[1:] {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %s", ErrInvalidNumber, toNumber)
		}
	}
	return nil
}

func (c *Client) Send(toNumber, body string) error {
	if err := ValidateNumber(toNumber); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	if _, err := c.rest.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", toNumber, err)
	}
	return nil
}

// IsRejected reports whether Twilio refused the request itself, as opposed to
// a transport or server failure worth retrying.
func IsRejected(err error) bool {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status >= 400 && restErr.Status < 500 && restErr.Status != 429
	}
	return false
}
