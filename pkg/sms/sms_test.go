package sms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	twilioclient "github.com/twilio/twilio-go/client"
)

func TestValidateNumber(t *testing.T) {
	assert.NoError(t, ValidateNumber("+84901234567"))
	for _, bad := range []string{"0901234567", "+84 90 123", "+12", ""} {
		assert.ErrorIs(t, ValidateNumber(bad), ErrInvalidNumber, bad)
	}
}

func TestIsRejected(t *testing.T) {
	wrap := func(status int) error {
		return fmt.Errorf("failed to send SMS: %w", &twilioclient.TwilioRestError{Status: status})
	}
	assert.True(t, IsRejected(wrap(400)))
	assert.False(t, IsRejected(wrap(429)))
	assert.False(t, IsRejected(wrap(503)))
	assert.False(t, IsRejected(errors.New("dial tcp: timeout")))
}
