package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders notification urgency. Lower values are dequeued first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityCritical: "Critical",
	PriorityHigh:     "High",
	PriorityNormal:   "Normal",
	PriorityLow:      "Low",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// Priorities lists every priority from most to least urgent.
func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// ChannelType names a delivery channel.
type ChannelType string

const (
	ChannelEmail    ChannelType = "email"
	ChannelTelegram ChannelType = "telegram"
	ChannelWebPush  ChannelType = "webpush"
	ChannelSMS      ChannelType = "sms"
)

// ChannelTypes lists the channels the service knows how to address.
func ChannelTypes() []ChannelType {
	return []ChannelType{ChannelEmail, ChannelTelegram, ChannelWebPush, ChannelSMS}
}

// ParseChannelType normalizes a channel name. Unknown names are an error.
func ParseChannelType(raw string) (ChannelType, error) {
	candidate := ChannelType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ChannelTypes() {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown notification type %q", raw)
}

// Delivery lifecycle states.
const (
	StatusCreated      = "created"
	StatusQueued       = "queued"
	StatusDispatched   = "dispatched"
	StatusDelivered    = "delivered"
	StatusDeadLettered = "dead_lettered"
)

// Source of requests created through the control API.
const SourceAPI = "api"

// NotificationRequest is one message to one recipient over one channel.
type NotificationRequest struct {
	ID                 string            `json:"id"`
	Recipient          string            `json:"recipient"`
	Channel            ChannelType       `json:"channelType"`
	Subject            string            `json:"subject"`
	Body               string            `json:"body"`
	Priority           Priority          `json:"priority"`
	TemplateName       string            `json:"templateName,omitempty"`
	TemplateParameters map[string]string `json:"templateParameters,omitempty"`
	Source             string            `json:"source"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// Validate enforces the single-recipient single-channel invariant.
func (r NotificationRequest) Validate() error {
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if _, err := ParseChannelType(string(r.Channel)); err != nil {
		return err
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("invalid priority %d", int(r.Priority))
	}
	if r.TemplateName == "" && strings.TrimSpace(r.Subject) == "" && strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("subject or body is required when no template is named")
	}
	return nil
}

// Envelope is the wire format of a notification request on the stream and the API.
type Envelope struct {
	Type               string            `json:"type"`
	Recipient          string            `json:"recipient"`
	Subject            string            `json:"subject"`
	Body               string            `json:"body"`
	Priority           *int              `json:"priority,omitempty"`
	TemplateName       string            `json:"templateName,omitempty"`
	TemplateParameters map[string]string `json:"templateParameters,omitempty"`
}

// RequestPriority is the envelope priority, Normal when the field is absent.
func (e Envelope) RequestPriority() Priority {
	if e.Priority == nil {
		return PriorityNormal
	}
	return Priority(*e.Priority)
}

// ToRequest converts the envelope and validates the result.
func (e Envelope) ToRequest(source string) (NotificationRequest, error) {
	channel, err := ParseChannelType(e.Type)
	if err != nil {
		return NotificationRequest{}, err
	}
	req := NotificationRequest{
		Recipient:          strings.TrimSpace(e.Recipient),
		Channel:            channel,
		Subject:            e.Subject,
		Body:               e.Body,
		Priority:           e.RequestPriority(),
		TemplateName:       strings.TrimSpace(e.TemplateName),
		TemplateParameters: e.TemplateParameters,
		Source:             source,
	}
	if err := req.Validate(); err != nil {
		return NotificationRequest{}, err
	}
	return req, nil
}

// Template is a stored subject/body pair with {key} placeholders.
type Template struct {
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}
