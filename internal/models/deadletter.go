package models

import "time"

// DeadLetterMessage keeps a request that could not be delivered so an operator can resend it.
// Only IsProcessed and ProcessedAt ever change after creation.
type DeadLetterMessage struct {
	ID            string      `json:"id"`
	RequestID     string      `json:"requestId"`
	OriginalTopic string      `json:"originalTopic"`
	Channel       ChannelType `json:"channelType"`
	Receiver      string      `json:"receiver"`
	Subject       string      `json:"subject"`
	Body          string      `json:"body"`
	Priority      Priority    `json:"priority"`
	ErrorMessage  string      `json:"errorMessage"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"createdAt"`
	IsProcessed   bool        `json:"isProcessed"`
	ProcessedAt   *time.Time  `json:"processedAt,omitempty"`
}
