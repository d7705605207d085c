// Package broadcast delivers spend alerts to the general-audience
// channels: a Slack webhook and a generic signed webhook standing in for
// the pub/sub topic.
package broadcast

import (
	"context"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// Message is one spend alert bound for the broadcast channel.
type Message struct {
	Level        model.AlertLevel `json:"level"`
	Subject      string           `json:"subject"`
	Body         string           `json:"body"`
	TotalUSD     float64          `json:"total_usd"`
	ThresholdUSD float64          `json:"threshold_usd"`
	ExceedUSD    float64          `json:"exceed_usd"`
	AlertID      string           `json:"alert_id"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Notifier publishes alert messages to one external system.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers a message. Implementations must be safe for
	// concurrent use.
	Send(ctx context.Context, msg Message) error
}
