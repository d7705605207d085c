package model

import (
	"encoding/json"
	"fmt"
)

// MaxPayloadBytes is the hard limit the push provider places on a
// serialized notification payload.
const MaxPayloadBytes = 4096

// APSAlert is the visible alert portion of a push payload.
type APSAlert struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Subtitle string `json:"subtitle,omitempty"`
}

// APS is the platform-reserved portion of a push payload.
type APS struct {
	Alert            APSAlert `json:"alert"`
	Badge            int      `json:"badge"`
	Sound            string   `json:"sound"`
	ContentAvailable int      `json:"content-available"`
}

// PayloadCustomData carries the alert's numeric context alongside the
// visible notification.
type PayloadCustomData struct {
	SpendAmount  float64 `json:"spendAmount"`
	Threshold    float64 `json:"threshold"`
	ExceedAmount float64 `json:"exceedAmount"`
	TopService   string  `json:"topService"`
	AlertID      string  `json:"alertId"`
}

// NotificationPayload is the wire format sent to a platform endpoint.
type NotificationPayload struct {
	APS        APS               `json:"aps"`
	CustomData PayloadCustomData `json:"customData"`
}

// Marshal serializes the payload and enforces the provider size limit.
// An oversized payload is a ValidationError, never truncated.
func (p *NotificationPayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}
	if len(data) > MaxPayloadBytes {
		return nil, NewValidationError(fmt.Sprintf(
			"push payload is %d bytes, limit is %d", len(data), MaxPayloadBytes))
	}
	return data, nil
}
