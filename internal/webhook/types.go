package webhook

import (
	"time"

	"github.com/TimurManjosov/safetygate/internal/audit"
)

// EventEscalation is sent when an evaluation blocks a patient and a reviewer
// needs to call or follow up.
const EventEscalation = "safety.escalation"

// Event is the JSON body posted to the reviewer endpoint.
type Event struct {
	Type       string      `json:"event"`
	DeliveryID string      `json:"deliveryId"`
	Timestamp  time.Time   `json:"timestamp"`
	Evaluation audit.Event `json:"evaluation"`
}
