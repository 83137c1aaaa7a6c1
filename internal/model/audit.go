package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of a handoff-protocol or lifecycle
// action. Every OTP verification attempt lands here, success or failure;
// the plaintext code never does.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	DeliveryID uuid.UUID       `json:"delivery_id" db:"delivery_id"`
	Action     string          `json:"action" db:"action"`
	Outcome    string          `json:"outcome" db:"outcome"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionGenerateOtp = "otp.generate"
	AuditActionVerifyOtp   = "otp.verify"
	AuditActionPickup      = "delivery.pickup"
	AuditActionCancel      = "delivery.cancel"

	// Outcomes
	AuditOutcomeSuccess  = "success"
	AuditOutcomeDenied   = "denied"
	AuditOutcomeExpired  = "expired"
	AuditOutcomeMismatch = "mismatch"
	AuditOutcomeRejected = "rejected"
)
