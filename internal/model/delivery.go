package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// Delivery tracks one listing through assignment, transit and handoff.
// The foreign keys are fixed at creation; listing_id is unique so a listing
// can never be matched twice. The OTP pair is present only between challenge
// generation and consumption.
type Delivery struct {
	Base
	ListingID     uuid.UUID      `json:"listing_id" db:"listing_id"`
	DonorID       uuid.UUID      `json:"donor_id" db:"donor_id"`
	ReceiverID    uuid.UUID      `json:"receiver_id" db:"receiver_id"`
	VolunteerID   uuid.UUID      `json:"volunteer_id" db:"volunteer_id"`
	Status        DeliveryStatus `json:"status" db:"status"`
	OtpCommitment *string        `json:"-" db:"otp_commitment"`
	OtpExpiry     *time.Time     `json:"otp_expiry,omitempty" db:"otp_expiry"`
}

// HasChallenge reports whether an un-consumed OTP challenge is outstanding.
func (d *Delivery) HasChallenge() bool {
	return d.OtpCommitment != nil && d.OtpExpiry != nil
}

type VerifyOtpRequest struct {
	Otp string `json:"otp" binding:"required,otp"`
}

type ChallengeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Expiry  string `json:"expiry"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
