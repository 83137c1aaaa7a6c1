package handoff

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/internal/service/audit"
	deliverysvc "github.com/mealbridge/dispatch-api/internal/service/delivery"
	"github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
	"github.com/mealbridge/dispatch-api/pkg/otp"
)

// Service implements the OTP challenge/response protocol that gates the
// delivered transition. Only the assigned volunteer may open or answer a
// challenge; only a caller holding the receiver-side code can complete it.
// Every attempt lands in the audit trail. The plaintext code is never
// persisted or logged.
type Service struct {
	deliveries repository.DeliveryRepository
	auditor    *audit.Service
	lifecycle  *deliverysvc.Service
	notifier   notifier.Notifier
	validity   time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	deliveries repository.DeliveryRepository,
	auditor *audit.Service,
	lifecycle *deliverysvc.Service,
	notifier notifier.Notifier,
	cfg config.OTPConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		deliveries: deliveries,
		auditor:    auditor,
		lifecycle:  lifecycle,
		notifier:   notifier,
		validity:   cfg.Validity,
		logger:     logger,
		metrics:    metrics,
	}
}

// GenerateChallenge issues a fresh code for the delivery, overwriting any
// prior un-consumed one, and hands the plaintext to the receiver out of
// band. Only the commitment and expiry are stored.
func (s *Service) GenerateChallenge(ctx context.Context, deliveryID, callerID uuid.UUID) (*model.ChallengeResponse, error) {
	d, err := s.authorize(ctx, deliveryID, callerID, model.AuditActionGenerateOtp)
	if err != nil {
		return nil, err
	}

	if d.Status.Terminal() {
		return nil, errors.FailedPrecondition("delivery is already closed")
	}

	code, err := otp.Generate()
	if err != nil {
		return nil, errors.Internal(err)
	}

	expiry := time.Now().Add(s.validity)
	if err := s.deliveries.SetChallenge(ctx, deliveryID, otp.Commit(code), expiry); err != nil {
		return nil, errors.Internal(err)
	}

	s.metrics.OtpChallengesIssued.Inc()
	s.record(ctx, callerID, deliveryID, model.AuditActionGenerateOtp, model.AuditOutcomeSuccess)

	// Out-of-band delivery to the receiver; failure does not fail the
	// challenge.
	note := notifier.Note{
		Title: "Delivery confirmation code",
		Body:  code,
		Data:  map[string]string{"delivery_id": deliveryID.String()},
	}
	if err := s.notifier.Push(ctx, d.ReceiverID.String(), note); err != nil {
		s.logger.Error(err, "Failed to deliver code to receiver",
			"delivery_id", deliveryID.String())
	}

	return &model.ChallengeResponse{
		Success: true,
		Message: "Confirmation code has been generated and sent.",
		Expiry:  expiry.UTC().Format(time.RFC3339),
	}, nil
}

// VerifyResponse checks the submitted code against the outstanding
// challenge and, on match, commits the delivered transition, the commitment
// erasure and the audit entry atomically.
func (s *Service) VerifyResponse(ctx context.Context, deliveryID, callerID uuid.UUID, submitted string) (*model.VerifyResponse, error) {
	d, err := s.authorize(ctx, deliveryID, callerID, model.AuditActionVerifyOtp)
	if err != nil {
		return nil, err
	}

	if d.Status == model.DeliveryStatusDelivered {
		s.verified(ctx, callerID, deliveryID, model.AuditOutcomeRejected)
		return nil, errors.FailedPrecondition("this delivery has already been confirmed")
	}

	if !d.HasChallenge() {
		s.verified(ctx, callerID, deliveryID, model.AuditOutcomeRejected)
		return nil, errors.FailedPrecondition("no confirmation code has been generated for this delivery")
	}

	if time.Now().After(*d.OtpExpiry) {
		// Distinct from a wrong code so the client knows to request a new
		// challenge rather than re-enter.
		s.verified(ctx, callerID, deliveryID, model.AuditOutcomeExpired)
		return nil, errors.FailedPrecondition("the confirmation code has expired, please generate a new one")
	}

	if !otp.Matches(*d.OtpCommitment, submitted) {
		s.verified(ctx, callerID, deliveryID, model.AuditOutcomeMismatch)
		return nil, errors.InvalidArgument("the confirmation code entered is incorrect", nil)
	}

	// The success entry commits inside the same transaction as the status
	// change and commitment erasure.
	entry := audit.NewEntry(callerID, deliveryID, model.AuditActionVerifyOtp, model.AuditOutcomeSuccess, nil)
	if err := s.lifecycle.ConfirmDelivered(ctx, d, entry); err != nil {
		return nil, err
	}

	s.metrics.OtpVerifications.WithLabelValues(model.AuditOutcomeSuccess).Inc()
	return &model.VerifyResponse{
		Success: true,
		Message: "Delivery confirmed successfully!",
	}, nil
}

// authorize runs the shared caller checks for both protocol operations.
func (s *Service) authorize(ctx context.Context, deliveryID, callerID uuid.UUID, action string) (*model.Delivery, error) {
	if callerID == uuid.Nil {
		return nil, errors.Unauthenticated("you must be logged in")
	}

	d, err := s.deliveries.Get(ctx, deliveryID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("delivery", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	if d.VolunteerID != callerID {
		s.record(ctx, callerID, deliveryID, action, model.AuditOutcomeDenied)
		return nil, errors.PermissionDenied("you are not the volunteer assigned to this delivery")
	}
	return d, nil
}

func (s *Service) verified(ctx context.Context, callerID, deliveryID uuid.UUID, outcome string) {
	s.metrics.OtpVerifications.WithLabelValues(outcome).Inc()
	s.record(ctx, callerID, deliveryID, model.AuditActionVerifyOtp, outcome)
}

// record appends a best-effort audit entry for non-commit outcomes.
func (s *Service) record(ctx context.Context, actorID, deliveryID uuid.UUID, action, outcome string) {
	s.auditor.Record(ctx, actorID, deliveryID, action, outcome, nil)
}
