package handoff

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/internal/service/audit"
	deliverysvc "github.com/mealbridge/dispatch-api/internal/service/delivery"
	apperrors "github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
	"github.com/mealbridge/dispatch-api/pkg/otp"
)

type memDeliveryRepo struct {
	byID map[uuid.UUID]*model.Delivery
}

func newMemDeliveryRepo(deliveries ...*model.Delivery) *memDeliveryRepo {
	r := &memDeliveryRepo{byID: make(map[uuid.UUID]*model.Delivery)}
	for _, d := range deliveries {
		r.byID[d.ID] = d
	}
	return r
}

func (r *memDeliveryRepo) Create(_ context.Context, d *model.Delivery, _ *model.OutboxEvent) error {
	r.byID[d.ID] = d
	return nil
}

func (r *memDeliveryRepo) Get(_ context.Context, id uuid.UUID) (*model.Delivery, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *d
	return &copied, nil
}

func (r *memDeliveryRepo) ExistsForListing(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (r *memDeliveryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.DeliveryStatus) error {
	d, ok := r.byID[id]
	if !ok || d.Status != from {
		return repository.ErrStaleStatus
	}
	d.Status = to
	return nil
}

func (r *memDeliveryRepo) SetChallenge(_ context.Context, id uuid.UUID, commitment string, expiry time.Time) error {
	d, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.OtpCommitment = &commitment
	d.OtpExpiry = &expiry
	return nil
}

func (r *memDeliveryRepo) ConfirmDelivered(_ context.Context, id uuid.UUID, _ *model.AuditLog, _ *model.OutboxEvent) error {
	d, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	if d.Status != model.DeliveryStatusAssigned && d.Status != model.DeliveryStatusInTransit {
		return repository.ErrStaleStatus
	}
	d.Status = model.DeliveryStatusDelivered
	d.OtpCommitment = nil
	d.OtpExpiry = nil
	return nil
}

func (r *memDeliveryRepo) ListForVolunteer(context.Context, uuid.UUID) ([]*model.Delivery, error) {
	return nil, nil
}

type memAuditRepo struct {
	entries []*model.AuditLog
}

func (r *memAuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) ListForDelivery(context.Context, uuid.UUID) ([]*model.AuditLog, error) {
	return r.entries, nil
}

func (r *memAuditRepo) lastOutcome() string {
	if len(r.entries) == 0 {
		return ""
	}
	return r.entries[len(r.entries)-1].Outcome
}

type memOutboxRepo struct{}

func (memOutboxRepo) Create(context.Context, *model.OutboxEvent) error { return nil }
func (memOutboxRepo) GetPendingEventsWithLock(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}
func (memOutboxRepo) UpdateStatus(context.Context, uuid.UUID, model.OutboxStatus, *string) error {
	return nil
}
func (memOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// capturingNotifier records the plaintext codes pushed to receivers.
type capturingNotifier struct {
	targets []string
	codes   []string
}

func (n *capturingNotifier) Push(_ context.Context, target string, note notifier.Note) error {
	n.targets = append(n.targets, target)
	n.codes = append(n.codes, note.Body)
	return nil
}

var testMetrics = metrics.NewMetrics("handoff_test")

type fixture struct {
	svc    *Service
	repo   *memDeliveryRepo
	audits *memAuditRepo
	pushes *capturingNotifier
}

func newFixture(deliveries ...*model.Delivery) *fixture {
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	repo := newMemDeliveryRepo(deliveries...)
	audits := &memAuditRepo{}
	auditor := audit.NewService(audits, log)
	pushes := &capturingNotifier{}
	lifecycle := deliverysvc.NewService(repo, memOutboxRepo{}, auditor, log)
	svc := NewService(repo, auditor, lifecycle, pushes, config.OTPConfig{Validity: 10 * time.Minute}, log, testMetrics)
	return &fixture{svc: svc, repo: repo, audits: audits, pushes: pushes}
}

func newDelivery(status model.DeliveryStatus) *model.Delivery {
	return &model.Delivery{
		Base:        model.Base{ID: uuid.New()},
		ListingID:   uuid.New(),
		DonorID:     uuid.New(),
		ReceiverID:  uuid.New(),
		VolunteerID: uuid.New(),
		Status:      status,
	}
}

func TestGenerateChallenge(t *testing.T) {
	t.Run("issues code to receiver and stores only the commitment", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)

		resp, err := f.svc.GenerateChallenge(context.Background(), d.ID, d.VolunteerID)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Expiry)

		stored := f.repo.byID[d.ID]
		require.True(t, stored.HasChallenge())

		require.Len(t, f.pushes.codes, 1)
		code := f.pushes.codes[0]
		assert.Len(t, code, 6)
		assert.Equal(t, d.ReceiverID.String(), f.pushes.targets[0])
		// The store holds the commitment, never the plaintext.
		assert.NotEqual(t, code, *stored.OtpCommitment)
		assert.True(t, otp.Matches(*stored.OtpCommitment, code))

		assert.Equal(t, model.AuditOutcomeSuccess, f.audits.lastOutcome())
	})

	t.Run("regeneration invalidates the previous code", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)

		_, err := f.svc.GenerateChallenge(context.Background(), d.ID, d.VolunteerID)
		require.NoError(t, err)
		first := f.pushes.codes[0]

		_, err = f.svc.GenerateChallenge(context.Background(), d.ID, d.VolunteerID)
		require.NoError(t, err)
		second := f.pushes.codes[1]

		stored := f.repo.byID[d.ID]
		assert.True(t, otp.Matches(*stored.OtpCommitment, second))
		if first != second {
			assert.False(t, otp.Matches(*stored.OtpCommitment, first))
		}
	})

	t.Run("only the assigned volunteer", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)

		_, err := f.svc.GenerateChallenge(context.Background(), d.ID, d.ReceiverID)
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
		assert.Equal(t, model.AuditOutcomeDenied, f.audits.lastOutcome())
	})

	t.Run("closed delivery rejected", func(t *testing.T) {
		for _, status := range []model.DeliveryStatus{
			model.DeliveryStatusDelivered,
			model.DeliveryStatusCancelled,
		} {
			d := newDelivery(status)
			f := newFixture(d)

			_, err := f.svc.GenerateChallenge(context.Background(), d.ID, d.VolunteerID)
			assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err), "status %s", status)
		}
	})

	t.Run("anonymous and unknown", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)

		_, err := f.svc.GenerateChallenge(context.Background(), d.ID, uuid.Nil)
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))

		_, err = f.svc.GenerateChallenge(context.Background(), uuid.New(), d.VolunteerID)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestVerifyResponse(t *testing.T) {
	issue := func(t *testing.T, f *fixture, d *model.Delivery) string {
		t.Helper()
		_, err := f.svc.GenerateChallenge(context.Background(), d.ID, d.VolunteerID)
		require.NoError(t, err)
		return f.pushes.codes[len(f.pushes.codes)-1]
	}

	t.Run("correct code confirms and clears the challenge", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)
		code := issue(t, f, d)

		resp, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, code)
		require.NoError(t, err)
		assert.True(t, resp.Success)

		stored := f.repo.byID[d.ID]
		assert.Equal(t, model.DeliveryStatusDelivered, stored.Status)
		assert.False(t, stored.HasChallenge())
	})

	t.Run("confirmable straight from assigned", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusAssigned)
		f := newFixture(d)
		code := issue(t, f, d)

		_, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, code)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusDelivered, f.repo.byID[d.ID].Status)
	})

	t.Run("wrong code", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)
		code := issue(t, f, d)

		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		_, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, wrong)
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
		assert.Equal(t, model.AuditOutcomeMismatch, f.audits.lastOutcome())
		// The challenge survives a failed attempt.
		assert.True(t, f.repo.byID[d.ID].HasChallenge())
	})

	t.Run("expired code", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)
		code := issue(t, f, d)

		past := time.Now().Add(-time.Minute)
		f.repo.byID[d.ID].OtpExpiry = &past

		_, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, code)
		assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
		assert.Equal(t, model.AuditOutcomeExpired, f.audits.lastOutcome())
	})

	t.Run("no challenge outstanding", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)

		_, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, "123456")
		assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
		assert.Equal(t, model.AuditOutcomeRejected, f.audits.lastOutcome())
	})

	t.Run("double confirmation rejected", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)
		code := issue(t, f, d)

		_, err := f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, code)
		require.NoError(t, err)

		_, err = f.svc.VerifyResponse(context.Background(), d.ID, d.VolunteerID, code)
		assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
	})

	t.Run("only the assigned volunteer", func(t *testing.T) {
		d := newDelivery(model.DeliveryStatusInTransit)
		f := newFixture(d)
		code := issue(t, f, d)

		_, err := f.svc.VerifyResponse(context.Background(), d.ID, uuid.New(), code)
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
		assert.Equal(t, model.AuditOutcomeDenied, f.audits.lastOutcome())
		assert.NotEqual(t, model.DeliveryStatusDelivered, f.repo.byID[d.ID].Status)
	})
}
