package matching

import (
	"context"
	"errors"
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
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

type fakeDeliveryRepo struct {
	byListing map[uuid.UUID]*model.Delivery
	events    []*model.OutboxEvent
	existsErr error
	createErr error
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{byListing: make(map[uuid.UUID]*model.Delivery)}
}

func (f *fakeDeliveryRepo) Create(_ context.Context, d *model.Delivery, event *model.OutboxEvent) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byListing[d.ListingID]; ok {
		return repository.ErrDuplicateListing
	}
	d.ID = uuid.New()
	f.byListing[d.ListingID] = d
	f.events = append(f.events, event)
	return nil
}

func (f *fakeDeliveryRepo) Get(context.Context, uuid.UUID) (*model.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDeliveryRepo) ExistsForListing(_ context.Context, listingID uuid.UUID) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byListing[listingID]
	return ok, nil
}

func (f *fakeDeliveryRepo) UpdateStatus(context.Context, uuid.UUID, model.DeliveryStatus, model.DeliveryStatus) error {
	return errors.New("not implemented")
}

func (f *fakeDeliveryRepo) SetChallenge(context.Context, uuid.UUID, string, time.Time) error {
	return errors.New("not implemented")
}

func (f *fakeDeliveryRepo) ConfirmDelivered(context.Context, uuid.UUID, *model.AuditLog, *model.OutboxEvent) error {
	return errors.New("not implemented")
}

func (f *fakeDeliveryRepo) ListForVolunteer(context.Context, uuid.UUID) ([]*model.Delivery, error) {
	return nil, errors.New("not implemented")
}

type fakePartyRepo struct {
	receivers  []*model.Receiver
	volunteers []*model.Volunteer
}

func (f *fakePartyRepo) ListVerifiedReceivers(context.Context) ([]*model.Receiver, error) {
	return f.receivers, nil
}

func (f *fakePartyRepo) ListAvailableVolunteers(context.Context) ([]*model.Volunteer, error) {
	return f.volunteers, nil
}

func (f *fakePartyRepo) GetVolunteer(_ context.Context, id uuid.UUID) (*model.Volunteer, error) {
	for _, v := range f.volunteers {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, errors.New("volunteer not found")
}

type fakeNotifier struct {
	pushes []notifier.Note
	err    error
}

func (f *fakeNotifier) Push(_ context.Context, _ string, note notifier.Note) error {
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, note)
	return nil
}

func ptr(v float64) *float64 { return &v }

func str(v string) *string { return &v }

var testMetrics = metrics.NewMetrics("matching_test")

func testService(deliveries *fakeDeliveryRepo, parties *fakePartyRepo, n *fakeNotifier) *Service {
	return NewService(
		deliveries,
		parties,
		n,
		config.MatchingConfig{SearchRadiusKm: 10},
		logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
		testMetrics,
	)
}

func listingEvent() *model.ListingCreatedEvent {
	return &model.ListingCreatedEvent{
		ID:      uuid.New(),
		DonorID: uuid.New(),
		Lat:     ptr(28.61),
		Lng:     ptr(77.21),
		Title:   "Surplus rice and dal",
	}
}

func TestHandleListingCreated_Matched(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	nearReceiver := &model.Receiver{ID: uuid.New(), Lat: 28.62, Lng: 77.20, VerificationStatus: model.ReceiverStatusVerified}
	farReceiver := &model.Receiver{ID: uuid.New(), Lat: 28.70, Lng: 77.30, VerificationStatus: model.ReceiverStatusVerified}
	volunteer := &model.Volunteer{ID: uuid.New(), Lat: 28.60, Lng: 77.22, AvailabilityStatus: model.VolunteerStatusAvailable, DeviceToken: str("token-1")}
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{farReceiver, nearReceiver},
		volunteers: []*model.Volunteer{volunteer},
	}
	n := &fakeNotifier{}

	svc := testService(deliveries, parties, n)
	evt := listingEvent()

	outcome, err := svc.HandleListingCreated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)

	d := deliveries.byListing[evt.ID]
	require.NotNil(t, d)
	assert.Equal(t, nearReceiver.ID, d.ReceiverID)
	assert.Equal(t, volunteer.ID, d.VolunteerID)
	assert.Equal(t, evt.DonorID, d.DonorID)
	assert.Equal(t, model.DeliveryStatusAssigned, d.Status)

	require.Len(t, deliveries.events, 1)
	assert.Equal(t, model.EventDeliveryAssigned, deliveries.events[0].EventType)

	require.Len(t, n.pushes, 1)
	assert.Contains(t, n.pushes[0].Body, "Surplus rice and dal")
}

func TestHandleListingCreated_IdempotentOnReplay(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
		volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22}},
	}
	svc := testService(deliveries, parties, &fakeNotifier{})
	evt := listingEvent()

	outcome, err := svc.HandleListingCreated(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, OutcomeMatched, outcome)

	outcome, err = svc.HandleListingCreated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMatched, outcome)
	assert.Len(t, deliveries.byListing, 1)
	assert.Len(t, deliveries.events, 1)
}

func TestHandleListingCreated_InvalidLocation(t *testing.T) {
	cases := []struct {
		name string
		lat  *float64
		lng  *float64
	}{
		{"missing both", nil, nil},
		{"missing lng", ptr(28.61), nil},
		{"latitude out of range", ptr(91.0), ptr(77.21)},
		{"longitude out of range", ptr(28.61), ptr(181.0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deliveries := newFakeDeliveryRepo()
			parties := &fakePartyRepo{
				receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
				volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22}},
			}
			svc := testService(deliveries, parties, &fakeNotifier{})
			evt := listingEvent()
			evt.Lat, evt.Lng = tc.lat, tc.lng

			outcome, err := svc.HandleListingCreated(context.Background(), evt)
			require.NoError(t, err)
			assert.Equal(t, OutcomeInvalidLocation, outcome)
			assert.Empty(t, deliveries.byListing)
		})
	}
}

func TestHandleListingCreated_NoReceiverWithinRadius(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	parties := &fakePartyRepo{
		// Mumbai, far outside a 10km radius around Delhi.
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 19.07, Lng: 72.87}},
		volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22}},
	}
	svc := testService(deliveries, parties, &fakeNotifier{})

	outcome, err := svc.HandleListingCreated(context.Background(), listingEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReceiver, outcome)
	assert.Empty(t, deliveries.byListing)
}

func TestHandleListingCreated_NoVolunteer(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	parties := &fakePartyRepo{
		receivers: []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
	}
	svc := testService(deliveries, parties, &fakeNotifier{})

	outcome, err := svc.HandleListingCreated(context.Background(), listingEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoVolunteer, outcome)
	assert.Empty(t, deliveries.byListing)
}

func TestHandleListingCreated_VolunteerMatchedWithoutRadiusCap(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	// Only volunteer is hundreds of km away; the match still happens.
	farVolunteer := &model.Volunteer{ID: uuid.New(), Lat: 19.07, Lng: 72.87}
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
		volunteers: []*model.Volunteer{farVolunteer},
	}
	svc := testService(deliveries, parties, &fakeNotifier{})
	evt := listingEvent()

	outcome, err := svc.HandleListingCreated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)
	assert.Equal(t, farVolunteer.ID, deliveries.byListing[evt.ID].VolunteerID)
}

func TestHandleListingCreated_NotifyFailureDoesNotFailMatch(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
		volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22, DeviceToken: str("token-1")}},
	}
	svc := testService(deliveries, parties, &fakeNotifier{err: errors.New("push gateway down")})
	evt := listingEvent()

	outcome, err := svc.HandleListingCreated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)
	assert.NotNil(t, deliveries.byListing[evt.ID])
}

func TestHandleListingCreated_NoDeviceTokenSkipsNotification(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
		volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22}},
	}
	n := &fakeNotifier{}
	svc := testService(deliveries, parties, n)

	outcome, err := svc.HandleListingCreated(context.Background(), listingEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)
	assert.Empty(t, n.pushes)
}

func TestHandleListingCreated_LostCreationRace(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	deliveries.createErr = repository.ErrDuplicateListing
	parties := &fakePartyRepo{
		receivers:  []*model.Receiver{{ID: uuid.New(), Lat: 28.62, Lng: 77.20}},
		volunteers: []*model.Volunteer{{ID: uuid.New(), Lat: 28.60, Lng: 77.22}},
	}
	svc := testService(deliveries, parties, &fakeNotifier{})

	outcome, err := svc.HandleListingCreated(context.Background(), listingEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMatched, outcome)
}

func TestHandleListingCreated_TransientStoreErrorSurfaces(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	deliveries.existsErr = errors.New("connection reset")
	svc := testService(deliveries, &fakePartyRepo{}, &fakeNotifier{})

	_, err := svc.HandleListingCreated(context.Background(), listingEvent())
	assert.Error(t, err)
}
