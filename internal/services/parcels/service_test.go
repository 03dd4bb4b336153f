package parcels

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xIfe3/swipline/internal/apperrors"
	"github.com/xIfe3/swipline/internal/broker/messages"
	"github.com/xIfe3/swipline/internal/models"
	"github.com/xIfe3/swipline/internal/rates"
	"github.com/xIfe3/swipline/internal/storage/pgparcels"
	"github.com/xIfe3/swipline/internal/trackid"
)

type fakeRepo struct {
	parcels map[string]*models.Parcel // по tracking id

	createErrs []error // очередь ошибок для CreateParcel
	created    []*models.Parcel
	createDesc string

	history  []*models.TrackingHistory
	payments []*models.Payment

	applyUpds []pgparcels.LocationUpdate
	applyErrs []error

	// что "увидит" следующий Get после успешного апдейта
	afterApply *models.Parcel
}

func (f *fakeRepo) CreateParcel(ctx context.Context, p *models.Parcel, description string) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	f.createDesc = description
	cp := *p
	f.created = append(f.created, &cp)
	if f.parcels == nil {
		f.parcels = map[string]*models.Parcel{}
	}
	f.parcels[p.TrackingID] = &cp
	return nil
}

func (f *fakeRepo) GetParcelByTrackingID(ctx context.Context, trackingID string) (*models.Parcel, error) {
	p, ok := f.parcels[trackingID]
	if !ok {
		return nil, pgparcels.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, parcelID string, limit, offset int) ([]*models.TrackingHistory, error) {
	return f.history, nil
}

func (f *fakeRepo) ApplyLocationUpdate(ctx context.Context, upd pgparcels.LocationUpdate) error {
	f.applyUpds = append(f.applyUpds, upd)
	if len(f.applyErrs) > 0 {
		err := f.applyErrs[0]
		f.applyErrs = f.applyErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.afterApply != nil {
		f.parcels[f.afterApply.TrackingID] = f.afterApply
	}
	return nil
}

func (f *fakeRepo) ListPaymentsByParcel(ctx context.Context, parcelID string) ([]*models.Payment, error) {
	return f.payments, nil
}

type fakeCache struct {
	m map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

type fakeProducer struct {
	topics []string
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func validInput() models.ParcelCreateInput {
	return models.ParcelCreateInput{
		SenderName:         "Ada Obi",
		SenderEmail:        "ada@example.com",
		RecipientName:      "John Smith",
		RecipientEmail:     "john@example.com",
		RecipientAddress:   "12 Baker St, London",
		DestinationCountry: "UK",
		Weight:             2,
		Dimensions:         models.Dimensions{Length: 30, Width: 20, Height: 10, Unit: "cm"},
		Contents:           []models.ContentItem{{Description: "Books", Quantity: 3, Value: 45}},
	}
}

func newTestService(repo *fakeRepo, c *fakeCache, prod *fakeProducer) *Service {
	calc := rates.NewCalculator(rates.DefaultConfig())
	var p Producer
	if prod != nil {
		p = prod
	}
	if c == nil {
		return New(repo, calc, trackid.NewGenerator(), nil, 0, p, "parcel.events", nil)
	}
	return New(repo, calc, trackid.NewGenerator(), c, 5*time.Minute, p, "parcel.events", nil)
}

func TestCreateParcel_ComputesRatesAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	prod := &fakeProducer{}
	svc := newTestService(repo, nil, prod)

	p, err := svc.CreateParcel(context.Background(), validInput())
	require.NoError(t, err)

	require.True(t, trackid.Valid(p.TrackingID))
	require.Equal(t, models.StatusPending, p.Status)
	require.Equal(t, "Warehouse - Origin", p.CurrentLocation)
	require.InDelta(t, 18.2, p.ShippingCost, 0.0001) // (10+2*2)*1.3
	require.InDelta(t, 30.0, p.BorderFee, 0.0001)
	require.NotNil(t, p.EstimatedDelivery)
	require.Equal(t, "Parcel registered in system", repo.createDesc)

	require.Len(t, prod.values, 1)
	var ev messages.ParcelEvent
	require.NoError(t, json.Unmarshal(prod.values[0], &ev))
	require.Equal(t, messages.KindParcelCreated, ev.Kind)
	require.Equal(t, p.TrackingID, ev.Parcel.TrackingID)
}

func TestCreateParcel_RetriesOnTrackingIDCollision(t *testing.T) {
	repo := &fakeRepo{createErrs: []error{pgparcels.ErrTrackingIDTaken, pgparcels.ErrTrackingIDTaken, nil}}
	svc := newTestService(repo, nil, nil)

	p, err := svc.CreateParcel(context.Background(), validInput())
	require.NoError(t, err)
	require.True(t, trackid.Valid(p.TrackingID))
	require.Len(t, repo.created, 1)
}

func TestCreateParcel_Validation(t *testing.T) {
	svc := newTestService(&fakeRepo{}, nil, nil)

	cases := []struct {
		name string
		mut  func(*models.ParcelCreateInput)
	}{
		{"empty sender name", func(in *models.ParcelCreateInput) { in.SenderName = "  " }},
		{"bad sender email", func(in *models.ParcelCreateInput) { in.SenderEmail = "not-an-email" }},
		{"bad recipient email", func(in *models.ParcelCreateInput) { in.RecipientEmail = "a@b" }},
		{"empty address", func(in *models.ParcelCreateInput) { in.RecipientAddress = "" }},
		{"empty country", func(in *models.ParcelCreateInput) { in.DestinationCountry = "" }},
		{"weight too small", func(in *models.ParcelCreateInput) { in.Weight = 0.05 }},
		{"weight too big", func(in *models.ParcelCreateInput) { in.Weight = 100.5 }},
		{"zero dimension", func(in *models.ParcelCreateInput) { in.Dimensions.Height = 0 }},
		{"bad unit", func(in *models.ParcelCreateInput) { in.Dimensions.Unit = "ft" }},
		{"no contents", func(in *models.ParcelCreateInput) { in.Contents = nil }},
		{"zero quantity", func(in *models.ParcelCreateInput) { in.Contents[0].Quantity = 0 }},
		{"negative value", func(in *models.ParcelCreateInput) { in.Contents[0].Value = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mut(&in)
			_, err := svc.CreateParcel(context.Background(), in)
			require.Error(t, err)
			require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		})
	}
}

func TestCreateParcel_WeightBoundsInclusive(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, nil, nil)

	for _, w := range []float64{0.1, 100} {
		in := validInput()
		in.Weight = w
		_, err := svc.CreateParcel(context.Background(), in)
		require.NoError(t, err)
	}
}

func seedParcel(repo *fakeRepo, status string, version int64) *models.Parcel {
	p := &models.Parcel{
		ID:                 "11111111-2222-3333-4444-555555555555",
		TrackingID:         "SWPL250301ABC123",
		SenderName:         "Ada Obi",
		SenderEmail:        "ada@example.com",
		RecipientName:      "John Smith",
		RecipientEmail:     "john@example.com",
		RecipientAddress:   "12 Baker St",
		DestinationCountry: "UK",
		Status:             status,
		CurrentLocation:    "Lagos Hub",
		Version:            version,
	}
	if repo.parcels == nil {
		repo.parcels = map[string]*models.Parcel{}
	}
	repo.parcels[p.TrackingID] = p
	return p
}

func TestUpdateLocation_HappyPathPublishesNotable(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusInTransit, 3)
	after := *p
	after.Status = models.StatusAtBorder
	after.CurrentLocation = "Dover Border Control"
	after.Version = 4
	repo.afterApply = &after

	prod := &fakeProducer{}
	svc := newTestService(repo, nil, prod)

	got, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
		Status:   models.StatusAtBorder,
		Location: "Dover Border Control",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusAtBorder, got.Status)

	require.Len(t, repo.applyUpds, 1)
	require.Equal(t, int64(3), repo.applyUpds[0].Version)

	require.Len(t, prod.values, 1)
	var ev messages.ParcelEvent
	require.NoError(t, json.Unmarshal(prod.values[0], &ev))
	require.Equal(t, messages.KindParcelStatusChanged, ev.Kind)
	require.Equal(t, models.StatusAtBorder, ev.NewStatus)
}

func TestUpdateLocation_QuietStatusNotPublished(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusPending, 0)
	after := *p
	after.Status = models.StatusCollected
	after.Version = 1
	repo.afterApply = &after

	prod := &fakeProducer{}
	svc := newTestService(repo, nil, prod)

	_, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
		Status:   models.StatusCollected,
		Location: "Lagos Hub",
	})
	require.NoError(t, err)
	require.Empty(t, prod.values)
}

func TestUpdateLocation_RetriesVersionConflict(t *testing.T) {
	repo := &fakeRepo{applyErrs: []error{pgparcels.ErrVersionConflict, nil}}
	p := seedParcel(repo, models.StatusInTransit, 1)
	after := *p
	after.Status = models.StatusAtBorder
	after.Version = 2
	repo.afterApply = &after

	svc := newTestService(repo, nil, nil)
	_, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
		Status:   models.StatusAtBorder,
		Location: "Border",
	})
	require.NoError(t, err)
	require.Len(t, repo.applyUpds, 2)
}

func TestUpdateLocation_GivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := &fakeRepo{applyErrs: []error{
		pgparcels.ErrVersionConflict, pgparcels.ErrVersionConflict, pgparcels.ErrVersionConflict,
	}}
	seedParcel(repo, models.StatusInTransit, 1)

	svc := newTestService(repo, nil, nil)
	_, err := svc.UpdateLocation(context.Background(), "SWPL250301ABC123", UpdateLocationInput{
		Status:   models.StatusAtBorder,
		Location: "Border",
	})
	require.ErrorIs(t, err, pgparcels.ErrVersionConflict)
	require.Len(t, repo.applyUpds, 3)
}

func TestUpdateLocation_TerminalAndRegressionRules(t *testing.T) {
	t.Run("delivered is terminal", func(t *testing.T) {
		repo := &fakeRepo{}
		seedParcel(repo, models.StatusDelivered, 5)
		svc := newTestService(repo, nil, nil)
		_, err := svc.UpdateLocation(context.Background(), "SWPL250301ABC123", UpdateLocationInput{
			Status: models.StatusInTransit, Location: "X",
		})
		require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		repo := &fakeRepo{}
		seedParcel(repo, models.StatusCancelled, 5)
		svc := newTestService(repo, nil, nil)
		_, err := svc.UpdateLocation(context.Background(), "SWPL250301ABC123", UpdateLocationInput{
			Status: models.StatusCollected, Location: "X",
		})
		require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("no rollback after border fee paid", func(t *testing.T) {
		repo := &fakeRepo{}
		p := seedParcel(repo, models.StatusBorderCleared, 5)
		p.BorderFeePaid = true
		svc := newTestService(repo, nil, nil)
		_, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
			Status: models.StatusAtBorder, Location: "Back to border",
		})
		require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("rollback allowed before payment", func(t *testing.T) {
		repo := &fakeRepo{}
		p := seedParcel(repo, models.StatusAtBorder, 5)
		after := *p
		after.Status = models.StatusInTransit
		after.Version = 6
		repo.afterApply = &after
		svc := newTestService(repo, nil, nil)
		_, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
			Status: models.StatusInTransit, Location: "Rerouted",
		})
		require.NoError(t, err)
	})
}

func TestUpdateLocation_DeliveredSetsActualDelivery(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusOutForDelivery, 7)
	after := *p
	after.Status = models.StatusDelivered
	after.Version = 8
	repo.afterApply = &after

	svc := newTestService(repo, nil, nil)
	_, err := svc.UpdateLocation(context.Background(), p.TrackingID, UpdateLocationInput{
		Status: models.StatusDelivered, Location: "Front door",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.applyUpds[0].ActualDelivery)
}

func TestUpdateLocation_CoordinatesValidated(t *testing.T) {
	repo := &fakeRepo{}
	seedParcel(repo, models.StatusInTransit, 1)
	svc := newTestService(repo, nil, nil)

	_, err := svc.UpdateLocation(context.Background(), "SWPL250301ABC123", UpdateLocationInput{
		Status:      models.StatusAtBorder,
		Location:    "Border",
		Coordinates: &models.Coordinates{Lat: 91, Lng: 10},
	})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestPublicTracking_CachesView(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusInTransit, 1)
	repo.history = []*models.TrackingHistory{
		{ID: 2, ParcelID: p.ID, Status: models.StatusInTransit, Location: "Lagos Hub", CreatedAt: time.Now()},
		{ID: 1, ParcelID: p.ID, Status: models.StatusPending, Location: "Warehouse - Origin", CreatedAt: time.Now().Add(-time.Hour)},
	}
	c := newFakeCache()
	svc := newTestService(repo, c, nil)

	v, err := svc.PublicTracking(context.Background(), p.TrackingID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, v.Status)
	require.Len(t, v.History, 2)
	require.Contains(t, c.m, "parcel:"+p.TrackingID+":public")

	// второй запрос читает из кэша, даже если база "пропала"
	repo.parcels = nil
	v2, err := svc.PublicTracking(context.Background(), p.TrackingID)
	require.NoError(t, err)
	require.Equal(t, v.Status, v2.Status)
}

func TestPublicTracking_ExposesBorderFee(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusAtBorder, 2)
	p.BorderFee = 30
	svc := newTestService(repo, nil, nil)

	v, err := svc.PublicTracking(context.Background(), p.TrackingID)
	require.NoError(t, err)
	require.InDelta(t, 30.0, v.BorderFee, 1e-9)
	require.False(t, v.BorderFeePaid)

	// получатель должен видеть пошлину и флаг оплаты, но не контакты
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"borderFee":30`)
	require.Contains(t, string(raw), `"borderFeePaid":false`)
	require.NotContains(t, string(raw), "email")
}

func TestPublicTracking_BadFormatAndNotFound(t *testing.T) {
	svc := newTestService(&fakeRepo{}, nil, nil)

	// кривой формат наружу неотличим от незнакомого номера
	_, err := svc.PublicTracking(context.Background(), "not-a-tracking-id")
	require.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = svc.PublicTracking(context.Background(), "SWPL250301ZZZZZZ")
	require.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestRefreshPublicTracking_UpdatesCache(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusAtBorder, 2)
	p.BorderFee = 30
	c := newFakeCache()
	svc := newTestService(repo, c, nil)

	_, err := svc.PublicTracking(context.Background(), p.TrackingID)
	require.NoError(t, err)

	// граница пройдена: карточка в кэше должна смениться без ожидания TTL
	p.Status = models.StatusBorderCleared
	p.BorderFeePaid = true
	svc.RefreshPublicTracking(context.Background(), p.TrackingID)

	v, err := svc.PublicTracking(context.Background(), p.TrackingID)
	require.NoError(t, err)
	require.Equal(t, models.StatusBorderCleared, v.Status)
	require.True(t, v.BorderFeePaid)
}

func TestGetByTrackingID_ReturnsHistoryAndPayments(t *testing.T) {
	repo := &fakeRepo{}
	p := seedParcel(repo, models.StatusAtBorder, 2)
	repo.history = []*models.TrackingHistory{{ID: 1, ParcelID: p.ID, Status: models.StatusPending}}
	repo.payments = []*models.Payment{{ID: "pay-1", ParcelID: p.ID, FeeType: models.FeeTypeBorder}}

	svc := newTestService(repo, nil, nil)
	d, err := svc.GetByTrackingID(context.Background(), p.TrackingID)
	require.NoError(t, err)
	require.Equal(t, p.TrackingID, d.Parcel.TrackingID)
	require.Len(t, d.History, 1)
	require.Len(t, d.Payments, 1)
}
