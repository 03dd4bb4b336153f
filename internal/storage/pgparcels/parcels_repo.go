package pgparcels

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/xIfe3/swipline/internal/models"
)

const parcelColumns = `
  id, tracking_id, sender_id, receiver_id,
  sender_name, sender_email, sender_phone,
  recipient_name, recipient_email, recipient_phone, recipient_address,
  destination_country, weight, dimensions, contents,
  status, current_location, coordinates,
  shipping_cost, border_fee, border_fee_paid,
  estimated_delivery, actual_delivery,
  version, deleted_at, created_at, updated_at`

type parcelRow interface {
	Scan(dest ...any) error
}

func scanParcel(row parcelRow) (*models.Parcel, error) {
	var p models.Parcel
	if err := row.Scan(
		&p.ID, &p.TrackingID, &p.SenderID, &p.ReceiverID,
		&p.SenderName, &p.SenderEmail, &p.SenderPhone,
		&p.RecipientName, &p.RecipientEmail, &p.RecipientPhone, &p.RecipientAddress,
		&p.DestinationCountry, &p.Weight, &p.Dimensions, &p.Contents,
		&p.Status, &p.CurrentLocation, &p.Coordinates,
		&p.ShippingCost, &p.BorderFee, &p.BorderFeePaid,
		&p.EstimatedDelivery, &p.ActualDelivery,
		&p.Version, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateParcel вставляет посылку и первую запись истории одной транзакцией:
// состояние посылки всегда зеркалит последнюю запись журнала.
func (s *Storage) CreateParcel(ctx context.Context, p *models.Parcel, description string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO parcels (
  id, tracking_id, sender_id, receiver_id,
  sender_name, sender_email, sender_phone,
  recipient_name, recipient_email, recipient_phone, recipient_address,
  destination_country, weight, dimensions, contents,
  status, current_location, coordinates,
  shipping_cost, border_fee, border_fee_paid,
  estimated_delivery, actual_delivery,
  version, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)
`,
		p.ID, p.TrackingID, p.SenderID, p.ReceiverID,
		p.SenderName, p.SenderEmail, p.SenderPhone,
		p.RecipientName, p.RecipientEmail, p.RecipientPhone, p.RecipientAddress,
		p.DestinationCountry, p.Weight, p.Dimensions, p.Contents,
		p.Status, p.CurrentLocation, p.Coordinates,
		p.ShippingCost, p.BorderFee, p.BorderFeePaid,
		p.EstimatedDelivery, p.ActualDelivery,
		p.Version, p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "uq_parcels_tracking_id") {
			return ErrTrackingIDTaken
		}
		return errors.Wrap(err, "insert parcel")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO tracking_history (parcel_id, status, location, coordinates, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, p.ID, p.Status, p.CurrentLocation, p.Coordinates, description, p.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert initial history")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetParcelByTrackingID(ctx context.Context, trackingID string) (*models.Parcel, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+parcelColumns+`
FROM parcels
WHERE tracking_id = $1 AND deleted_at IS NULL
`, trackingID)

	p, err := scanParcel(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select parcel")
	}
	return p, nil
}

func (s *Storage) GetParcelByID(ctx context.Context, id string) (*models.Parcel, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+parcelColumns+`
FROM parcels
WHERE id = $1 AND deleted_at IS NULL
`, id)

	p, err := scanParcel(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select parcel by id")
	}
	return p, nil
}

// ListHistory отдаёт журнал посылки новыми записями вперёд.
func (s *Storage) ListHistory(ctx context.Context, parcelID string, limit, offset int) ([]*models.TrackingHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, parcel_id, status, location, coordinates, description, created_at
FROM tracking_history
WHERE parcel_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, parcelID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	defer rows.Close()

	var out []*models.TrackingHistory
	for rows.Next() {
		var h models.TrackingHistory
		if err := rows.Scan(
			&h.ID, &h.ParcelID, &h.Status, &h.Location,
			&h.Coordinates, &h.Description, &h.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type LocationUpdate struct {
	ParcelID string

	// Version — версия, которую видел вызывающий. Несовпадение означает
	// конкурентную запись: апдейт не применяется, вызывающий перечитывает.
	Version int64

	Status      string
	Location    string
	Coordinates *models.Coordinates
	Description string

	// Выставляется один раз при переходе в delivered.
	ActualDelivery *time.Time

	OccurredAt time.Time
}

// ApplyLocationUpdate атомарно обновляет посылку и дописывает историю.
// Частичная запись (история без посылки или наоборот) невозможна.
func (s *Storage) ApplyLocationUpdate(ctx context.Context, upd LocationUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE parcels
SET
  status = $3,
  current_location = $4,
  coordinates = COALESCE($5, coordinates),
  actual_delivery = COALESCE($6, actual_delivery),
  version = version + 1,
  updated_at = $7
WHERE id = $1 AND version = $2 AND deleted_at IS NULL
`, upd.ParcelID, upd.Version, upd.Status, upd.Location, upd.Coordinates, upd.ActualDelivery, upd.OccurredAt.UTC())
	if err != nil {
		return errors.Wrap(err, "update parcel")
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	_, err = tx.Exec(ctx, `
INSERT INTO tracking_history (parcel_id, status, location, coordinates, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, upd.ParcelID, upd.Status, upd.Location, upd.Coordinates, upd.Description, upd.OccurredAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert history")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
