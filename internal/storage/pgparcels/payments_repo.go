package pgparcels

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/xIfe3/swipline/internal/models"
)

const paymentColumns = `
  id, parcel_id, provider_ref, fee_type, amount, currency,
  status, method, metadata, completed_at, created_at, updated_at`

func scanPayment(row parcelRow) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(
		&p.ID, &p.ParcelID, &p.ProviderRef, &p.FeeType, &p.Amount, &p.Currency,
		&p.Status, &p.Method, &p.Metadata, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO payments (
  id, parcel_id, provider_ref, fee_type, amount, currency,
  status, method, metadata, completed_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
`,
		p.ID, p.ParcelID, p.ProviderRef, p.FeeType, p.Amount, p.Currency,
		p.Status, p.Method, p.Metadata, p.CompletedAt, p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "uq_payments_provider_ref") {
			return ErrProviderRefTaken
		}
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

func (s *Storage) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE id = $1
`, id)

	p, err := scanPayment(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select payment")
	}
	return p, nil
}

func (s *Storage) ListPaymentsByParcel(ctx context.Context, parcelID string) ([]*models.Payment, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE parcel_id = $1
ORDER BY created_at DESC
`, parcelID)
	if err != nil {
		return nil, errors.Wrap(err, "select payments")
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type PaymentSuccess struct {
	ProviderRef string
	CompletedAt time.Time
	Method      *models.PaymentMethod
}

type PaymentApplyResult struct {
	// Found=false: у нас нет платежа с таким provider_ref (неизвестный или
	// вычищенный intent) — доставка квитируется без изменений.
	Found bool

	// AlreadyCompleted: повторная доставка события; состояние не трогали.
	AlreadyCompleted bool

	// ParcelCleared: именно это применение перевело посылку в
	// border_cleared (нотификацию шлём только в этом случае).
	ParcelCleared bool

	// FeeMarkedPaid: border_fee_paid выставлен этим применением; кэш
	// публичной карточки после этого устарел.
	FeeMarkedPaid bool

	Payment *models.Payment
	Parcel  *models.Parcel
}

// ApplyPaymentSucceeded применяет "payment succeeded" ровно один раз.
// Блокировка строк платежа и посылки сериализует конкурентные доставки
// одного и того же события; completed — терминальный статус.
func (s *Storage) ApplyPaymentSucceeded(ctx context.Context, in PaymentSuccess) (PaymentApplyResult, error) {
	var res PaymentApplyResult

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE provider_ref = $1
FOR UPDATE
`, in.ProviderRef)

	payment, err := scanPayment(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return res, nil
	}
	if err != nil {
		return res, errors.Wrap(err, "select payment for update")
	}
	res.Found = true
	res.Payment = payment

	if payment.Status == models.PaymentStatusCompleted {
		res.AlreadyCompleted = true
		return res, tx.Commit(ctx)
	}

	completedAt := in.CompletedAt.UTC()
	_, err = tx.Exec(ctx, `
UPDATE payments
SET status = $2, method = COALESCE($3, method), completed_at = $4, updated_at = now()
WHERE id = $1
`, payment.ID, models.PaymentStatusCompleted, in.Method, completedAt)
	if err != nil {
		return res, errors.Wrap(err, "complete payment")
	}
	payment.Status = models.PaymentStatusCompleted
	payment.CompletedAt = &completedAt
	if in.Method != nil {
		payment.Method = in.Method
	}

	if payment.FeeType == models.FeeTypeBorder {
		row := tx.QueryRow(ctx, `
SELECT `+parcelColumns+`
FROM parcels
WHERE id = $1 AND deleted_at IS NULL
FOR UPDATE
`, payment.ParcelID)

		parcel, err := scanParcel(row)
		if stderrors.Is(err, pgx.ErrNoRows) {
			// Посылки больше нет — платёж всё равно закрываем.
			return res, tx.Commit(ctx)
		}
		if err != nil {
			return res, errors.Wrap(err, "select parcel for update")
		}

		// Оплату пошлины отмечаем только посылкам на маршруте. Отменённая
		// посылка оплаченной границы иметь не может: платёж закрывается,
		// а возврат решается операторами отдельно.
		rank, onRoute := models.StatusRank(parcel.Status)
		if !parcel.BorderFeePaid && onRoute {
			newStatus := parcel.Status
			// Статус двигаем вперёд только если посылка ещё не прошла границу.
			if cleared, _ := models.StatusRank(models.StatusBorderCleared); rank < cleared {
				newStatus = models.StatusBorderCleared
			}

			_, err = tx.Exec(ctx, `
UPDATE parcels
SET border_fee_paid = TRUE, status = $2, version = version + 1, updated_at = $3
WHERE id = $1
`, parcel.ID, newStatus, completedAt)
			if err != nil {
				return res, errors.Wrap(err, "mark border fee paid")
			}
			res.FeeMarkedPaid = true

			if newStatus != parcel.Status {
				_, err = tx.Exec(ctx, `
INSERT INTO tracking_history (parcel_id, status, location, coordinates, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, parcel.ID, newStatus, parcel.CurrentLocation, parcel.Coordinates, "Border fee payment confirmed", completedAt)
				if err != nil {
					return res, errors.Wrap(err, "insert clearance history")
				}
				res.ParcelCleared = true
			}

			parcel.BorderFeePaid = true
			parcel.Status = newStatus
			parcel.Version++
		}
		res.Parcel = parcel
	}

	if err := tx.Commit(ctx); err != nil {
		return res, errors.Wrap(err, "commit tx")
	}
	return res, nil
}

// ApplyPaymentFailed помечает платёж failed; посылку не трогает.
// Терминальные статусы назад не откатываются.
func (s *Storage) ApplyPaymentFailed(ctx context.Context, providerRef string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE payments
SET status = $2, updated_at = now()
WHERE provider_ref = $1 AND status IN ($3, $4)
`, providerRef, models.PaymentStatusFailed, models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err != nil {
		return false, errors.Wrap(err, "fail payment")
	}
	return tag.RowsAffected() > 0, nil
}
