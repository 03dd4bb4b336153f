package pgparcels

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS parcels (
  id UUID PRIMARY KEY,
  tracking_id TEXT NOT NULL,
  sender_id UUID NULL,
  receiver_id UUID NULL,
  sender_name TEXT NOT NULL,
  sender_email TEXT NOT NULL,
  sender_phone TEXT NOT NULL,
  recipient_name TEXT NOT NULL,
  recipient_email TEXT NOT NULL,
  recipient_phone TEXT NOT NULL,
  recipient_address TEXT NOT NULL,
  destination_country TEXT NOT NULL,
  weight NUMERIC(10,2) NOT NULL,
  dimensions JSONB NOT NULL,
  contents JSONB NULL,
  status TEXT NOT NULL,
  current_location TEXT NOT NULL,
  coordinates JSONB NULL,
  shipping_cost NUMERIC(10,2) NOT NULL DEFAULT 0,
  border_fee NUMERIC(10,2) NOT NULL DEFAULT 0,
  border_fee_paid BOOLEAN NOT NULL DEFAULT FALSE,
  estimated_delivery TIMESTAMPTZ NULL,
  actual_delivery TIMESTAMPTZ NULL,
  version BIGINT NOT NULL DEFAULT 0,
  deleted_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Уникальность публичного кода; на нарушение завязан retry генератора.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_parcels_tracking_id ON parcels(tracking_id)`,
		`
CREATE TABLE IF NOT EXISTS tracking_history (
  id BIGSERIAL PRIMARY KEY,
  parcel_id UUID NOT NULL REFERENCES parcels(id),
  status TEXT NOT NULL,
  location TEXT NOT NULL,
  coordinates JSONB NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_history_parcel_created ON tracking_history(parcel_id, created_at DESC, id DESC)`,
		`
CREATE TABLE IF NOT EXISTS payments (
  id UUID PRIMARY KEY,
  parcel_id UUID NOT NULL REFERENCES parcels(id),
  provider_ref TEXT NOT NULL,
  fee_type TEXT NOT NULL,
  amount NUMERIC(10,2) NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  method JSONB NULL,
  metadata JSONB NULL,
  completed_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Дубликаты intent-ов от процессинга не должны создавать вторую запись.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_provider_ref ON payments(provider_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_parcel_id ON payments(parcel_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
