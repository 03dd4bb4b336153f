package pgparcels

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Сентинели уровня хранилища; сервисы переводят их в apperrors.
var (
	ErrNotFound         = errors.New("pgparcels: not found")
	ErrTrackingIDTaken  = errors.New("pgparcels: tracking id already taken")
	ErrProviderRefTaken = errors.New("pgparcels: provider ref already taken")
	ErrVersionConflict  = errors.New("pgparcels: version conflict")
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
