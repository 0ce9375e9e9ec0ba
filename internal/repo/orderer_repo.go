package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Excerpta/internal/domain"
)

// OrdererStore — справочник пользователей-заказчиков.
//
// Ядро не управляет пользователями (это забота front-end'а), но ему
// нужны email и группы для уведомлений и выбора приоритетной очереди.
// Запись обновляется upsert'ом при каждом создании заказа.
type OrdererStore interface {
	// Upsert создаёт или обновляет запись пользователя.
	Upsert(ctx context.Context, u domain.Orderer) error

	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error)
}

// OrdererRepo — реализация OrdererStore поверх pgx.
type OrdererRepo struct {
	pool *pgxpool.Pool
}

// NewOrdererRepo создаёт новый OrdererRepo.
func NewOrdererRepo(pool *pgxpool.Pool) *OrdererRepo {
	return &OrdererRepo{pool: pool}
}

// Upsert создаёт или обновляет запись пользователя.
func (r *OrdererRepo) Upsert(ctx context.Context, u domain.Orderer) error {
	query := `
		INSERT INTO orderers (id, name, email, groups)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, groups = EXCLUDED.groups
	`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Name, nullString(u.Email), u.Groups)
	if err != nil {
		return fmt.Errorf("upsert orderer: %w", err)
	}
	return nil
}

// GetByID возвращает пользователя по ID.
func (r *OrdererRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error) {
	query := `SELECT id, name, email, groups FROM orderers WHERE id = $1`

	var u domain.Orderer
	var email *string
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &email, &u.Groups)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Orderer{}, ErrNotFound
	}
	if err != nil {
		return domain.Orderer{}, fmt.Errorf("scan orderer: %w", err)
	}
	if email != nil {
		u.Email = *email
	}
	return u, nil
}
