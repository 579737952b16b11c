// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package surveydb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

var _ Querier = (*Store)(nil)

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

func (store *Store) Close() error {
	if store.connPool != nil {
		store.connPool.Close()
	}
	return nil
}

// SelectProfilesPage returns the exact total plus one LIMIT/OFFSET window.
func (store *Store) SelectProfilesPage(ctx context.Context, req PageRequest) (ProfilePage, error) {
	total, err := store.CountProfiles(ctx)
	if err != nil {
		return ProfilePage{}, fmt.Errorf("count profiles: %w", err)
	}
	if req.Limit <= 0 || int64(req.Offset) >= total {
		return ProfilePage{TotalCount: total}, nil
	}
	profiles, err := store.ListProfilesPage(ctx, req.Limit, req.Offset)
	if err != nil {
		return ProfilePage{}, fmt.Errorf("list profiles: %w", err)
	}
	return ProfilePage{Profiles: profiles, TotalCount: total}, nil
}

func (store *Store) SelectSubmissionsByUserIDs(ctx context.Context, ids []uuid.UUID) ([]Submission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return store.ListSubmissionsByUserIDs(ctx, ids)
}

// DeleteProfilesByIDs removes the submissions and profiles for ids in one
// transaction and returns the number of profiles removed.
func (store *Store) DeleteProfilesByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var removed int64
	err := store.execTx(ctx, func(tx *Store) error {
		if err := tx.DeleteSubmissionsByUserIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete submissions: %w", err)
		}
		n, err := tx.DeleteProfiles(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete profiles: %w", err)
		}
		removed = n
		return nil
	})
	return removed, err
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup as it may be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}
	if err = fn(txStore); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}
