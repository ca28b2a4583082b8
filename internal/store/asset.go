package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Asset describes a cached asset without its contents.
type Asset struct {
	URI       string
	Size      int
	FetchedAt time.Time
}

// AssetRepository caches asset bytes by URI. It satisfies assets.Cache.
type AssetRepository struct {
	db *sql.DB
}

// Assets returns the asset repository for this store.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{db: s.db}
}

// Get returns the cached bytes for uri. The bool is false on a cache miss.
func (r *AssetRepository) Get(ctx context.Context, uri string) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM assets WHERE uri = ?`, uri).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores data for uri, replacing any previous entry.
func (r *AssetRepository) Put(ctx context.Context, uri string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (uri, data, size, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(uri) DO UPDATE SET data = excluded.data, size = excluded.size, fetched_at = excluded.fetched_at`,
		uri, data, len(data), time.Now(),
	)
	return err
}

// List returns all cached assets ordered by URI.
func (r *AssetRepository) List(ctx context.Context) ([]*Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT uri, size, fetched_at FROM assets ORDER BY uri`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a := &Asset{}
		if err := rows.Scan(&a.URI, &a.Size, &a.FetchedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assets, nil
}

// Delete removes the cached entry for uri.
func (r *AssetRepository) Delete(ctx context.Context, uri string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE uri = ?`, uri)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
