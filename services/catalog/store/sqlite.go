// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCatalogStore implements CatalogStore over a SQLite database.
//
// # Thread Safety
//
// database/sql pools connections; the store is safe for concurrent use.
type SQLiteCatalogStore struct {
	db *sql.DB
}

// Compile-time interface implementation check.
var _ CatalogStore = (*SQLiteCatalogStore)(nil)

// OpenSQLite opens (or creates) the catalog database at path and ensures
// the offers table exists.
func OpenSQLite(path string) (*SQLiteCatalogStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	s := &SQLiteCatalogStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteCatalogStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteCatalogStore) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT 'CNY',
		category_id TEXT NOT NULL DEFAULT '',
		store_id TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		popularity REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_category ON offers(category_id);
	CREATE INDEX IF NOT EXISTS idx_offers_price ON offers(price);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("failed to ensure catalog schema: %w", err)
	}
	return nil
}

// buildWhere renders the filter into a WHERE clause and its arguments.
// ListOffers and CountOffers both call this, which is what keeps their
// predicate sets identical.
func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.Keyword != "" {
		clauses = append(clauses, "title LIKE ?")
		args = append(args, "%"+f.Keyword+"%")
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.PriceMin != nil {
		clauses = append(clauses, "price >= ?")
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		clauses = append(clauses, "price <= ?")
		args = append(args, *f.PriceMax)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListOffers implements CatalogStore.
func (s *SQLiteCatalogStore) ListOffers(ctx context.Context, f Filter) ([]Offer, error) {
	where, args := buildWhere(f)
	query := `SELECT id, title, price, currency, category_id, store_id, image_url, popularity, updated_at
		FROM offers` + where + ` ORDER BY popularity DESC, updated_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var offers []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return offers, nil
}

// CountOffers implements CatalogStore.
func (s *SQLiteCatalogStore) CountOffers(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)
	query := "SELECT COUNT(*) FROM offers" + where

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count offers: %w", err)
	}
	return count, nil
}

// GetOffer implements CatalogStore.
func (s *SQLiteCatalogStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	query := `SELECT id, title, price, currency, category_id, store_id, image_url, popularity, updated_at
		FROM offers WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpsertOffer inserts or replaces one offer. Ingestion and the draft
// order pipeline write through this; the resolver never does.
func (s *SQLiteCatalogStore) UpsertOffer(ctx context.Context, o Offer) error {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	query := `INSERT INTO offers (id, title, price, currency, category_id, store_id, image_url, popularity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			currency = excluded.currency,
			category_id = excluded.category_id,
			store_id = excluded.store_id,
			image_url = excluded.image_url,
			popularity = excluded.popularity,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Title, o.Price, o.Currency, o.CategoryID, o.StoreID, o.ImageURL, o.Popularity,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert offer: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner) (*Offer, error) {
	var o Offer
	var updated string
	err := row.Scan(&o.ID, &o.Title, &o.Price, &o.Currency, &o.CategoryID, &o.StoreID, &o.ImageURL, &o.Popularity, &updated)
	if err != nil {
		return nil, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		o.UpdatedAt = ts
	}
	return &o, nil
}
