// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/acrispin/identity/internal/models"
)

// ListCountries returns all countries ordered by name.
func (r *Repository) ListCountries(ctx context.Context) ([]models.Country, error) {
	var countries []models.Country
	if err := r.db.SelectContext(ctx, &countries, `SELECT * FROM countries ORDER BY name`); err != nil {
		return nil, err
	}
	return countries, nil
}

// GetCountryByID retrieves a country by ID.
func (r *Repository) GetCountryByID(ctx context.Context, id int64) (*models.Country, error) {
	var country models.Country
	if err := r.db.GetContext(ctx, &country, `SELECT * FROM countries WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &country, nil
}

// SeedCountries inserts the given countries if the table is empty.
func (r *Repository) SeedCountries(ctx context.Context, countries []models.Country) error {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM countries`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, c := range countries {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO countries (name, code) VALUES (?, ?)`, c.Name, c.Code); err != nil {
			return wrapError(err)
		}
	}
	return nil
}
