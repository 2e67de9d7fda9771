// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acrispin/identity/internal/repository"
)

// CountryHandlers serves the countries master table.
type CountryHandlers struct {
	repo *repository.Repository
}

// NewCountries creates a new CountryHandlers instance.
func NewCountries(repo *repository.Repository) *CountryHandlers {
	return &CountryHandlers{repo: repo}
}

// Register wires the country routes into the given group.
func (h *CountryHandlers) Register(g *echo.Group) {
	g.GET("/countries", h.List)
}

// List returns all countries ordered by name. The list is public; the
// registration form needs it before any account exists.
func (h *CountryHandlers) List(c echo.Context) error {
	countries, err := h.repo.ListCountries(c.Request().Context())
	if err != nil {
		slog.Error("internal_error", "error", err, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, countries)
}
