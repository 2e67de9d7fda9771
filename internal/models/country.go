// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// Country is a master-table entry referenced by users.country_id.
type Country struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}
