package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// orNow substitutes the current time for a zero timestamp.
func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// scanCar scans a car row selected with carColumns.
func scanCar(rows *sql.Rows) (models.CarRecord, error) {
	var c models.CarRecord
	var variant, typ, fuel, transmission, owner, color, reg, image sql.NullString
	var year, kms sql.NullInt64
	err := rows.Scan(
		&c.ID, &c.Brand, &c.Model, &variant, &typ, &fuel, &transmission,
		&year, &kms, &owner, &color, &c.Price, &reg, &image,
	)
	if err != nil {
		return c, fmt.Errorf("scan car failed: %w", err)
	}
	c.Variant = variant.String
	c.Type = typ.String
	c.Fuel = fuel.String
	c.Transmission = transmission.String
	c.Year = int(year.Int64)
	c.KmsDriven = int(kms.Int64)
	c.Owner = owner.String
	c.Color = color.String
	c.RegistrationNumber = reg.String
	c.ImageURL = image.String
	return c, nil
}
