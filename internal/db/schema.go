package db

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates the parcels table if it does not exist. The
// composite primary key is the system's only uniqueness constraint:
// parcel IDs repeat across municipalities by design.
func EnsureSchema(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS parcels (
			municipality      TEXT NOT NULL,
			parcel_id         TEXT NOT NULL,
			cama_link         TEXT,
			address           TEXT,
			owner_name        TEXT,
			owner_address     TEXT,
			land_value        NUMERIC,
			building_value    NUMERIC,
			total_value       NUMERIC,
			year_built        INTEGER,
			building_area     NUMERIC,
			sale_price        NUMERIC,
			sale_date         DATE,
			geometry_wkt      TEXT NOT NULL,
			match_confidence  TEXT NOT NULL,
			source_provenance TEXT,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (municipality, parcel_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parcels table: %w", err)
	}
	return nil
}
