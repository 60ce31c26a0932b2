package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cama-import/internal/mapper"
)

// parcelStore is the persistence surface the coordinator writes through.
// Production runs use Postgres; tests script the store to exercise the
// retry and partial-failure paths.
type parcelStore interface {
	ExistingParcelIDs(ctx context.Context, municipality string) (map[string]bool, error)
	WriteBatch(ctx context.Context, batch []mapper.ParcelRow) error
}

type sqlStore struct {
	db *sql.DB
}

func (s *sqlStore) ExistingParcelIDs(ctx context.Context, municipality string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parcel_id FROM parcels WHERE municipality = $1
	`, municipality)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// WriteBatch commits one batch in its own transaction via the keyed
// upsert. Rows are upserted one statement at a time, so a batch that
// repeats a key (duplicate identifiers in the geo layer) just re-applies
// the upsert for that key.
func (s *sqlStore) WriteBatch(ctx context.Context, batch []mapper.ParcelRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parcels (
			municipality, parcel_id, cama_link, address, owner_name, owner_address,
			land_value, building_value, total_value, year_built, building_area,
			sale_price, sale_date, geometry_wkt, match_confidence, source_provenance,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (municipality, parcel_id) DO UPDATE SET
			cama_link         = EXCLUDED.cama_link,
			address           = EXCLUDED.address,
			owner_name        = EXCLUDED.owner_name,
			owner_address     = EXCLUDED.owner_address,
			land_value        = EXCLUDED.land_value,
			building_value    = EXCLUDED.building_value,
			total_value       = EXCLUDED.total_value,
			year_built        = EXCLUDED.year_built,
			building_area     = EXCLUDED.building_area,
			sale_price        = EXCLUDED.sale_price,
			sale_date         = EXCLUDED.sale_date,
			geometry_wkt      = EXCLUDED.geometry_wkt,
			match_confidence  = EXCLUDED.match_confidence,
			source_provenance = EXCLUDED.source_provenance,
			updated_at        = now()
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range batch {
		_, err := stmt.ExecContext(ctx,
			row.Municipality, row.ParcelID, row.CamaLink, row.Address,
			row.OwnerName, row.OwnerAddress, row.LandValue, row.BuildingValue,
			row.TotalValue, row.YearBuilt, row.BuildingArea, row.SalePrice,
			row.SaleDate, row.GeometryWKT, row.Confidence, row.Provenance,
		)
		if err != nil {
			return fmt.Errorf("upsert parcel %s/%s: %w", row.Municipality, row.ParcelID, err)
		}
	}

	return tx.Commit()
}
