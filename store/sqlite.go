package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"web/artmap/place"
)

const schema = `
CREATE TABLE IF NOT EXISTS places (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	city          TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL,
	lat           REAL,
	lng           REAL,
	description   TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	contact       TEXT NOT NULL DEFAULT '',
	opening_hours TEXT NOT NULL DEFAULT '',
	image         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS places_type ON places(type);
CREATE INDEX IF NOT EXISTS places_region ON places(region);
`

// SQLiteStore keeps the place catalog in a single SQLite file. Rows with
// NULL coordinates stay in the catalog; they come back as NaN and the
// spatial layer skips them.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the catalog at path and ensures
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FetchPlaces(ctx context.Context) ([]place.Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, city, region, type, lat, lng,
		       description, address, website, contact, opening_hours, image
		FROM places ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	var places []place.Place
	for rows.Next() {
		var p place.Place
		var lat, lng sql.NullFloat64
		err := rows.Scan(&p.ID, &p.Name, &p.City, &p.Region, &p.Type,
			&lat, &lng,
			&p.Description, &p.Address, &p.Website, &p.Contact,
			&p.OpeningHours, &p.Image)
		if err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		p.Lat, p.Lng = math.NaN(), math.NaN()
		if lat.Valid && lng.Valid {
			p.Lat, p.Lng = lat.Float64, lng.Float64
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// UpsertPlace inserts or fully replaces one catalog row.
func (s *SQLiteStore) UpsertPlace(ctx context.Context, p place.Place) error {
	var lat, lng any
	if p.HasValidCoordinates() {
		lat, lng = p.Lat, p.Lng
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO places (id, name, city, region, type, lat, lng,
			description, address, website, contact, opening_hours, image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, city = excluded.city,
			region = excluded.region, type = excluded.type,
			lat = excluded.lat, lng = excluded.lng,
			description = excluded.description, address = excluded.address,
			website = excluded.website, contact = excluded.contact,
			opening_hours = excluded.opening_hours, image = excluded.image`,
		p.ID, p.Name, p.City, p.Region, string(p.Type), lat, lng,
		p.Description, p.Address, p.Website, p.Contact, p.OpeningHours, p.Image)
	if err != nil {
		return fmt.Errorf("upsert place %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeletePlace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete place %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete place %s: not found", id)
	}
	return nil
}
