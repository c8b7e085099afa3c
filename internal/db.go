package internal

import (
	"database/sql"
	"os"
	"time"

	"github.com/aaroncutress/busroutes/models"
	_ "modernc.org/sqlite"
)

func executePragmas(db *sql.DB) {
	// The export is rebuilt from scratch on every run, so durability is not needed
	db.Exec("PRAGMA synchronous = OFF;")

	_, err := db.Exec("PRAGMA journal_mode = MEMORY;")
	if err != nil {
		db.Exec("PRAGMA journal_mode = WAL;")
	}

	db.Exec("PRAGMA temp_store = MEMORY;")
	db.Exec("PRAGMA foreign_keys = ON;")
}

// Run metadata stored alongside an export
type ExportMeta struct {
	RunID    string
	CityCode string
	Exported time.Time
}

// Writes the routes and stations to a fresh SQLite database at path,
// replacing any existing file
func ExportSQLite(path string, meta ExportMeta, routes []*models.RouteRecord, stations models.StationMap) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	executePragmas(db)

	if err := InitializeDB(db); err != nil {
		return err
	}
	if err := PopulateDB(db, meta, routes, stations); err != nil {
		return err
	}
	return CreateIndices(db)
}

// Inserts the routes, their stop sequences and the stations in one transaction
func PopulateDB(db *sql.DB, meta ExportMeta, routes []*models.RouteRecord, stations models.StationMap) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Save stations
	stationStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO stations (node_id, name, code, latitude, longitude, source_route)
		VALUES (?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return err
	}
	defer stationStmt.Close()

	for _, station := range stations {
		_, err := stationStmt.Exec(
			string(station.NodeID),
			station.Name,
			station.Code,
			station.Location.Latitude,
			station.Location.Longitude,
			string(station.SourceRoute),
		)
		if err != nil {
			return err
		}
	}

	// Save routes
	routeStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO routes (id, route_no, stop_count)
		VALUES (?, ?, ?);
	`)
	if err != nil {
		return err
	}
	defer routeStmt.Close()

	routeStopStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO route_stops (route_id, seq, node_id, node_ord, direction, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return err
	}
	defer routeStopStmt.Close()

	for _, route := range routes {
		_, err := routeStmt.Exec(string(route.ID), route.No, len(route.Stops))
		if err != nil {
			return err
		}

		for seq, stop := range route.Stops {
			_, err := routeStopStmt.Exec(
				string(route.ID),
				seq,
				string(stop.NodeID),
				stop.Order,
				int(stop.Direction),
				stop.Latitude,
				stop.Longitude,
			)
			if err != nil {
				return err
			}
		}
	}

	// Save export metadata
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO export_meta (run_id, city_code, exported_at)
		VALUES (?, ?, ?);
	`, meta.RunID, meta.CityCode, meta.Exported.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Creates the export schema
func InitializeDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS stations (
			node_id TEXT PRIMARY KEY,
			name TEXT,
			code TEXT,
			latitude REAL,
			longitude REAL,
			source_route TEXT
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			route_no TEXT NOT NULL,
			stop_count INTEGER
		);
	`)
	if err != nil {
		return err
	}

	// A stop may appear more than once on loop routes, so rows are keyed by position
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS route_stops (
			route_id TEXT,
			seq INTEGER,
			node_id TEXT,
			node_ord INTEGER,
			direction INTEGER,
			latitude REAL,
			longitude REAL,

			PRIMARY KEY (route_id, seq),
			FOREIGN KEY (route_id) REFERENCES routes(id)
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE VIEW IF NOT EXISTS route_numbers AS
			SELECT route_no, id AS route_id FROM routes ORDER BY route_no, id;
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS export_meta (
			run_id TEXT PRIMARY KEY,
			city_code TEXT,
			exported_at TEXT
		);
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func CreateIndices(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_routes_route_no ON routes (route_no);
		CREATE INDEX IF NOT EXISTS idx_route_stops_node_id ON route_stops (node_id);
	`)
	return err
}
