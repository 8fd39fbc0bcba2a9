package source

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/eak1mov/go-mapview/tile"
)

// MBTiles reads tiles and metadata from an MBTiles database.
//
// Note: User must properly initialize the sqlite3 library generic driver
// (e.g. import _ "github.com/mattn/go-sqlite3") before using this type.
type MBTiles struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewMBTiles opens the database at filePath read-only.
//
// The returned reader must be closed after use to release database
// resources.
func NewMBTiles(filePath string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, err
	}

	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &MBTiles{db: db, stmt: stmt}, nil
}

func (m *MBTiles) Close() error {
	return errors.Join(m.stmt.Close(), m.db.Close())
}

// Metadata returns the contents of the metadata table.
func (m *MBTiles) Metadata() (map[string]string, error) {
	metadata := make(map[string]string)

	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return metadata, nil
}

func (m *MBTiles) ReadTile(coord tile.Coord) ([]byte, error) {
	if !coord.InGrid() {
		return make([]byte, 0), nil
	}
	y := (int32(1) << coord.Z) - 1 - coord.Y // XYZ -> TMS

	var data []byte
	if err := m.stmt.QueryRow(coord.Z, coord.X, y).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make([]byte, 0), nil
		}
		return nil, err
	}

	return data, nil
}

func (m *MBTiles) VisitTiles(visitor func(tile.Coord, []byte) error) error {
	rows, err := m.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var z, x, y int32
		var data []byte

		if err := rows.Scan(&z, &x, &y, &data); err != nil {
			return err
		}

		y = (int32(1) << z) - 1 - y // TMS -> XYZ

		if err := visitor(tile.Coord{Z: z, X: x, Y: y}, data); err != nil {
			return err
		}
	}

	return rows.Err()
}
