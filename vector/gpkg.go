package vector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
	gpkgPKColumn      = "fid"
	gpkgGeomColumn    = "geom"
	gpkgCustomSRSID   = 100000
)

var sqliteMagic = []byte("SQLite format 3\x00")

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func checkSQLiteHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	header := make([]byte, len(sqliteMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("not a sqlite database: %w", err)
	}
	if !bytes.Equal(header, sqliteMagic) {
		return fmt.Errorf("not a sqlite database")
	}
	return nil
}

// decodeGPKGGeometry decodes a GeoPackage binary geometry (header + WKB)
func decodeGPKGGeometry(b []byte) (orb.Geometry, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, fmt.Errorf("invalid geopackage geometry header")
	}
	flags := b[3]
	var envelopeSize int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelopeSize = 32
	case 2, 3:
		envelopeSize = 48
	case 4:
		envelopeSize = 64
	default:
		return nil, fmt.Errorf("invalid geopackage envelope indicator %d", (flags>>1)&0x07)
	}
	if flags&0x10 != 0 {
		return nil, nil
	}
	start := 8 + envelopeSize
	if len(b) <= start {
		return nil, fmt.Errorf("truncated geopackage geometry")
	}
	return wkb.Unmarshal(b[start:])
}

// encodeGPKGGeometry encodes a geometry with a little-endian header and an xy envelope
func encodeGPKGGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	w, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 8+32+len(w)))
	buf.Write([]byte{'G', 'P', 0, 0x03})
	bound := g.Bound()
	binary.Write(buf, binary.LittleEndian, srsID)
	binary.Write(buf, binary.LittleEndian, [4]float64{bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1]})
	buf.Write(w)
	return buf.Bytes(), nil
}

func gpkgGeometryType(name string) GeometryType {
	switch strings.ToUpper(name) {
	case "POINT":
		return GeometryTypePoint
	case "LINESTRING":
		return GeometryTypeLineString
	case "POLYGON":
		return GeometryTypePolygon
	case "MULTIPOINT":
		return GeometryTypeMultiPoint
	case "MULTILINESTRING":
		return GeometryTypeMultiLineString
	case "MULTIPOLYGON":
		return GeometryTypeMultiPolygon
	case "GEOMETRYCOLLECTION":
		return GeometryTypeGeometryCollection
	}
	return GeometryTypeUnknown
}

func readGPKG(ctx context.Context, path string) (*Layer, error) {
	if err := checkSQLiteHeader(path); err != nil {
		return nil, ErrOpen{Path: path, Driver: GeoPackage, Err: err}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ErrOpen{Path: path, Driver: GeoPackage, Err: err}
	}
	defer db.Close()

	var (
		layer    Layer
		geomCol  string
		typeName string
		srsID    int
	)
	// First feature table
	err = db.QueryRowContext(ctx, `SELECT c.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features' ORDER BY c.rowid LIMIT 1`).Scan(&layer.Name, &geomCol, &typeName, &srsID)
	if err != nil {
		if err == sql.ErrNoRows {
			err = fmt.Errorf("no feature table")
		}
		return nil, ErrOpen{Path: path, Driver: GeoPackage, Err: err}
	}

	if err := readGPKGSRS(ctx, db, srsID, &layer); err != nil {
		return nil, fmt.Errorf("readGPKG.%w", err)
	}

	// Schema
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(layer.Name)+")")
	if err != nil {
		return nil, fmt.Errorf("readGPKG.table_info: %w", err)
	}
	pk := ""
	colTypes := map[string]string{}
	for rows.Next() {
		var (
			cid, notnull, ispk int
			name, ctype        string
			dflt               sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &ispk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("readGPKG.table_info.Scan: %w", err)
		}
		switch {
		case ispk == 1 && pk == "":
			pk = name
		case name == geomCol:
		default:
			layer.Fields = append(layer.Fields, name)
			colTypes[name] = strings.ToUpper(ctype)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readGPKG.table_info.rows: %w", err)
	}

	// Features
	cols := []string{quoteIdent(geomCol)}
	for _, f := range layer.Fields {
		cols = append(cols, quoteIdent(f))
	}
	order := "rowid"
	if pk != "" {
		order = quoteIdent(pk)
	}
	rows, err = db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), quoteIdent(layer.Name), order))
	if err != nil {
		return nil, fmt.Errorf("readGPKG.select: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("readGPKG.Scan: %w", err)
		}
		f := Feature{Properties: map[string]interface{}{}}
		if blob, ok := values[0].([]byte); ok {
			if f.Geometry, err = decodeGPKGGeometry(blob); err != nil {
				return nil, fmt.Errorf("readGPKG.decode[%d]: %w", len(layer.Features), err)
			}
		}
		for i, name := range layer.Fields {
			v := values[i+1]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if n, ok := v.(int64); ok && colTypes[name] == "BOOLEAN" {
				v = n != 0
			}
			f.Properties[name] = v
		}
		layer.Features = append(layer.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readGPKG.rows: %w", err)
	}

	if layer.GeometryType = gpkgGeometryType(typeName); layer.GeometryType == GeometryTypeUnknown {
		layer.GeometryType = featuresType(layer.Features)
	}
	return &layer, nil
}

func readGPKGSRS(ctx context.Context, db *sql.DB, srsID int, layer *Layer) error {
	var (
		org        string
		orgID      int
		definition string
	)
	err := db.QueryRowContext(ctx, "SELECT organization, organization_coordsys_id, definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?", srsID).
		Scan(&org, &orgID, &definition)
	switch {
	case err == sql.ErrNoRows:
		return fmt.Errorf("srs %d not found", srsID)
	case err != nil:
		return fmt.Errorf("srs: %w", err)
	}
	switch {
	case strings.EqualFold(org, "EPSG"):
		layer.SRID = orgID
		layer.CRS = crs.URN(orgID)
	case srsID == 0:
		// Undefined geographic SRS
		layer.SRID = crs.WGS84
	case srsID == -1:
		// Undefined cartesian SRS
	default:
		layer.CRS = definition
		if srid, err := crs.ParsePRJ(definition); err == nil {
			layer.SRID = srid
		}
	}
	return nil
}

// columnType returns the sqlite type of the field, given its values
func columnType(features []Feature, field string) string {
	res := ""
	for _, f := range features {
		var t string
		switch v := f.Properties[field].(type) {
		case nil:
			continue
		case bool:
			t = "BOOLEAN"
		case int, int32, int64:
			t = "INTEGER"
		case float64:
			t = "INTEGER"
			if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
				t = "REAL"
			}
		case string:
			t = "TEXT"
		default:
			return "TEXT"
		}
		switch {
		case res == "" || res == t:
			res = t
		case (res == "INTEGER" && t == "REAL") || (res == "REAL" && t == "INTEGER"):
			res = "REAL"
		default:
			return "TEXT"
		}
	}
	if res == "" {
		return "TEXT"
	}
	return res
}

func columnValue(v interface{}, ctype string) (interface{}, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if ctype == "BOOLEAN" {
			return v, nil
		}
		return fmt.Sprint(v), nil
	case float64:
		switch ctype {
		case "INTEGER":
			return int64(v), nil
		case "REAL":
			return v, nil
		}
		return fmt.Sprint(v), nil
	case int, int32, int64:
		if ctype == "TEXT" {
			return fmt.Sprint(v), nil
		}
		return v, nil
	case string:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func gpkgTypeName(t GeometryType) string {
	if t == GeometryTypeUnknown {
		return "GEOMETRY"
	}
	return strings.ToUpper(t.String())
}

// srsRow returns the gpkg_spatial_ref_sys row describing the reference system of the layer
func srsRow(layer *Layer) (id int, name, org string, orgID int, definition string) {
	if layer.SRID > 0 {
		if c, err := crs.Lookup(layer.SRID); err == nil && c.SRID == layer.SRID {
			return c.SRID, c.Name, "EPSG", c.SRID, c.Definition
		}
		definition = layer.CRS
		if definition == "" {
			definition = "undefined"
		}
		return layer.SRID, fmt.Sprintf("EPSG:%d", layer.SRID), "EPSG", layer.SRID, definition
	}
	if layer.CRS != "" {
		return gpkgCustomSRSID, "custom", "NONE", gpkgCustomSRSID, layer.CRS
	}
	return -1, "Undefined cartesian SRS", "NONE", -1, "undefined"
}

// gpkgColumns returns the column names of the fields. SQLite compares names case-insensitively:
// a field colliding with the primary key, the geometry column or a previous field gets a numeric suffix.
func gpkgColumns(fields []string) []string {
	used := map[string]bool{gpkgPKColumn: true, gpkgGeomColumn: true}
	columns := make([]string, len(fields))
	for i, f := range fields {
		name := f
		for n := 1; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", f, n)
		}
		used[strings.ToLower(name)] = true
		columns[i] = name
	}
	return columns
}

func writeGPKG(ctx context.Context, path string, layer *Layer) (err error) {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("writeGPKG: %s already exists", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("writeGPKG.Open: %w", err)
	}
	defer func() {
		if e := db.Close(); err == nil && e != nil {
			err = fmt.Errorf("writeGPKG.Close: %w", e)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("writeGPKG.BeginTx: %w", err)
	}
	defer tx.Rollback()

	srsID, srsName, org, orgID, definition := srsRow(layer)
	fieldTypes := make([]string, len(layer.Fields))
	fieldColumns := gpkgColumns(layer.Fields)
	columns := []string{quoteIdent(gpkgPKColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", quoteIdent(gpkgGeomColumn) + " " + gpkgTypeName(layer.GeometryType)}
	for i, f := range layer.Fields {
		fieldTypes[i] = columnType(layer.Features, f)
		columns = append(columns, quoteIdent(fieldColumns[i])+" "+fieldTypes[i])
	}

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{query: fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID)},
		{query: fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion)},
		{query: `CREATE TABLE gpkg_spatial_ref_sys (srs_name TEXT NOT NULL, srs_id INTEGER NOT NULL PRIMARY KEY,
			organization TEXT NOT NULL, organization_coordsys_id INTEGER NOT NULL, definition TEXT NOT NULL, description TEXT)`},
		{query: `CREATE TABLE gpkg_contents (table_name TEXT NOT NULL PRIMARY KEY, data_type TEXT NOT NULL,
			identifier TEXT UNIQUE, description TEXT DEFAULT '', last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id))`},
		{query: `CREATE TABLE gpkg_geometry_columns (table_name TEXT NOT NULL, column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL, srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
			CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
			CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id))`},
		{query: `INSERT INTO gpkg_spatial_ref_sys VALUES
			('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
			('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system')`},
		{query: "INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, ?, ?, ?, NULL)", args: []interface{}{srsName, srsID, org, orgID, definition}},
		{query: fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(layer.Name), strings.Join(columns, ", "))},
		{query: "INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)", args: []interface{}{layer.Name, gpkgGeomColumn, gpkgTypeName(layer.GeometryType), srsID}},
	}
	if len(layer.Features) > 0 {
		b := layer.Bound()
		stmts = append(stmts, struct {
			query string
			args  []interface{}
		}{query: "INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)",
			args: []interface{}{layer.Name, layer.Name, b.Min[0], b.Min[1], b.Max[0], b.Max[1], srsID}})
	} else {
		stmts = append(stmts, struct {
			query string
			args  []interface{}
		}{query: "INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)",
			args: []interface{}{layer.Name, layer.Name, srsID}})
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("writeGPKG.Exec: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(layer.Fields)+1), ", ")
	cols := []string{quoteIdent(gpkgGeomColumn)}
	for _, c := range fieldColumns {
		cols = append(cols, quoteIdent(c))
	}
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(layer.Name), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("writeGPKG.Prepare: %w", err)
	}
	defer insert.Close()
	for i, f := range layer.Features {
		args := make([]interface{}, 0, len(cols))
		if f.Geometry == nil {
			args = append(args, nil)
		} else {
			blob, err := encodeGPKGGeometry(f.Geometry, int32(srsID))
			if err != nil {
				return fmt.Errorf("writeGPKG.encode[%d]: %w", i, err)
			}
			args = append(args, blob)
		}
		for j, field := range layer.Fields {
			v, err := columnValue(f.Properties[field], fieldTypes[j])
			if err != nil {
				return fmt.Errorf("writeGPKG.value[%d][%s]: %w", i, field, err)
			}
			args = append(args, v)
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("writeGPKG.insert[%d]: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("writeGPKG.Commit: %w", err)
	}
	return nil
}
