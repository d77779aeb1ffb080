package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	db "github.com/eudr-packhouse/parcel-ingester/interface/database"
	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements ParcelTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements ParcelDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements ParcelBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements ParcelDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.ParcelTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sql.ping: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// ErrSRIDMismatch is returned when the geometries are normalized into another srid than the one of the geom column
type ErrSRIDMismatch struct {
	Column, Target int
}

func (e ErrSRIDMismatch) Error() string {
	return fmt.Sprintf("geom column is in EPSG:%d, geometries are normalized in EPSG:%d", e.Column, e.Target)
}

func checkSRID(column, target int) error {
	if column != crs.Canonical(target) {
		return ErrSRIDMismatch{Column: column, Target: target}
	}
	return nil
}

// CheckTargetSRID returns an error if the geometries normalized in srid cannot be stored in the parcel table
func (bdb BackendDB) CheckTargetSRID(ctx context.Context, srid int) error {
	var column int
	if err := bdb.QueryRowContext(ctx, "SELECT Find_SRID(current_schema(), 'parcel', 'geom')").Scan(&column); err != nil {
		return fmt.Errorf("CheckTargetSRID.Find_SRID: %w", err)
	}
	return checkSRID(column, srid)
}

const parcelColumns = "uuid, name, record_type, COALESCE(file, ''), COALESCE(ST_AsText(geom), ''), COALESCE(ST_SRID(geom), 0), buffer_extent, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParcel(row rowScanner) (common.Parcel, error) {
	var p common.Parcel
	var extent []float64
	if err := row.Scan(&p.UUID, &p.Name, &p.RecordType, &p.File, &p.Geom, &p.SRID, pq.Array(&extent), &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if len(extent) == 4 {
		p.BufferExtent = &common.Extent{extent[0], extent[1], extent[2], extent[3]}
	}
	return p, nil
}

// CreateParcel implements ParcelBackend
func (b Backend) CreateParcel(ctx context.Context, parcel common.Parcel) error {
	_, err := b.ExecContext(ctx, "insert into parcel(uuid, name, record_type, created_at, updated_at) values($1, $2, $3, $4, $5)",
		parcel.UUID, parcel.Name, parcel.RecordType, parcel.CreatedAt, parcel.UpdatedAt)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "parcel", ID: parcel.UUID}
	default:
		return fmt.Errorf("CreateParcel.exec: %w", err)
	}
}

// ReadParcel implements ParcelBackend
func (b Backend) ReadParcel(ctx context.Context, uuid string, forUpdate bool) (common.Parcel, error) {
	query := "select " + parcelColumns + " from parcel where uuid = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	p, err := scanParcel(b.QueryRowContext(ctx, query, uuid))
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, sql.ErrNoRows):
		return p, db.ErrNotFound{Type: "parcel", ID: uuid}
	default:
		return p, fmt.Errorf("ReadParcel.QueryRowContext: %w", err)
	}
}

// Parcels implements ParcelBackend
func (b Backend) Parcels(ctx context.Context, name string, recordType *common.RecordType, page, limit int) ([]common.Parcel, error) {
	f := filter{}
	if name != "" {
		pattern, operator := namePattern(name)
		f.add("name "+operator+" $%d", pattern)
	}
	if recordType != nil {
		f.add("record_type = $%d", *recordType)
	}
	rows, err := b.QueryContext(ctx, "select "+parcelColumns+" from parcel"+f.where()+" ORDER BY created_at, uuid"+pagination(page, limit), f.args...)
	if err != nil {
		return nil, fmt.Errorf("Parcels.QueryContext: %w", err)
	}
	defer rows.Close()
	parcels := []common.Parcel{}
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, fmt.Errorf("Parcels.Scan: %w", err)
		}
		parcels = append(parcels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Parcels.rows.err: %w", err)
	}
	return parcels, nil
}

func checkAffected(res sql.Result, uuid string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound{Type: "parcel", ID: uuid}
	}
	return nil
}

// RenameParcel implements ParcelBackend
func (b Backend) RenameParcel(ctx context.Context, uuid, name string) error {
	res, err := b.ExecContext(ctx, "update parcel set name = $1, updated_at = now() where uuid = $2", name, uuid)
	if err != nil {
		return fmt.Errorf("RenameParcel.exec: %w", err)
	}
	return checkAffected(res, uuid)
}

// SetParcelGeometry implements ParcelBackend
func (b Backend) SetParcelGeometry(ctx context.Context, uuid string, g db.Geometry) error {
	var file sql.NullString
	if g.File != "" {
		file = sql.NullString{String: g.File, Valid: true}
	}
	res, err := b.ExecContext(ctx, "update parcel set file = $1, geom = ST_Multi(ST_GeomFromText($2, $3)), buffer_extent = $4, updated_at = now() where uuid = $5",
		file, g.WKT, g.SRID, pq.Array(g.BufferExtent[:]), uuid)
	if err != nil {
		return fmt.Errorf("SetParcelGeometry.exec: %w", err)
	}
	return checkAffected(res, uuid)
}

// DeleteParcel implements ParcelBackend
func (b Backend) DeleteParcel(ctx context.Context, uuid string) error {
	res, err := b.ExecContext(ctx, "delete from parcel where uuid = $1", uuid)
	if err != nil {
		return fmt.Errorf("DeleteParcel.exec: %w", err)
	}
	return checkAffected(res, uuid)
}
