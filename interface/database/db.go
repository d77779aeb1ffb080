package db

import (
	"context"
	"fmt"

	"github.com/eudr-packhouse/parcel-ingester/common"
)

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s alreay exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type ParcelTxBackend interface {
	ParcelBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type ParcelDBBackend interface {
	ParcelBackend
	StartTransaction(ctx context.Context) (ParcelTxBackend, error)
}

// Geometry is the derived geometry of a parcel
type Geometry struct {
	// File is the storage key of the normalized file ("" if the geometry was given by the user)
	File         string
	WKT          string
	SRID         int
	BufferExtent common.Extent
}

type ParcelBackend interface {
	// CreateParcel creates a parcel (uuid, name, record type, timestamps), may return ErrAlreadyExists
	CreateParcel(ctx context.Context, parcel common.Parcel) error
	// ReadParcel returns the parcel with the given uuid, may return ErrNotFound
	// If forUpdate, the row is locked until the end of the transaction
	ReadParcel(ctx context.Context, uuid string, forUpdate bool) (common.Parcel, error)
	// Parcels returns the list of the parcels fitting the parameters
	// name [optional=""] name pattern (* and ? wildcards, (?i) suffix for case-insensitivity)
	// recordType [optional=nil]
	Parcels(ctx context.Context, name string, recordType *common.RecordType, page, limit int) ([]common.Parcel, error)
	// RenameParcel updates the name of the parcel, may return ErrNotFound
	RenameParcel(ctx context.Context, uuid, name string) error
	// SetParcelGeometry sets the derived fields of the parcel, may return ErrNotFound
	SetParcelGeometry(ctx context.Context, uuid string, geometry Geometry) error
	// DeleteParcel deletes the parcel, may return ErrNotFound
	DeleteParcel(ctx context.Context, uuid string) error
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db ParcelDBBackend, f func(tx ParcelTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
