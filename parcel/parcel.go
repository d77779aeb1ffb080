// Package parcel is the write path of the parcels: the geometry of a parcel is derived
// once, when a file is uploaded (or a geometry given), inside the transaction persisting the record.
package parcel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	db "github.com/eudr-packhouse/parcel-ingester/interface/database"
	"github.com/eudr-packhouse/parcel-ingester/interface/messaging"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/processor"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/geometry"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned when the input of a write is inconsistent
type ErrInvalidInput struct {
	Msg string
}

func (e ErrInvalidInput) Error() string {
	return "invalid input: " + e.Msg
}

// ErrNoGeometry is returned when the geometry of a parcel has not been derived
type ErrNoGeometry struct {
	UUID string
}

func (e ErrNoGeometry) Error() string {
	return fmt.Sprintf("parcel %s has no geometry", e.UUID)
}

// Input of the creation of a parcel.
// Exactly one of File or Geometry must be given.
type Input struct {
	Name       string
	RecordType common.RecordType
	File       *processor.Upload
	// Geometry as GeoJSON or (E)WKT
	Geometry []byte
	// GeometrySRID is the srid of a Geometry that does not declare one (default: EPSG:4326)
	GeometrySRID int
}

func (in Input) check() error {
	switch {
	case in.File != nil && len(in.Geometry) > 0:
		return ErrInvalidInput{"a parcel is defined either by a file or by a geometry, not both"}
	case in.File == nil && len(in.Geometry) == 0:
		return ErrInvalidInput{"a file or a geometry is required"}
	case !in.RecordType.IsARecordType():
		return ErrInvalidInput{fmt.Sprintf("unknown record type %d", in.RecordType)}
	}
	return nil
}

// UpdateInput of the update of a parcel. Nil fields are left unchanged.
type UpdateInput struct {
	Name *string
	// File is a fresh upload: the geometry is derived again
	File *processor.Upload
}

// Service manages the parcels and their geometries
type Service struct {
	db      db.ParcelDBBackend
	storage service.Storage
	events  messaging.Publisher
	workdir string
	opts    pipeline.Options
	locks   *lockTable

	publishDelay   time.Duration
	publishRetries int
	now            func() time.Time
}

// NewService creates the service. events is optional.
func NewService(db db.ParcelDBBackend, storage service.Storage, events messaging.Publisher, workdir string, opts pipeline.Options) *Service {
	return &Service{
		db:             db,
		storage:        storage,
		events:         events,
		workdir:        workdir,
		opts:           opts,
		locks:          newLockTable(),
		publishDelay:   time.Second,
		publishRetries: 3,
		now:            time.Now,
	}
}

// Recomputing returns true while the geometry of the parcel is being derived
func (s *Service) Recomputing(uuid string) bool {
	return s.locks.recomputing(uuid)
}

// derive runs the pipeline on the file (or the geometry) and persists the derived fields of the parcel.
// The caller holds the lock of the parcel.
func (s *Service) derive(ctx context.Context, tx db.ParcelTxBackend, p common.Parcel, file *processor.Upload, geom []byte, geomSRID int) (db.Geometry, error) {
	s.locks.setRecomputing(p.UUID, true)
	defer s.locks.setRecomputing(p.UUID, false)

	var g db.Geometry
	if file != nil {
		out, err := processor.ProcessFile(ctx, s.storage, p.RecordType, p.UUID, *file, s.workdir, s.opts)
		if err != nil {
			return g, fmt.Errorf("derive.%w", err)
		}
		g = db.Geometry{File: out.File, WKT: out.WKT, SRID: out.SRID, BufferExtent: out.Extent}
	} else {
		og, srid, err := service.ParseGeometry(geom)
		if err != nil {
			return g, fmt.Errorf("derive.%w", err)
		}
		if srid == 0 {
			srid = geomSRID
		}
		res, err := pipeline.Normalize(ctx, og, crs.Canonical(srid), s.opts)
		if err != nil {
			return g, fmt.Errorf("derive.%w", err)
		}
		g = db.Geometry{WKT: res.WKT, SRID: res.SRID, BufferExtent: res.Extent}
	}

	if err := tx.SetParcelGeometry(ctx, p.UUID, g); err != nil {
		return g, fmt.Errorf("derive.%w", err)
	}
	return g, nil
}

func applyGeometry(p *common.Parcel, g db.Geometry) {
	p.File = g.File
	p.Geom = g.WKT
	p.SRID = g.SRID
	extent := g.BufferExtent
	p.BufferExtent = &extent
}

// deleteFile removes a file from the storage, logging the failure
func (s *Service) deleteFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil && !errors.As(err, &service.ErrFileNotFound{}) {
		log.Logger(ctx).Warn("unable to delete file", zap.String("file", key), zap.Error(err))
	}
}

// Create creates a parcel and derives its geometry.
// On error, nothing is persisted.
func (s *Service) Create(ctx context.Context, in Input) (common.Parcel, error) {
	if err := in.check(); err != nil {
		return common.Parcel{}, err
	}
	now := s.now()
	p := common.Parcel{UUID: uuid.New().String(), Name: in.Name, RecordType: in.RecordType, CreatedAt: now, UpdatedAt: now}
	ctx = log.With(ctx, "parcel", p.UUID)

	unlock := s.locks.lock(p.UUID)
	defer unlock()

	var g db.Geometry
	err := db.UnitOfWork(ctx, s.db, func(tx db.ParcelTxBackend) error {
		if err := tx.CreateParcel(ctx, p); err != nil {
			return err
		}
		var err error
		g, err = s.derive(ctx, tx, p, in.File, in.Geometry, in.GeometrySRID)
		return err
	})
	if err != nil {
		s.deleteFile(ctx, g.File)
		return common.Parcel{}, fmt.Errorf("Create.%w", err)
	}
	applyGeometry(&p, g)
	log.Logger(ctx).Info("parcel created", zap.String("file", p.File))
	s.publish(ctx, p)
	return p, nil
}

// Update renames the parcel and/or derives its geometry from a fresh upload.
// Without a new file, no geometry work is done.
func (s *Service) Update(ctx context.Context, uuid string, in UpdateInput) (common.Parcel, error) {
	ctx = log.With(ctx, "parcel", uuid)
	unlock := s.locks.lock(uuid)
	defer unlock()

	var old common.Parcel
	var g db.Geometry
	err := db.UnitOfWork(ctx, s.db, func(tx db.ParcelTxBackend) error {
		var err error
		if old, err = tx.ReadParcel(ctx, uuid, true); err != nil {
			return err
		}
		if in.Name != nil && *in.Name != old.Name {
			if err := tx.RenameParcel(ctx, uuid, *in.Name); err != nil {
				return err
			}
		}
		if in.File != nil {
			g, err = s.derive(ctx, tx, old, in.File, nil, 0)
		}
		return err
	})
	if err != nil {
		s.deleteFile(ctx, g.File)
		return common.Parcel{}, fmt.Errorf("Update.%w", err)
	}

	p, err := s.db.ReadParcel(ctx, uuid, false)
	if err != nil {
		return common.Parcel{}, fmt.Errorf("Update.%w", err)
	}
	if in.File != nil {
		if old.File != g.File {
			s.deleteFile(ctx, old.File)
		}
		log.Logger(ctx).Info("parcel geometry updated", zap.String("file", p.File))
		s.publish(ctx, p)
	}
	return p, nil
}

// Get returns the parcel
func (s *Service) Get(ctx context.Context, uuid string) (common.Parcel, error) {
	p, err := s.db.ReadParcel(ctx, uuid, false)
	if err != nil {
		return p, fmt.Errorf("Get.%w", err)
	}
	return p, nil
}

// List returns the parcels fitting the parameters (see db.ParcelBackend.Parcels)
func (s *Service) List(ctx context.Context, name string, recordType *common.RecordType, page, limit int) ([]common.Parcel, error) {
	parcels, err := s.db.Parcels(ctx, name, recordType, page, limit)
	if err != nil {
		return nil, fmt.Errorf("List.%w", err)
	}
	return parcels, nil
}

// Delete deletes the parcel and its file
func (s *Service) Delete(ctx context.Context, uuid string) error {
	ctx = log.With(ctx, "parcel", uuid)
	unlock := s.locks.lock(uuid)
	defer unlock()

	var p common.Parcel
	if err := db.UnitOfWork(ctx, s.db, func(tx db.ParcelTxBackend) error {
		var err error
		if p, err = tx.ReadParcel(ctx, uuid, true); err != nil {
			return err
		}
		return tx.DeleteParcel(ctx, uuid)
	}); err != nil {
		return fmt.Errorf("Delete.%w", err)
	}
	s.deleteFile(ctx, p.File)
	log.Logger(ctx).Info("parcel deleted")
	return nil
}

// Validate checks that the file can be ingested, without persisting anything
func (s *Service) Validate(ctx context.Context, r io.Reader, filename string) error {
	ext := service.GetExt(filename)
	if !common.IsSupportedExt(ext) {
		return service.MakeFormatError(service.MsgUnsupportedExtension, fmt.Errorf("file %q", filename))
	}
	dir, err := os.MkdirTemp(s.workdir, "validate-")
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("Validate.MkdirTemp: %w", err))
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, common.FileName("upload", ext))
	if err := atomic.WriteFile(path, r); err != nil {
		return service.MakeTemporary(fmt.Errorf("Validate.WriteFile: %w", err))
	}
	return pipeline.Validate(ctx, path)
}

// GeoJSON returns the parcel as a GeoJSON Feature, in EPSG:4326
func (s *Service) GeoJSON(ctx context.Context, uuid string) (*geojson.Feature, error) {
	p, err := s.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if !p.HasGeometry() {
		return nil, ErrNoGeometry{UUID: uuid}
	}
	g, err := geometry.DecodeWKT(p.Geom)
	if err != nil {
		return nil, fmt.Errorf("GeoJSON.%w", err)
	}
	og, err := geometry.ToOrb(g)
	if err != nil {
		return nil, fmt.Errorf("GeoJSON.%w", err)
	}
	if og, err = crs.Project(og, p.SRID, crs.WGS84); err != nil {
		return nil, fmt.Errorf("GeoJSON.%w", err)
	}
	f := geojson.NewFeature(og)
	f.ID = p.UUID
	f.Properties["name"] = p.Name
	f.Properties["record_type"] = p.RecordType.String()
	if p.BufferExtent != nil {
		f.Properties["buffer_extent"] = p.BufferExtent[:]
	}
	return f, nil
}

// publish notifies that the geometry of the parcel has been derived.
// A failure is logged: it never fails the write.
func (s *Service) publish(ctx context.Context, p common.Parcel) {
	if s.events == nil || p.BufferExtent == nil {
		return
	}
	evt := common.GeometryUpdated{
		UUID:         p.UUID,
		RecordType:   p.RecordType,
		SRID:         p.SRID,
		BufferExtent: *p.BufferExtent,
		File:         p.File,
		Date:         s.now(),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		log.Logger(ctx).Warn("unable to marshal event", zap.Error(err))
		return
	}
	if err := service.Retriable(ctx, func() error {
		return s.events.Publish(ctx, b)
	}, s.publishDelay, s.publishRetries); err != nil {
		log.Logger(ctx).Warn("unable to publish geometry event", zap.Error(err))
	}
}
