// Package pipeline normalizes an uploaded vector file into a single MultiPolygon
// in the target reference system, with the extent of a small buffer around it.
//
// Each stage rewrites the working file: the new version is written next to it
// and renamed over the canonical path.
package pipeline

import (
	"context"
	"fmt"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/geometry"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/eudr-packhouse/parcel-ingester/vector"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// DefaultBufferDegrees is the distance of the buffer around the geometry, in degrees
const DefaultBufferDegrees = 0.002

//go:generate enumer -json -type Stage -trimprefix Stage

// Stage reached by a working file
type Stage int

const (
	StageUploaded Stage = iota
	StageUnpacked
	StageReprojected
	StageSplit
	StageCollapsed
)

//go:generate enumer -json -type AttributePolicy -transform snake

// AttributePolicy defines the properties of the feature resulting from the collapse
type AttributePolicy int

const (
	// KeepFirst keeps the properties of the first feature
	KeepFirst AttributePolicy = iota
	// DropAll drops all the properties
	DropAll
)

// WorkingFile is the local file being normalized
type WorkingFile struct {
	Path   string
	Driver vector.Driver
	// SRID of the features, 0 until it is known
	SRID  int
	Stage Stage
}

// ErrNotCollapsed is returned when the geometry is extracted from a file
// that has not been collapsed into a single feature
type ErrNotCollapsed struct {
	Stage Stage
}

func (e ErrNotCollapsed) Error() string {
	return fmt.Sprintf("working file is not collapsed (stage: %s)", e.Stage)
}

// Steps of Run
const (
	stepValidate  = "validate"
	stepUnpack    = "unpack"
	stepReproject = "reproject"
	stepSplit     = "split"
	stepCollapse  = "collapse"
	stepExtract   = "extract"
	stepExtent    = "extent"
)

// Options of the normalization
type Options struct {
	TargetSRID      int
	BufferDegrees   float64
	AttributePolicy AttributePolicy

	// failAfter makes Run fail after the given step
	failAfter string
}

func (o Options) withDefaults() Options {
	if o.TargetSRID == 0 {
		o.TargetSRID = crs.WebMercator
	}
	if o.BufferDegrees == 0 {
		o.BufferDegrees = DefaultBufferDegrees
	}
	return o
}

func (o Options) check(step string) error {
	if o.failAfter == step {
		return service.MakeProcessingError(service.MsgProcessing, fmt.Errorf("failure injected after %s", step))
	}
	return nil
}

// Result of a normalization
type Result struct {
	// Path of the normalized file (empty if the geometry did not come from a file)
	Path     string
	WKT      string
	SRID     int
	Extent   common.Extent
	Rings    int
	Polygons int
}

// Run validates and normalizes the vector file. The file is rewritten in place
// (a zip is replaced by a GeoPackage, see Result.Path).
// On error, the upload and every working file are deleted.
func Run(ctx context.Context, path string, opts Options) (res Result, err error) {
	opts = opts.withDefaults()
	ctx = log.With(ctx, "file", path)
	wf := WorkingFile{Path: path, Stage: StageUploaded}
	defer func() {
		if err != nil {
			log.Logger(ctx).Info("normalization failed", zap.String("stage", wf.Stage.String()), zap.Error(err))
			cleanup(ctx, path, wf.Path)
		}
	}()

	if err := Validate(ctx, path); err != nil {
		return Result{}, err
	}
	if err := opts.check(stepValidate); err != nil {
		return Result{}, err
	}

	steps := []struct {
		name string
		fn   func(WorkingFile) (WorkingFile, error)
	}{
		{stepUnpack, func(wf WorkingFile) (WorkingFile, error) { return Unpack(ctx, wf.Path) }},
		{stepReproject, func(wf WorkingFile) (WorkingFile, error) { return Reproject(ctx, wf, opts.TargetSRID) }},
		{stepSplit, func(wf WorkingFile) (WorkingFile, error) { return SplitToPolygons(ctx, wf) }},
		{stepCollapse, func(wf WorkingFile) (WorkingFile, error) { return CollapseToMultiPolygon(ctx, wf, opts.AttributePolicy) }},
	}
	for _, step := range steps {
		log.Logger(ctx).Debug(step.name)
		next, err := step.fn(wf)
		if err != nil {
			return Result{}, err
		}
		wf = next
		if err := opts.check(step.name); err != nil {
			return Result{}, err
		}
	}

	log.Logger(ctx).Debug(stepExtract)
	wkt, err := ExtractGeometry(ctx, wf)
	if err != nil {
		return Result{}, err
	}
	if err := opts.check(stepExtract); err != nil {
		return Result{}, err
	}

	res, err = finalize(ctx, wkt, opts)
	if err != nil {
		return Result{}, err
	}
	if err := opts.check(stepExtent); err != nil {
		return Result{}, err
	}
	res.Path = wf.Path
	log.Logger(ctx).Info("file normalized", zap.Int("polygons", res.Polygons), zap.Int("rings", res.Rings), zap.Stringer("extent", res.Extent))
	return res, nil
}

// finalize derives the buffer extent and the statistics of the canonical geometry
func finalize(ctx context.Context, wkt string, opts Options) (Result, error) {
	log.Logger(ctx).Debug(stepExtent)
	g, err := geometry.DecodeWKT(wkt)
	if err != nil {
		return Result{}, service.MakeProcessingError(service.MsgProcessing, err)
	}
	mp, err := geometry.MergeToMultiPolygon(g)
	if err != nil {
		return Result{}, service.MakeGeometryTypeError(err)
	}
	bounds, err := geometry.Bounds(wkt)
	if err != nil {
		return Result{}, service.MakeProcessingError(service.MsgProcessing, err)
	}
	center, err := crs.Project(orb.Point{(bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2}, opts.TargetSRID, crs.WGS84)
	if err != nil {
		return Result{}, service.MakeProcessingError(service.MsgProcessing, err)
	}
	distance, err := crs.BufferDistance(opts.TargetSRID, opts.BufferDegrees, center.(orb.Point))
	if err != nil {
		return Result{}, service.MakeProcessingError(service.MsgProcessing, err)
	}
	extent, err := DeriveExtent(wkt, distance)
	if err != nil {
		return Result{}, err
	}
	return Result{
		WKT:      wkt,
		SRID:     opts.TargetSRID,
		Extent:   extent,
		Rings:    geometry.CountRings(mp),
		Polygons: len(mp),
	}, nil
}

// Normalize applies the normalization to a geometry given by the user instead of a file
func Normalize(ctx context.Context, g orb.Geometry, srid int, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if srid == 0 {
		srid = crs.WGS84
	}
	layer := &vector.Layer{
		Name:         "geometry",
		SRID:         srid,
		GeometryType: vector.GeometryTypeOf(g),
		Features:     []vector.Feature{{Geometry: g, Properties: map[string]interface{}{}}},
	}
	if !layer.GeometryType.IsPolygonal() {
		return Result{}, service.MakeGeometryTypeError(fmt.Errorf("geometry type %s", layer.GeometryType))
	}
	layer, err := reprojectLayer(layer, opts.TargetSRID)
	if err != nil {
		return Result{}, service.MakeProcessingError(service.MsgProcessing, err)
	}
	if layer, err = splitLayer(ctx, layer); err != nil {
		return Result{}, err
	}
	if layer, err = collapseLayer(layer, DropAll); err != nil {
		return Result{}, err
	}
	wkt, err := layerWKT(layer)
	if err != nil {
		return Result{}, err
	}
	return finalize(ctx, wkt, opts)
}
