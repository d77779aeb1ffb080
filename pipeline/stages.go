package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/geometry"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/eudr-packhouse/parcel-ingester/vector"
	"github.com/paulmach/orb"
)

// readError translates an error raised while reading or writing a working file
func readError(err error) error {
	var errOpen vector.ErrOpen
	if errors.As(err, &errOpen) {
		return service.MakeFormatError(service.MsgInvalidFormat, err)
	}
	return service.MakeProcessingError(service.MsgProcessing, err)
}

func fileExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// openLayer reads the layer of a supported upload. Zip archives are extracted in a temporary directory.
func openLayer(ctx context.Context, path string) (*vector.Layer, error) {
	if fileExt(path) != common.ExtZIP {
		return vector.Read(ctx, path)
	}
	dir, err := os.MkdirTemp(filepath.Dir(path), "unzip-")
	if err != nil {
		return nil, fmt.Errorf("MkdirTemp: %w", err)
	}
	defer os.RemoveAll(dir)
	layerPath, err := vector.FirstLayer(ctx, path, dir)
	if err != nil {
		return nil, vector.ErrOpen{Path: path, Driver: "zip", Err: err}
	}
	return vector.Read(ctx, layerPath)
}

// Validate checks that the file is a supported vector file whose layer is polygonal
func Validate(ctx context.Context, path string) error {
	if !common.IsSupportedExt(fileExt(path)) {
		return service.MakeFormatError(service.MsgUnsupportedExtension, fmt.Errorf("extension %q", filepath.Ext(path)))
	}
	layer, err := openLayer(ctx, path)
	if err != nil {
		return service.MakeFormatError(service.MsgInvalidFormat, err)
	}
	if !layer.GeometryType.IsPolygonal() {
		return service.MakeGeometryTypeError(fmt.Errorf("layer %s: %s", layer.Name, layer.GeometryType))
	}
	return nil
}

// Unpack re-encodes the first layer of a zip archive into a GeoPackage next to it,
// and deletes the archive. Other files are passed through.
func Unpack(ctx context.Context, path string) (WorkingFile, error) {
	ext := fileExt(path)
	if !common.IsSupportedExt(ext) {
		return WorkingFile{}, service.MakeFormatError(service.MsgUnsupportedExtension, fmt.Errorf("extension %q", filepath.Ext(path)))
	}
	if ext != common.ExtZIP {
		driver, err := vector.DriverFor(path)
		if err != nil {
			return WorkingFile{}, service.MakeFormatError(service.MsgUnsupportedExtension, err)
		}
		return WorkingFile{Path: path, Driver: driver, Stage: StageUploaded}, nil
	}

	layer, err := openLayer(ctx, path)
	if err != nil {
		return WorkingFile{}, service.MakeFormatError(service.MsgInvalidFormat, err)
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + common.ExtGPKG
	if err := replace(ctx, out, layer); err != nil {
		removeFile(out)
		return WorkingFile{}, service.MakeFormatError(service.MsgInvalidFormat, fmt.Errorf("Unpack.%w", err))
	}
	if err := removeFile(path); err != nil {
		removeFile(out)
		return WorkingFile{}, service.MakeProcessingError(service.MsgProcessing, fmt.Errorf("Unpack.Remove: %w", err))
	}
	log.Logger(ctx).Sugar().Debugf("layer %s unpacked into %s", layer.Name, filepath.Base(out))
	return WorkingFile{Path: out, Driver: vector.GeoPackage, SRID: layer.SRID, Stage: StageUnpacked}, nil
}

// sourceSRID returns the srid of the layer, EPSG:4326 if none is declared
func sourceSRID(layer *vector.Layer) (int, error) {
	if layer.SRID != 0 {
		return layer.SRID, nil
	}
	if layer.CRS != "" {
		return 0, crs.ErrUnsupported{Desc: layer.CRS}
	}
	return crs.WGS84, nil
}

func reprojectLayer(layer *vector.Layer, target int) (*vector.Layer, error) {
	src, err := sourceSRID(layer)
	if err != nil {
		return nil, err
	}
	out := *layer
	out.SRID = target
	out.CRS = crs.URN(target)
	out.Features = make([]vector.Feature, len(layer.Features))
	for i, f := range layer.Features {
		out.Features[i] = vector.Feature{Properties: f.Properties}
		if f.Geometry == nil {
			continue
		}
		if out.Features[i].Geometry, err = crs.Project(f.Geometry, src, target); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return &out, nil
}

// Reproject transforms the coordinates of every feature into the target srid
func Reproject(ctx context.Context, wf WorkingFile, targetSRID int) (WorkingFile, error) {
	if _, err := crs.Lookup(targetSRID); err != nil {
		return WorkingFile{}, service.MakeProcessingError(service.MsgProcessing, fmt.Errorf("Reproject: %w", err))
	}
	err := rewrite(ctx, wf.Path, func(layer *vector.Layer) (*vector.Layer, error) {
		log.Logger(ctx).Sugar().Debugf("reproject %s from EPSG:%d to EPSG:%d", layer.Name, layer.SRID, targetSRID)
		return reprojectLayer(layer, targetSRID)
	})
	if err != nil {
		return WorkingFile{}, readError(fmt.Errorf("Reproject.%w", err))
	}
	wf.SRID = targetSRID
	wf.Stage = StageReprojected
	return wf, nil
}

func copyProperties(p map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(p))
	for k, v := range p {
		res[k] = v
	}
	return res
}

func splitLayer(ctx context.Context, layer *vector.Layer) (*vector.Layer, error) {
	out := *layer
	out.GeometryType = vector.GeometryTypePolygon
	out.Features = make([]vector.Feature, 0, len(layer.Features))
	for i, f := range layer.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			out.Features = append(out.Features, vector.Feature{Geometry: g, Properties: copyProperties(f.Properties)})
		case orb.MultiPolygon:
			for _, p := range g {
				out.Features = append(out.Features, vector.Feature{Geometry: p, Properties: copyProperties(f.Properties)})
			}
		case nil:
			log.Logger(ctx).Sugar().Warnf("feature %d of %s has no geometry: skipped", i, layer.Name)
		default:
			return nil, service.MakeGeometryTypeError(fmt.Errorf("feature %d: %s", i, g.GeoJSONType()))
		}
	}
	return &out, nil
}

// SplitToPolygons rewrites the file so that every feature is a Polygon.
// A MultiPolygon feature becomes one feature per polygon, with the same properties.
func SplitToPolygons(ctx context.Context, wf WorkingFile) (WorkingFile, error) {
	err := rewrite(ctx, wf.Path, func(layer *vector.Layer) (*vector.Layer, error) {
		return splitLayer(ctx, layer)
	})
	if err != nil {
		if _, ok := service.AsError(err); ok {
			return WorkingFile{}, err
		}
		return WorkingFile{}, readError(fmt.Errorf("SplitToPolygons.%w", err))
	}
	wf.Stage = StageSplit
	return wf, nil
}

func collapseLayer(layer *vector.Layer, policy AttributePolicy) (*vector.Layer, error) {
	polygons := make([]orb.Polygon, 0, len(layer.Features))
	for i, f := range layer.Features {
		p, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return nil, service.MakeGeometryTypeError(fmt.Errorf("feature %d: %s", i, vector.GeometryTypeOf(f.Geometry)))
		}
		if len(p) > 0 {
			polygons = append(polygons, p)
		}
	}
	if len(polygons) == 0 {
		return nil, service.MakeEmptyError()
	}

	parts := make([]orb.Geometry, len(polygons))
	for i, p := range polygons {
		parts[i] = p
	}
	g, err := mergePolygons(parts)
	if err != nil {
		return nil, err
	}

	out := *layer
	out.GeometryType = vector.GeometryTypeMultiPolygon
	feature := vector.Feature{Geometry: g, Properties: map[string]interface{}{}}
	switch policy {
	case KeepFirst:
		feature.Properties = copyProperties(layer.Features[0].Properties)
	case DropAll:
		out.Fields = nil
	default:
		return nil, fmt.Errorf("unknown attribute policy %d", policy)
	}
	out.Features = []vector.Feature{feature}
	return &out, nil
}

// mergePolygons aggregates the polygons into a MultiPolygon, in order
func mergePolygons(parts []orb.Geometry) (orb.MultiPolygon, error) {
	var mp orb.MultiPolygon
	for _, p := range parts {
		g, err := geometry.FromOrb(p)
		if err != nil {
			return nil, service.MakeGeometryTypeError(err)
		}
		merged, err := geometry.MergeToMultiPolygon(g)
		if err != nil {
			return nil, service.MakeGeometryTypeError(err)
		}
		res, err := geometry.ToOrb(merged)
		if err != nil {
			return nil, service.MakeGeometryTypeError(err)
		}
		mp = append(mp, res.(orb.MultiPolygon)...)
	}
	return mp, nil
}

// CollapseToMultiPolygon rewrites the Polygon file into a single MultiPolygon feature
// aggregating all the polygons in file order. The properties of the feature depend on the policy.
func CollapseToMultiPolygon(ctx context.Context, wf WorkingFile, policy AttributePolicy) (WorkingFile, error) {
	err := rewrite(ctx, wf.Path, func(layer *vector.Layer) (*vector.Layer, error) {
		return collapseLayer(layer, policy)
	})
	if err != nil {
		if _, ok := service.AsError(err); ok {
			return WorkingFile{}, err
		}
		return WorkingFile{}, readError(fmt.Errorf("CollapseToMultiPolygon.%w", err))
	}
	wf.Stage = StageCollapsed
	return wf, nil
}

func layerWKT(layer *vector.Layer) (string, error) {
	if n := len(layer.Features); n != 1 {
		return "", service.MakeProcessingError(service.MsgUnreadable, fmt.Errorf("expecting exactly one feature, found %d", n))
	}
	mp, ok := layer.Features[0].Geometry.(orb.MultiPolygon)
	if !ok {
		return "", service.MakeGeometryTypeError(fmt.Errorf("expecting MultiPolygon, found %s", vector.GeometryTypeOf(layer.Features[0].Geometry)))
	}
	g, err := geometry.FromOrb(mp)
	if err != nil {
		return "", service.MakeGeometryTypeError(err)
	}
	wkt, err := geometry.EncodeWKT(g)
	if err != nil {
		return "", service.MakeProcessingError(service.MsgUnreadable, err)
	}
	return wkt, nil
}

// ExtractGeometry returns the WKT of the single feature of a collapsed file
func ExtractGeometry(ctx context.Context, wf WorkingFile) (string, error) {
	if wf.Stage != StageCollapsed {
		return "", service.MakeProcessingError(service.MsgUnreadable, ErrNotCollapsed{Stage: wf.Stage})
	}
	layer, err := vector.Read(ctx, wf.Path)
	if err != nil {
		return "", service.MakeProcessingError(service.MsgUnreadable, fmt.Errorf("ExtractGeometry.%w", err))
	}
	return layerWKT(layer)
}

// DeriveExtent returns the bounding box of the planar buffer of the geometry
func DeriveExtent(wkt string, distance float64) (common.Extent, error) {
	extent, err := geometry.BufferExtent(wkt, distance)
	if err != nil {
		return common.Extent{}, service.MakeProcessingError(service.MsgProcessing, fmt.Errorf("DeriveExtent.%w", err))
	}
	return extent, nil
}
