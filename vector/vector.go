// Package vector reads and writes the vector layers accepted on upload
// (GeoPackage, GeoJSON, ESRI Shapefile, possibly zipped).
package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

//go:generate enumer -json -type GeometryType -trimprefix GeometryType

// GeometryType declared by a layer or carried by a feature
type GeometryType int

const (
	GeometryTypeUnknown GeometryType = iota
	GeometryTypePoint
	GeometryTypeLineString
	GeometryTypePolygon
	GeometryTypeMultiPoint
	GeometryTypeMultiLineString
	GeometryTypeMultiPolygon
	GeometryTypeGeometryCollection
)

// IsPolygonal returns true for Polygon and MultiPolygon
func (t GeometryType) IsPolygonal() bool {
	return t == GeometryTypePolygon || t == GeometryTypeMultiPolygon
}

// GeometryTypeOf returns the type of an orb geometry
func GeometryTypeOf(g orb.Geometry) GeometryType {
	if g == nil {
		return GeometryTypeUnknown
	}
	switch g.(type) {
	case orb.Ring:
		return GeometryTypeLineString
	case orb.Bound:
		return GeometryTypePolygon
	case orb.Collection:
		return GeometryTypeGeometryCollection
	}
	t, err := GeometryTypeString(g.GeoJSONType())
	if err != nil {
		return GeometryTypeUnknown
	}
	return t
}

// Driver is the encoding of a vector file
type Driver string

const (
	GeoPackage Driver = "GPKG"
	GeoJSON    Driver = "GeoJSON"
	Shapefile  Driver = "ESRI Shapefile"
)

// Ext returns the file extension of the driver, without dot
func (d Driver) Ext() string {
	switch d {
	case GeoPackage:
		return "gpkg"
	case GeoJSON:
		return "geojson"
	case Shapefile:
		return "shp"
	}
	return ""
}

// ErrUnsupportedFormat is returned for files that no driver can read
type ErrUnsupportedFormat struct {
	Path string
}

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported vector format: %s", filepath.Base(e.Path))
}

// ErrOpen is returned when a driver fails to open a file
type ErrOpen struct {
	Path   string
	Driver Driver
	Err    error
}

func (e ErrOpen) Error() string {
	return fmt.Sprintf("%s: cannot open %s: %v", e.Driver, filepath.Base(e.Path), e.Err)
}

func (e ErrOpen) Unwrap() error { return e.Err }

// DriverFor returns the driver of the file given its extension
func DriverFor(path string) (Driver, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		return GeoPackage, nil
	case ".geojson", ".json":
		return GeoJSON, nil
	case ".shp":
		return Shapefile, nil
	}
	return "", ErrUnsupportedFormat{Path: path}
}

// Feature is a geometry and its attributes
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Layer is a set of features sharing a schema and a reference system
type Layer struct {
	Name string
	// SRID of the declared reference system, 0 if none is declared or if it cannot be identified
	SRID int
	// CRS is the declared definition, as found in the file (empty if none)
	CRS          string
	GeometryType GeometryType
	// Fields are the attribute names, in schema order
	Fields   []string
	Features []Feature
}

// AddField appends the field to the schema if it does not exist yet
func (l *Layer) AddField(name string) {
	for _, f := range l.Fields {
		if f == name {
			return
		}
	}
	l.Fields = append(l.Fields, name)
}

// Bound returns the bounding box of all the features
func (l *Layer) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
		} else {
			b = b.Union(f.Geometry.Bound())
		}
	}
	return b
}

// featuresType returns the narrowest type describing all the geometries
// Polygon and MultiPolygon are promoted to MultiPolygon.
func featuresType(features []Feature) GeometryType {
	res := GeometryTypeUnknown
	for _, f := range features {
		t := GeometryTypeOf(f.Geometry)
		switch {
		case t == GeometryTypeUnknown:
			continue
		case res == GeometryTypeUnknown:
			res = t
		case res == t:
		case res.IsPolygonal() && t.IsPolygonal():
			res = GeometryTypeMultiPolygon
		default:
			return GeometryTypeGeometryCollection
		}
	}
	return res
}

// Read reads the layer of a vector file (not an archive, see FirstLayer)
func Read(ctx context.Context, path string) (*Layer, error) {
	driver, err := DriverFor(path)
	if err != nil {
		return nil, err
	}
	switch driver {
	case GeoPackage:
		return readGPKG(ctx, path)
	case GeoJSON:
		return readGeoJSON(ctx, path)
	default:
		return readShapefile(ctx, path)
	}
}

// Write writes the layer into a new file using the driver matching its extension.
// Shapefiles are read-only.
func Write(ctx context.Context, path string, layer *Layer) error {
	driver, err := DriverFor(path)
	if err != nil {
		return err
	}
	switch driver {
	case GeoPackage:
		return writeGPKG(ctx, path, layer)
	case GeoJSON:
		return writeGeoJSON(ctx, path, layer)
	}
	return fmt.Errorf("Write: %s driver is read-only", driver)
}
