package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const shpFileCode = 9994

// sibling returns the path of the file with the same basename and the given extension,
// whatever the case of the extension
func sibling(path, ext string) (string, bool) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, e := range []string{strings.ToLower(ext), strings.ToUpper(ext)} {
		if _, err := os.Stat(base + e); err == nil {
			return base + e, true
		}
	}
	return "", false
}

func checkShpHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var code int32
	if err := binary.Read(f, binary.BigEndian, &code); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if code != shpFileCode {
		return fmt.Errorf("invalid file code %d", code)
	}
	if st, err := f.Stat(); err != nil || st.Size() < 100 {
		return fmt.Errorf("truncated header")
	}
	return nil
}

func shpGeometryType(t shp.ShapeType) GeometryType {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return GeometryTypePoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return GeometryTypeMultiLineString
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return GeometryTypePolygon
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return GeometryTypeMultiPoint
	}
	return GeometryTypeUnknown
}

// shpRings splits the points of a shape into rings
func shpRings(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// shpPolygon assembles shapefile rings into a Polygon or a MultiPolygon.
// Outer rings are clockwise, holes are counter-clockwise and belong to the
// outer ring that contains them. Files that do not follow the winding rule
// are assembled by containment.
func shpPolygon(rings []orb.Ring) orb.Geometry {
	var (
		polygons orb.MultiPolygon
		holes    []orb.Ring
	)
	for _, r := range rings {
		if r.Orientation() == orb.CCW {
			holes = append(holes, r)
		} else {
			polygons = append(polygons, orb.Polygon{r})
		}
	}
	for _, h := range holes {
		owner := -1
		for i := len(polygons) - 1; i >= 0; i-- {
			if planar.RingContains(polygons[i][0], h[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			return polygonsByContainment(rings)
		}
		polygons[owner] = append(polygons[owner], h)
	}
	return collectPolygons(polygons)
}

// polygonsByContainment ignores the winding order: a ring nested in an odd
// number of rings is a hole of its innermost container, otherwise a shell.
// Shells are made clockwise and holes counter-clockwise.
func polygonsByContainment(rings []orb.Ring) orb.Geometry {
	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i, r := range rings {
		parent[i] = -1
		for j, o := range rings {
			if i == j || len(r) == 0 || !planar.RingContains(o, r[0]) {
				continue
			}
			depth[i]++
			// the innermost container has the smallest area
			if parent[i] < 0 || math.Abs(planar.Area(o)) < math.Abs(planar.Area(rings[parent[i]])) {
				parent[i] = j
			}
		}
	}
	var polygons orb.MultiPolygon
	shell := make(map[int]int, len(rings))
	for i, r := range rings {
		if depth[i]%2 == 0 {
			if r.Orientation() == orb.CCW {
				r.Reverse()
			}
			shell[i] = len(polygons)
			polygons = append(polygons, orb.Polygon{r})
		}
	}
	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		if r.Orientation() == orb.CW {
			r.Reverse()
		}
		p := shell[parent[i]]
		polygons[p] = append(polygons[p], r)
	}
	return collectPolygons(polygons)
}

func collectPolygons(polygons orb.MultiPolygon) orb.Geometry {
	switch len(polygons) {
	case 0:
		return nil
	case 1:
		return polygons[0]
	}
	return polygons
}

func shpGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return shpPolygon(shpRings(s.Parts, s.Points)), nil
	case *shp.PolygonZ:
		return shpPolygon(shpRings(s.Parts, s.Points)), nil
	case *shp.PolygonM:
		return shpPolygon(shpRings(s.Parts, s.Points)), nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PolyLine:
		var mls orb.MultiLineString
		for _, r := range shpRings(s.Parts, s.Points) {
			mls = append(mls, orb.LineString(r))
		}
		return mls, nil
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, 0, len(s.Points))
		for _, p := range s.Points {
			mp = append(mp, orb.Point{p.X, p.Y})
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported shape %T", shape)
}

// shpValue converts a dbf attribute to a typed value
func shpValue(field shp.Field, raw string) interface{} {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if raw == "" {
		return nil
	}
	switch field.Fieldtype {
	case 'N', 'F':
		if field.Precision == 0 {
			if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return i
			}
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case 'L':
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	}
	return raw
}

func readShapefile(ctx context.Context, path string) (*Layer, error) {
	if err := checkShpHeader(path); err != nil {
		return nil, ErrOpen{Path: path, Driver: Shapefile, Err: err}
	}
	// go-shp expects a lowercase extension
	if filepath.Ext(path) != ".shp" {
		return nil, ErrOpen{Path: path, Driver: Shapefile, Err: fmt.Errorf("extension must be .shp")}
	}
	r, err := shp.Open(path)
	if err != nil {
		return nil, ErrOpen{Path: path, Driver: Shapefile, Err: err}
	}
	defer r.Close()

	layer := Layer{
		Name:         layerName(path),
		GeometryType: shpGeometryType(r.GeometryType),
		SRID:         crs.WGS84,
	}
	if prj, ok := sibling(path, ".prj"); ok {
		def, err := os.ReadFile(prj)
		if err != nil {
			return nil, ErrOpen{Path: prj, Driver: Shapefile, Err: err}
		}
		layer.SRID = 0
		layer.CRS = strings.TrimSpace(string(def))
		if srid, err := crs.ParsePRJ(layer.CRS); err == nil {
			layer.SRID = srid
		}
	}

	var fields []shp.Field
	if _, err := os.Stat(strings.TrimSuffix(path, ".shp") + ".dbf"); err == nil {
		fields = r.Fields()
		for _, f := range fields {
			layer.AddField(f.String())
		}
	}

	for r.Next() {
		n, shape := r.Shape()
		g, err := shpGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("readShapefile[%d]: %w", n, err)
		}
		f := Feature{Geometry: g, Properties: map[string]interface{}{}}
		for i, field := range fields {
			f.Properties[field.String()] = shpValue(field, r.ReadAttribute(n, i))
		}
		layer.Features = append(layer.Features, f)
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("readShapefile: %w", err)
	}
	return &layer, nil
}
