package geometry

import (
	"fmt"
	"math"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulmach/orb"
	"github.com/paulsmith/gogeos/geos"
)

// ErrNotPolygonal is returned when a geometry is neither a Polygon nor a MultiPolygon
type ErrNotPolygonal struct {
	Type string
}

func (e ErrNotPolygonal) Error() string {
	return fmt.Sprintf("expecting Polygon or MultiPolygon, got %s", e.Type)
}

func mergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) error {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case *geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case *geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			if err := mergeMultiPolygons(g, mp); err != nil {
				return err
			}
		}
	default:
		return ErrNotPolygonal{Type: fmt.Sprintf("%T", g)}
	}
	return nil
}

// MergeToMultiPolygon appends the polygons of all the geometries in order.
// Rings are neither dissolved nor reordered.
func MergeToMultiPolygon(geoms ...geom.Geometry) (geom.MultiPolygon, error) {
	mp := geom.MultiPolygon{}
	for _, g := range geoms {
		if err := mergeMultiPolygons(g, &mp); err != nil {
			return nil, fmt.Errorf("MergeToMultiPolygon: %w", err)
		}
	}
	return mp, nil
}

// CountRings returns the number of linear rings (shells and holes) of a polygonal geometry
func CountRings(g geom.Geometry) int {
	var mp geom.MultiPolygon
	if err := mergeMultiPolygons(g, &mp); err != nil {
		return 0
	}
	n := 0
	for _, p := range mp {
		n += len(p)
	}
	return n
}

// toRings converts orb rings (closed) to geom linear rings (implicitly closed)
func toRings(rings []orb.Ring) [][][2]float64 {
	res := make([][][2]float64, len(rings))
	for i, r := range rings {
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		res[i] = make([][2]float64, len(r))
		for j, p := range r {
			res[i][j] = p
		}
	}
	return res
}

// fromRings converts geom linear rings to closed orb rings
func fromRings(rings [][][2]float64) orb.Polygon {
	res := make(orb.Polygon, len(rings))
	for i, r := range rings {
		res[i] = make(orb.Ring, len(r), len(r)+1)
		for j, p := range r {
			res[i][j] = p
		}
		if len(r) > 0 && r[0] != r[len(r)-1] {
			res[i] = append(res[i], r[0])
		}
	}
	return res
}

// FromOrb converts a polygonal orb geometry
func FromOrb(g orb.Geometry) (geom.Geometry, error) {
	switch g := g.(type) {
	case orb.Polygon:
		return geom.Polygon(toRings(g)), nil
	case orb.MultiPolygon:
		mp := make(geom.MultiPolygon, len(g))
		for i, p := range g {
			mp[i] = toRings(p)
		}
		return mp, nil
	case nil:
		return nil, ErrNotPolygonal{Type: "empty geometry"}
	}
	return nil, ErrNotPolygonal{Type: g.GeoJSONType()}
}

// ToOrb converts a polygonal geom geometry
func ToOrb(g geom.Geometry) (orb.Geometry, error) {
	switch g := g.(type) {
	case geom.Polygon:
		return fromRings(g.LinearRings()), nil
	case *geom.Polygon:
		return fromRings(g.LinearRings()), nil
	case geom.MultiPolygon, *geom.MultiPolygon:
		var mp geom.MultiPolygon
		if err := mergeMultiPolygons(g, &mp); err != nil {
			return nil, err
		}
		res := make(orb.MultiPolygon, len(mp))
		for i, p := range mp {
			res[i] = fromRings(p)
		}
		return res, nil
	}
	return nil, ErrNotPolygonal{Type: fmt.Sprintf("%T", g)}
}

// EncodeWKT returns the WKT of the geometry
func EncodeWKT(g geom.Geometry) (string, error) {
	wkt, err := geomwkt.EncodeString(g)
	if err != nil {
		return "", fmt.Errorf("EncodeWKT: %w", err)
	}
	return wkt, nil
}

// DecodeWKT parses a WKT
func DecodeWKT(wkt string) (geom.Geometry, error) {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("DecodeWKT: %w", err)
	}
	return g, nil
}

// Envelope returns the bounding box of a geos geometry
func Envelope(g *geos.Geometry) (common.Extent, error) {
	env, err := g.Envelope()
	if err != nil {
		return common.Extent{}, fmt.Errorf("Envelope: %w", err)
	}
	// The envelope of a point is a point
	ring := env
	if t, err := env.Type(); err == nil && t == geos.POLYGON {
		if ring, err = env.Shell(); err != nil {
			return common.Extent{}, fmt.Errorf("Envelope.Shell: %w", err)
		}
	}
	coords, err := ring.Coords()
	if err != nil {
		return common.Extent{}, fmt.Errorf("Envelope.Coords: %w", err)
	}
	if len(coords) == 0 {
		return common.Extent{}, fmt.Errorf("Envelope: empty geometry")
	}
	ext := common.Extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range coords {
		ext[0] = math.Min(ext[0], c.X)
		ext[1] = math.Min(ext[1], c.Y)
		ext[2] = math.Max(ext[2], c.X)
		ext[3] = math.Max(ext[3], c.Y)
	}
	return ext, nil
}

// BufferExtent returns the bounding box of the planar buffer of the geometry
func BufferExtent(wkt string, distance float64) (common.Extent, error) {
	g, err := geos.FromWKT(wkt)
	if err != nil {
		return common.Extent{}, fmt.Errorf("BufferExtent.FromWKT: %w", err)
	}
	buffered, err := g.Buffer(distance)
	if err != nil {
		return common.Extent{}, fmt.Errorf("BufferExtent.Buffer: %w", err)
	}
	ext, err := Envelope(buffered)
	if err != nil {
		return common.Extent{}, fmt.Errorf("BufferExtent.%w", err)
	}
	return ext, nil
}

// Bounds returns the bounding box of the WKT geometry
func Bounds(wkt string) (common.Extent, error) {
	g, err := geos.FromWKT(wkt)
	if err != nil {
		return common.Extent{}, fmt.Errorf("Bounds.FromWKT: %w", err)
	}
	return Envelope(g)
}
