// Package crs resolves the coordinate reference systems declared by vector files
// and transforms geometries between them.
package crs

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Well-known SRIDs
const (
	WGS84       = 4326
	WebMercator = 3857
)

// Unit of the coordinates of a CRS
type Unit int

const (
	Degree Unit = iota
	Metre
)

func (u Unit) String() string {
	if u == Metre {
		return "metre"
	}
	return "degree"
}

// MetresPerDegree at the equator on the WebMercator sphere
const MetresPerDegree = orb.EarthRadius * math.Pi / 180

// mercatorMaxLat is the latitude mapped to the edge of the WebMercator square
const mercatorMaxLat = 85.05112877980659

// CRS describes a supported reference system
type CRS struct {
	SRID       int
	Name       string
	Unit       Unit
	Domain     orb.Bound
	Definition string
}

var supported = map[int]CRS{
	WGS84: {
		SRID:       WGS84,
		Name:       "WGS 84",
		Unit:       Degree,
		Domain:     orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
		Definition: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
	},
	WebMercator: {
		SRID:       WebMercator,
		Name:       "WGS 84 / Pseudo-Mercator",
		Unit:       Metre,
		Domain:     orb.Bound{Min: orb.Point{-math.Pi * orb.EarthRadius, -math.Pi * orb.EarthRadius}, Max: orb.Point{math.Pi * orb.EarthRadius, math.Pi * orb.EarthRadius}},
		Definition: `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`,
	},
}

// Codes that describe the same system as a supported SRID
var aliases = map[int]int{
	900913: WebMercator,
	3785:   WebMercator,
	102100: WebMercator,
	102113: WebMercator,
}

// ErrUnsupported is returned when a CRS cannot be transformed
type ErrUnsupported struct {
	SRID int
	Desc string
}

func (e ErrUnsupported) Error() string {
	if e.Desc != "" {
		return fmt.Sprintf("unsupported crs: %s", e.Desc)
	}
	return fmt.Sprintf("unsupported crs: EPSG:%d", e.SRID)
}

// Lookup returns the CRS of the given srid, resolving aliases
func Lookup(srid int) (CRS, error) {
	if a, ok := aliases[srid]; ok {
		srid = a
	}
	c, ok := supported[srid]
	if !ok {
		return CRS{}, ErrUnsupported{SRID: srid}
	}
	return c, nil
}

// Canonical returns the supported srid that srid is an alias of (or srid itself)
func Canonical(srid int) int {
	if a, ok := aliases[srid]; ok {
		return a
	}
	return srid
}

// ParseURN parses "EPSG:4326", "urn:ogc:def:crs:EPSG::3857" or the OGC CRS84 urn
func ParseURN(name string) (int, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if strings.HasSuffix(n, "CRS84") {
		return WGS84, nil
	}
	i := strings.LastIndex(n, ":")
	if i < 0 || !strings.Contains(n, "EPSG") {
		return 0, ErrUnsupported{Desc: name}
	}
	srid, err := strconv.Atoi(n[i+1:])
	if err != nil {
		return 0, ErrUnsupported{Desc: name}
	}
	return srid, nil
}

// URN returns the OGC urn of the srid
func URN(srid int) string {
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", srid)
}

var authorityRE = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// ParsePRJ returns the srid described by a WKT CRS (e.g. the content of a .prj file).
// ESRI flavoured definitions without AUTHORITY are recognized by name.
func ParsePRJ(def string) (int, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return 0, ErrUnsupported{Desc: "empty definition"}
	}
	// The authority of the outer system is the last one
	if m := authorityRE.FindAllStringSubmatch(def, -1); len(m) > 0 {
		return strconv.Atoi(m[len(m)-1][1])
	}

	name := strings.ToUpper(def)
	switch {
	case strings.HasPrefix(name, "PROJCS"):
		if strings.Contains(name, "PSEUDO_MERCATOR") || strings.Contains(name, "PSEUDO-MERCATOR") ||
			strings.Contains(name, "WEB_MERCATOR") || strings.Contains(name, "POPULAR VISUALISATION") {
			return WebMercator, nil
		}
	case strings.HasPrefix(name, "GEOGCS"):
		if strings.Contains(name, "WGS_1984") || strings.Contains(name, "WGS 84") || strings.Contains(name, "WGS84") {
			return WGS84, nil
		}
	}
	return 0, ErrUnsupported{Desc: firstToken(def)}
}

func firstToken(def string) string {
	if i := strings.Index(def, ","); i > 0 {
		return def[:i] + "]"
	}
	return def
}

func projection(from, to int) (orb.Projection, error) {
	switch {
	case from == WGS84 && to == WebMercator:
		return project.WGS84.ToMercator, nil
	case from == WebMercator && to == WGS84:
		return project.Mercator.ToWGS84, nil
	}
	return nil, ErrUnsupported{Desc: fmt.Sprintf("EPSG:%d to EPSG:%d", from, to)}
}

// Project transforms a copy of g from one srid to another.
// Every coordinate of the input must lie in the valid domain of the source system
// and every coordinate of the output in the valid domain of the target.
func Project(g orb.Geometry, from, to int) (orb.Geometry, error) {
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	domain := src.Domain
	if src.SRID == WGS84 && dst.SRID == WebMercator {
		domain = orb.Bound{Min: orb.Point{-180, -mercatorMaxLat}, Max: orb.Point{180, mercatorMaxLat}}
	}
	if err := checkDomain(g, domain); err != nil {
		return nil, fmt.Errorf("EPSG:%d: %w", src.SRID, err)
	}
	g = orb.Clone(g)
	if src.SRID == dst.SRID {
		return g, nil
	}
	proj, err := projection(src.SRID, dst.SRID)
	if err != nil {
		return nil, err
	}
	g = project.Geometry(g, proj)
	if err := checkDomain(g, dst.Domain); err != nil {
		return nil, fmt.Errorf("EPSG:%d: %w", dst.SRID, err)
	}
	return g, nil
}

func checkDomain(g orb.Geometry, domain orb.Bound) error {
	b := g.Bound()
	if !domain.Contains(b.Min) || !domain.Contains(b.Max) {
		return fmt.Errorf("coordinates %v out of valid domain %v", b, domain)
	}
	return nil
}

// BufferDistance converts a distance expressed in degrees into the units of srid.
// For metric systems, the distance is scaled at the latitude of center (WGS84 lon/lat).
func BufferDistance(srid int, degrees float64, center orb.Point) (float64, error) {
	c, err := Lookup(srid)
	if err != nil {
		return 0, err
	}
	if c.Unit == Degree {
		return degrees, nil
	}
	lat := math.Max(-mercatorMaxLat, math.Min(center[1], mercatorMaxLat))
	return degrees * MetresPerDegree * project.MercatorScaleFactor(orb.Point{center[0], lat}), nil
}
