package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/eudr-packhouse/parcel-ingester/service/geometry"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"
)

// UnmarshalGeometry, merging featureCollections and geometryCollections into a multipolygon
func UnmarshalGeometry(data []byte) (_ geom.Geometry, err error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return g.Geometry, err
	}
	switch geo := g.Geometry.(type) {
	case geojson.FeatureCollection:
		geoms := make([]geom.Geometry, len(geo.Features))
		for i, f := range geo.Features {
			geoms[i] = f.Geometry.Geometry
		}
		return geometry.MergeToMultiPolygon(geoms...)
	case geojson.Feature:
		return geo.Geometry.Geometry, nil
	case geom.Collection:
		return geometry.MergeToMultiPolygon(geo)
	default:
		return g.Geometry, nil
	}
}

// splitEWKT returns the srid of an extended WKT ("SRID=3857;MULTIPOLYGON(...)") and the WKT part
func splitEWKT(s string) (int, string, error) {
	if !strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		return 0, s, nil
	}
	i := strings.Index(s, ";")
	if i < 0 {
		return 0, "", fmt.Errorf("malformed EWKT")
	}
	srid, err := strconv.Atoi(strings.TrimSpace(s[len("SRID="):i]))
	if err != nil {
		return 0, "", fmt.Errorf("malformed EWKT srid: %w", err)
	}
	return srid, s[i+1:], nil
}

// ParseGeometry decodes a polygonal geometry given by a user, either as GeoJSON
// (geometry, Feature or FeatureCollection) or as (E)WKT.
// It returns the srid declared by the geometry, 0 if none.
func ParseGeometry(data []byte) (orb.Geometry, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0, MakeFormatError(MsgInvalidFormat, fmt.Errorf("empty geometry"))
	}

	var g geom.Geometry
	var srid int
	var err error
	if data[0] == '{' {
		if name := gjson.GetBytes(data, "crs.properties.name"); name.Exists() {
			if srid, err = crs.ParseURN(name.String()); err != nil {
				return nil, 0, MakeProcessingError(MsgProcessing, fmt.Errorf("ParseGeometry.%w", err))
			}
		}
		if g, err = UnmarshalGeometry(data); err != nil {
			return nil, 0, parseGeometryError(err)
		}
	} else {
		var wkt string
		if srid, wkt, err = splitEWKT(string(data)); err != nil {
			return nil, 0, MakeFormatError(MsgInvalidFormat, fmt.Errorf("ParseGeometry: %w", err))
		}
		if g, err = geometry.DecodeWKT(wkt); err != nil {
			return nil, 0, MakeFormatError(MsgInvalidFormat, fmt.Errorf("ParseGeometry.%w", err))
		}
	}

	res, err := geometry.ToOrb(g)
	if err != nil {
		return nil, 0, parseGeometryError(err)
	}
	return res, srid, nil
}

func parseGeometryError(err error) error {
	var errType geometry.ErrNotPolygonal
	if errors.As(err, &errType) {
		return MakeGeometryTypeError(fmt.Errorf("ParseGeometry.%w", err))
	}
	return MakeFormatError(MsgInvalidFormat, fmt.Errorf("ParseGeometry: %w", err))
}

func ToJSON(v interface{}, workingdir, filename string) error {
	if workingdir != "" {
		vb, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("toJSON.Marshal: %w", err)
		}
		if err := os.WriteFile(filepath.Join(workingdir, filename), vb, 0644); err != nil {
			return fmt.Errorf("toJSON.WriteFile: %w", err)
		}
	}
	return nil
}
