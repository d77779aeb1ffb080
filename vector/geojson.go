package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
)

func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readGeoJSON(ctx context.Context, path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: err}
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: fmt.Errorf("invalid json")}
	}

	layer := Layer{Name: layerName(path)}
	if name := gjson.GetBytes(data, "name"); name.Type == gjson.String {
		layer.Name = name.String()
	}

	var features []*geojson.Feature
	switch t := gjson.GetBytes(data, "type").String(); t {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: err}
		}
		features = fc.Features
		// Schema in document order
		gjson.GetBytes(data, "features.#.properties").ForEach(func(_, props gjson.Result) bool {
			props.ForEach(func(key, _ gjson.Result) bool {
				layer.AddField(key.String())
				return true
			})
			return true
		})
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: err}
		}
		features = []*geojson.Feature{f}
		gjson.GetBytes(data, "properties").ForEach(func(key, _ gjson.Result) bool {
			layer.AddField(key.String())
			return true
		})
	case "":
		return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: fmt.Errorf("missing type member")}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, ErrOpen{Path: path, Driver: GeoJSON, Err: fmt.Errorf("type %s: %w", t, err)}
		}
		features = []*geojson.Feature{geojson.NewFeature(g.Geometry())}
	}

	// Legacy crs member (RFC 7946 data is always lon/lat WGS84)
	if name := gjson.GetBytes(data, "crs.properties.name"); name.Exists() {
		layer.CRS = name.String()
		if srid, err := crs.ParseURN(layer.CRS); err == nil {
			layer.SRID = srid
		}
	} else {
		layer.SRID = crs.WGS84
	}

	layer.Features = make([]Feature, 0, len(features))
	for _, f := range features {
		props := map[string]interface{}(f.Properties)
		if props == nil {
			props = map[string]interface{}{}
		}
		layer.Features = append(layer.Features, Feature{Geometry: f.Geometry, Properties: props})
	}
	layer.GeometryType = featuresType(layer.Features)
	return &layer, nil
}

func writeGeoJSON(ctx context.Context, path string, layer *Layer) error {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"name": layer.Name}
	if layer.SRID != 0 && layer.SRID != crs.WGS84 {
		fc.ExtraMembers["crs"] = map[string]interface{}{
			"type":       "name",
			"properties": map[string]interface{}{"name": crs.URN(layer.SRID)},
		}
	}
	for _, f := range layer.Features {
		gf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("writeGeoJSON.Marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writeGeoJSON.WriteFile: %w", err)
	}
	return nil
}
