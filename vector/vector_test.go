package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/eudr-packhouse/parcel-ingester/vector/vectortest"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRings(g orb.Geometry) int {
	switch g := g.(type) {
	case orb.Polygon:
		return len(g)
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += len(p)
		}
		return n
	}
	return 0
}

func testLayer() *Layer {
	return &Layer{
		Name:         "parcels",
		SRID:         crs.WGS84,
		GeometryType: GeometryTypeMultiPolygon,
		Fields:       []string{"name", "area", "ratio", "certified", "note"},
		Features: []Feature{
			{
				Geometry:   vectortest.Polygon(orb.Point{10, 10}, 1, 2),
				Properties: map[string]interface{}{"name": "north", "area": 12.0, "ratio": 0.5, "certified": true, "note": nil},
			},
			{
				Geometry:   orb.MultiPolygon{vectortest.Polygon(orb.Point{20, 10}, 1, 0), vectortest.Polygon(orb.Point{22, 10}, 1, 1)},
				Properties: map[string]interface{}{"name": "south", "area": 3.0, "ratio": 1.25, "certified": false, "note": "x"},
			},
		},
	}
}

func TestDriverFor(t *testing.T) {
	for path, driver := range map[string]Driver{
		"a.gpkg":    GeoPackage,
		"a.GeoJSON": GeoJSON,
		"a.json":    GeoJSON,
		"dir/a.SHP": Shapefile,
	} {
		d, err := DriverFor(path)
		require.NoError(t, err)
		assert.Equal(t, driver, d)
	}
	_, err := DriverFor("a.kml")
	assert.ErrorAs(t, err, &ErrUnsupportedFormat{})
}

func TestFeaturesType(t *testing.T) {
	poly := vectortest.Polygon(orb.Point{0, 0}, 1, 0)
	assert.Equal(t, GeometryTypePolygon, featuresType([]Feature{{Geometry: poly}, {Geometry: nil}}))
	assert.Equal(t, GeometryTypeMultiPolygon, featuresType([]Feature{{Geometry: poly}, {Geometry: orb.MultiPolygon{poly}}}))
	assert.Equal(t, GeometryTypeGeometryCollection, featuresType([]Feature{{Geometry: poly}, {Geometry: orb.Point{1, 1}}}))
	assert.Equal(t, GeometryTypeUnknown, featuresType(nil))
	assert.True(t, GeometryTypeOf(orb.MultiPolygon{poly}).IsPolygonal())
	assert.False(t, GeometryTypeOf(orb.LineString{{0, 0}, {1, 1}}).IsPolygonal())
}

func TestGeoJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parcels.geojson")
	layer := testLayer()
	layer.SRID = crs.WebMercator
	require.NoError(t, Write(ctx, path, layer))

	res, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "parcels", res.Name)
	assert.Equal(t, crs.WebMercator, res.SRID)
	assert.Equal(t, GeometryTypeMultiPolygon, res.GeometryType)
	require.Len(t, res.Features, 2)
	assert.Equal(t, 3, countRings(res.Features[0].Geometry))
	assert.Equal(t, 3, countRings(res.Features[1].Geometry))
	assert.Equal(t, "south", res.Features[1].Properties["name"])
	assert.Equal(t, 1.25, res.Features[1].Properties["ratio"])
	assert.ElementsMatch(t, layer.Fields, res.Fields)
}

func TestReadGeoJSON(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := map[string]struct {
		content string
		srid    int
		gtype   GeometryType
	}{
		"geometry.geojson": {`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, crs.WGS84, GeometryTypePolygon},
		"feature.geojson":  {`{"type":"Feature","properties":{"b":1,"a":2},"geometry":{"type":"Point","coordinates":[1,2]}}`, crs.WGS84, GeometryTypePoint},
		"crs84.json": {`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:OGC:1.3:CRS84"}},
			"features":[{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}}]}`, crs.WGS84, GeometryTypeMultiPolygon},
		"lambert.geojson": {`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"EPSG:2154"}},"features":[]}`, 2154, GeometryTypeUnknown},
	}
	for name, tt := range tests {
		path := filepath.Join(dir, name)
		require.NoError(t, vectortest.WriteFile(path, tt.content))
		layer, err := Read(ctx, path)
		require.NoError(t, err, name)
		assert.Equal(t, tt.srid, layer.SRID, name)
		assert.Equal(t, tt.gtype, layer.GeometryType, name)
	}

	layer, err := Read(ctx, filepath.Join(dir, "feature.geojson"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, layer.Fields)

	for name, content := range map[string]string{
		"truncated.geojson": `{"type":"FeatureCollection","features":[`,
		"notype.geojson":    `{"features":[]}`,
		"badgeom.geojson":   `{"type":"Polygon","coordinates":"x"}`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, vectortest.WriteFile(path, content))
		_, err := Read(ctx, path)
		assert.ErrorAs(t, err, &ErrOpen{}, name)
	}
}

func TestGPKGRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parcels.gpkg")
	layer := testLayer()
	require.NoError(t, Write(ctx, path, layer))
	// Never overwrites
	assert.Error(t, Write(ctx, path, layer))

	res, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "parcels", res.Name)
	assert.Equal(t, crs.WGS84, res.SRID)
	assert.Equal(t, GeometryTypeMultiPolygon, res.GeometryType)
	assert.Equal(t, layer.Fields, res.Fields)
	require.Len(t, res.Features, 2)
	for i, f := range res.Features {
		assert.True(t, orb.Equal(layer.Features[i].Geometry, f.Geometry), "feature %d", i)
	}
	p := res.Features[0].Properties
	assert.Equal(t, "north", p["name"])
	assert.EqualValues(t, 12, p["area"])
	assert.Equal(t, 0.5, p["ratio"])
	assert.Equal(t, true, p["certified"])
	assert.Nil(t, p["note"])
	assert.Equal(t, false, res.Features[1].Properties["certified"])
	assert.Equal(t, "x", res.Features[1].Properties["note"])
}

func TestGPKGSRS(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	layer := testLayer()
	layer.SRID = 900913
	path := filepath.Join(dir, "alias.gpkg")
	require.NoError(t, Write(ctx, path, layer))
	res, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 900913, res.SRID)

	layer.SRID = 0
	layer.CRS = `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93"]]`
	path = filepath.Join(dir, "custom.gpkg")
	require.NoError(t, Write(ctx, path, layer))
	res, err = Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SRID)
	assert.Equal(t, layer.CRS, res.CRS)
}

func TestGPKGReservedColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "qgis.gpkg")
	layer := &Layer{
		Name:         "parcels",
		SRID:         crs.WGS84,
		GeometryType: GeometryTypePolygon,
		Fields:       []string{"FID", "geom", "name", "Name"},
		Features: []Feature{{
			Geometry:   vectortest.Polygon(orb.Point{1, 1}, 1, 0),
			Properties: map[string]interface{}{"FID": 7, "geom": "x", "name": "a", "Name": "b"},
		}},
	}
	require.NoError(t, Write(ctx, path, layer))

	res, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FID_1", "geom_1", "name", "Name_1"}, res.Fields)
	require.Len(t, res.Features, 1)
	p := res.Features[0].Properties
	assert.EqualValues(t, 7, p["FID_1"])
	assert.Equal(t, "x", p["geom_1"])
	assert.Equal(t, "a", p["name"])
	assert.Equal(t, "b", p["Name_1"])
}

func TestReadGPKGCorrupted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corrupted.gpkg")
	require.NoError(t, vectortest.WriteFile(path, "not a geopackage"))
	_, err := Read(ctx, path)
	assert.ErrorAs(t, err, &ErrOpen{})
}

func TestReadShapefile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "parcels.shp")
	require.NoError(t, vectortest.WriteShapefile(path, []vectortest.Record{
		{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{10, 10}, 1, 9)}, Name: "a", Area: 12},
		{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{20, 10}, 1, 2), vectortest.Polygon(orb.Point{22, 10}, 1, 0)}, Name: "b", Area: 3},
	}, ""))

	layer, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "parcels", layer.Name)
	assert.Equal(t, crs.WGS84, layer.SRID)
	assert.Equal(t, GeometryTypePolygon, layer.GeometryType)
	assert.Equal(t, []string{"name", "area"}, layer.Fields)
	require.Len(t, layer.Features, 2)

	p, ok := layer.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, p, 10)
	mp, ok := layer.Features[1].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 3)
	assert.Len(t, mp[1], 1)

	assert.Equal(t, "a", layer.Features[0].Properties["name"])
	assert.Equal(t, int64(12), layer.Features[0].Properties["area"])
	assert.Equal(t, int64(3), layer.Features[1].Properties["area"])
}

func square(x, y, size float64, ccw bool) orb.Ring {
	r := orb.Ring{{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y}}
	if ccw {
		r.Reverse()
	}
	return r
}

func TestShpPolygonWinding(t *testing.T) {
	t.Run("compliant", func(t *testing.T) {
		g := shpPolygon([]orb.Ring{square(0, 0, 10, false), square(2, 2, 2, true), square(20, 0, 5, false)})
		mp, ok := g.(orb.MultiPolygon)
		require.True(t, ok)
		require.Len(t, mp, 2)
		assert.Len(t, mp[0], 2)
		assert.Len(t, mp[1], 1)
	})
	t.Run("reversed", func(t *testing.T) {
		g := shpPolygon([]orb.Ring{square(0, 0, 10, true), square(2, 2, 2, false), square(20, 0, 5, true)})
		mp, ok := g.(orb.MultiPolygon)
		require.True(t, ok)
		require.Len(t, mp, 2)
		require.Len(t, mp[0], 2)
		assert.Len(t, mp[1], 1)
		assert.Equal(t, orb.CW, mp[0][0].Orientation())
		assert.Equal(t, orb.CCW, mp[0][1].Orientation())
		assert.Equal(t, orb.Point{2, 2}, mp[0][1].Bound().Min)
		assert.Equal(t, orb.CW, mp[1][0].Orientation())
	})
	t.Run("single reversed", func(t *testing.T) {
		g := shpPolygon([]orb.Ring{square(0, 0, 10, true), square(2, 2, 2, false)})
		p, ok := g.(orb.Polygon)
		require.True(t, ok)
		assert.Len(t, p, 2)
	})
}

func TestReadShapefilePRJ(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	records := []vectortest.Record{{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{1e6, 1e6}, 1000, 1)}, Name: "a"}}

	path := filepath.Join(dir, "mercator.shp")
	require.NoError(t, vectortest.WriteShapefile(path, records, `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"],PROJECTION["Mercator_Auxiliary_Sphere"],UNIT["Meter",1.0]]`))
	layer, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, crs.WebMercator, layer.SRID)

	path = filepath.Join(dir, "lambert.shp")
	require.NoError(t, vectortest.WriteShapefile(path, records, `PROJCS["RGF93_Lambert_93",GEOGCS["GCS_RGF_1993"]]`))
	layer, err = Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, layer.SRID)
	assert.NotEmpty(t, layer.CRS)
}

func TestReadShapefileCorrupted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corrupted.shp")
	require.NoError(t, vectortest.WriteFile(path, "not a shapefile"))
	_, err := Read(ctx, path)
	assert.ErrorAs(t, err, &ErrOpen{})
}

func TestFirstLayer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))

	shpPath := filepath.Join(src, "parcels.shp")
	require.NoError(t, vectortest.WriteShapefile(shpPath, []vectortest.Record{
		{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{10, 10}, 1, 1)}, Name: "a", Area: 1},
	}, ""))
	readme := filepath.Join(src, "README.txt")
	require.NoError(t, vectortest.WriteFile(readme, "parcels"))
	geojsonPath := filepath.Join(src, "other.geojson")
	require.NoError(t, vectortest.WriteFile(geojsonPath, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))

	archive := filepath.Join(dir, "parcels.zip")
	require.NoError(t, Zip(ctx, archive, readme, shpPath, filepath.Join(src, "parcels.shx"), filepath.Join(src, "parcels.dbf"), geojsonPath))

	path, err := FirstLayer(ctx, archive, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "parcels.shp"), path)
	layer, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Len(t, layer.Features, 1)

	// No vector file
	archive = filepath.Join(dir, "empty.zip")
	require.NoError(t, Zip(ctx, archive, readme))
	_, err = FirstLayer(ctx, archive, filepath.Join(dir, "out2"))
	assert.ErrorAs(t, err, &ErrNoLayer{})

	// Not an archive
	archive = filepath.Join(dir, "corrupted.zip")
	require.NoError(t, vectortest.WriteFile(archive, "PK"))
	_, err = FirstLayer(ctx, archive, filepath.Join(dir, "out3"))
	assert.Error(t, err)
}

func TestFirstLayerUppercase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, vectortest.WriteShapefile(filepath.Join(src, "PARCELS.shp"), []vectortest.Record{
		{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{10, 10}, 1, 0)}, Name: "a", Area: 1},
	}, ""))
	var files []string
	for _, ext := range []string{"shp", "shx", "dbf"} {
		upper := filepath.Join(src, "PARCELS."+map[string]string{"shp": "SHP", "shx": "SHX", "dbf": "DBF"}[ext])
		require.NoError(t, os.Rename(filepath.Join(src, "PARCELS."+ext), upper))
		files = append(files, upper)
	}
	archive := filepath.Join(dir, "parcels.zip")
	require.NoError(t, Zip(ctx, archive, files...))

	path, err := FirstLayer(ctx, archive, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "PARCELS.shp"), path)
	layer, err := Read(ctx, path)
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)
	assert.Equal(t, "a", layer.Features[0].Properties["name"])
}
