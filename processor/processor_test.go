package processor

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/vector"
	"github.com/eudr-packhouse/parcel-ingester/vector/vectortest"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const polygonGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[10,10],[10.01,10],[10.01,10.01],[10,10.01],[10,10]]]}},
	{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"MultiPolygon","coordinates":[[[[11,10],[11.01,10],[11.01,10.01],[11,10]]]]}}]}`

const pointGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[10,10]}}]}`

func newStorage(t *testing.T) (service.Storage, string) {
	t.Helper()
	root := t.TempDir()
	st, err := service.NewStorageStrategy(context.Background(), root)
	require.NoError(t, err)
	return st, root
}

func storedFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}))
	return files
}

func versionedKey(prefix, ext string) string {
	return "^" + prefix + "/[0-9a-f-]{36}\\." + ext + "$"
}

func zippedShapefile(t *testing.T) []byte {
	t.Helper()
	src := t.TempDir()
	shpPath := filepath.Join(src, "plots.shp")
	require.NoError(t, vectortest.WriteShapefile(shpPath, []vectortest.Record{
		{Polygons: []orb.Polygon{vectortest.Polygon(orb.Point{10, 10}, 0.01, 2)}, Name: "first", Area: 3},
	}, ""))
	archive := filepath.Join(src, "plots.zip")
	require.NoError(t, vector.Zip(context.Background(), archive, shpPath, filepath.Join(src, "plots.shx"), filepath.Join(src, "plots.dbf")))
	b, err := os.ReadFile(archive)
	require.NoError(t, err)
	return b
}

func TestProcessGeoJSON(t *testing.T) {
	ctx := context.Background()
	st, root := newStorage(t)
	workdir := t.TempDir()

	out, err := ProcessFile(ctx, st, common.RecordTypeParcel, "p1", Upload{Reader: strings.NewReader(polygonGeoJSON), Filename: "Plots.GeoJSON"}, workdir, pipeline.Options{})
	require.NoError(t, err)
	assert.Regexp(t, versionedKey("parcels/p1", "geojson"), out.File)
	assert.Equal(t, crs.WebMercator, out.SRID)
	assert.Equal(t, 2, out.Polygons)
	assert.True(t, strings.HasPrefix(out.WKT, "MULTIPOLYGON"), out.WKT)
	assert.Equal(t, []string{out.File}, storedFiles(t, root))

	// The stored file is the normalized one
	local := filepath.Join(t.TempDir(), "p1.geojson")
	require.NoError(t, st.Import(ctx, out.File, local))
	layer, err := vector.Read(ctx, local)
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)
	assert.Equal(t, crs.WebMercator, layer.SRID)
	assert.Equal(t, "a", layer.Features[0].Properties["name"])

	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessZip(t *testing.T) {
	ctx := context.Background()
	st, root := newStorage(t)

	out, err := ProcessFile(ctx, st, common.RecordTypeOperatorParcel, "op1", Upload{Reader: bytes.NewReader(zippedShapefile(t)), Filename: "plots.zip"}, t.TempDir(), pipeline.Options{})
	require.NoError(t, err)
	assert.Regexp(t, versionedKey("operator_parcels/op1", "gpkg"), out.File)
	assert.Equal(t, 3, out.Rings)
	assert.Equal(t, []string{out.File}, storedFiles(t, root))
}

func TestProcessFailure(t *testing.T) {
	ctx := context.Background()
	st, root := newStorage(t)
	workdir := t.TempDir()

	_, err := ProcessFile(ctx, st, common.RecordTypeParcel, "p2", Upload{Reader: strings.NewReader(pointGeoJSON), Filename: "points.geojson"}, workdir, pipeline.Options{})
	require.Error(t, err)
	assert.Equal(t, service.KindGeometryType, service.ErrorKind(err))
	assert.Empty(t, storedFiles(t, root))

	_, err = ProcessFile(ctx, st, common.RecordTypeParcel, "p2", Upload{Reader: strings.NewReader("a,b"), Filename: "points.csv"}, workdir, pipeline.Options{})
	assert.Equal(t, service.KindFormat, service.ErrorKind(err))

	_, err = ProcessFile(ctx, st, common.RecordTypeParcel, "p2", Upload{Reader: strings.NewReader("{"), Filename: "broken.geojson"}, workdir, pipeline.Options{})
	assert.Equal(t, service.KindFormat, service.ErrorKind(err))

	assert.Empty(t, storedFiles(t, root))
	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessFromURL(t *testing.T) {
	ctx := context.Background()
	st, root := newStorage(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/export/plots.geojson":
			w.Write([]byte(polygonGeoJSON))
		case "/export/points.geojson":
			w.Write([]byte(pointGeoJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	out, err := ProcessFile(ctx, st, common.RecordTypeParcel, "p3", Upload{URL: ts.URL + "/export/plots.geojson"}, t.TempDir(), pipeline.Options{TargetSRID: crs.WGS84})
	require.NoError(t, err)
	assert.Regexp(t, versionedKey("parcels/p3", "geojson"), out.File)
	assert.Equal(t, crs.WGS84, out.SRID)
	assert.Equal(t, []string{out.File}, storedFiles(t, root))

	// Neither the download nor the raw upload survive a failure
	workdir := t.TempDir()
	_, err = ProcessFile(ctx, st, common.RecordTypeParcel, "p4", Upload{URL: ts.URL + "/export/points.geojson"}, workdir, pipeline.Options{})
	assert.Equal(t, service.KindGeometryType, service.ErrorKind(err))
	_, err = ProcessFile(ctx, st, common.RecordTypeParcel, "p4", Upload{URL: ts.URL + "/export/missing.geojson"}, workdir, pipeline.Options{})
	assert.Error(t, err)
	assert.True(t, service.Fatal(err))
	assert.Equal(t, []string{out.File}, storedFiles(t, root))
	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = ProcessFile(ctx, st, common.RecordTypeParcel, "p5", Upload{}, t.TempDir(), pipeline.Options{})
	assert.Error(t, err)
}
