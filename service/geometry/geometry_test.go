package geometry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulsmith/gogeos/geos"
)

func checkGeomEquality(wkt1, wkt2 string) error {
	geom1, err := geos.FromWKT(wkt1)
	if err != nil {
		return err
	}
	geom2, err := geos.FromWKT(wkt2)
	if err != nil {
		return err
	}
	if equal, err := geom1.Equals(geom2); err != nil {
		return err
	} else if !equal {
		return fmt.Errorf("Not equal")
	}
	return nil
}

func TestMergeToMultiPolygon(t *testing.T) {
	p1 := geom.Polygon{{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}}}
	p2 := geom.MultiPolygon{
		{{{130, -12}, {130, -11}, {131, -11}, {131, -12}, {130, -12}}},
		{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, {{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}}},
	}
	mp, err := MergeToMultiPolygon(p1, p2)
	if err != nil {
		t.Fatal(err)
	}
	if len(mp) != 3 {
		t.Errorf("expect 3 polygons, found %d", len(mp))
	}
	if n := CountRings(mp); n != 4 {
		t.Errorf("expect 4 rings, found %d", n)
	}
	// polygons are not dissolved even if they share an edge
	wkt, err := EncodeWKT(mp)
	if err != nil {
		t.Fatal(err)
	}
	expected := "MULTIPOLYGON (((129 -11, 130 -11, 130 -12, 129 -12, 129 -11)), ((130 -12, 130 -11, 131 -11, 131 -12, 130 -12)), ((0 0, 0 10, 10 10, 10 0, 0 0), (2 2, 2 4, 4 4, 4 2, 2 2)))"
	if err := checkGeomEquality(wkt, expected); err != nil {
		t.Errorf("expect %s found %s (%v)", expected, wkt, err)
	}

	_, err = MergeToMultiPolygon(p1, geom.Point{1, 2})
	if !errors.As(err, &ErrNotPolygonal{}) {
		t.Errorf("expect ErrNotPolygonal, found %v", err)
	}
}

func TestOrbConversion(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	g, err := FromOrb(orb.MultiPolygon{poly, poly})
	if err != nil {
		t.Fatal(err)
	}
	if n := CountRings(g); n != 2 {
		t.Errorf("expect 2 rings, found %d", n)
	}
	back, err := ToOrb(g)
	if err != nil {
		t.Fatal(err)
	}
	if !back.(orb.MultiPolygon).Equal(orb.MultiPolygon{poly, poly}) {
		t.Errorf("round trip failed: %v", back)
	}
	if _, err := FromOrb(orb.LineString{{0, 0}, {1, 1}}); !errors.As(err, &ErrNotPolygonal{}) {
		t.Errorf("expect ErrNotPolygonal, found %v", err)
	}
}

func TestBufferExtent(t *testing.T) {
	wkt := "MULTIPOLYGON (((0 0, 0 10, 10 10, 10 0, 0 0)))"
	bounds, err := Bounds(wkt)
	if err != nil {
		t.Fatal(err)
	}
	if bounds != [4]float64{0, 0, 10, 10} {
		t.Errorf("unexpected bounds %v", bounds)
	}
	ext, err := BufferExtent(wkt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !ext.StrictlyContains(bounds) {
		t.Errorf("%v should strictly contain %v", ext, bounds)
	}
	for i, v := range [4]float64{-1, -1, 11, 11} {
		if d := ext[i] - v; d > 1e-9 || d < -1e-9 {
			t.Errorf("unexpected extent %v", ext)
		}
	}
}
