// Package vectortest writes vector fixtures for tests
package vectortest

import (
	"fmt"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// Polygon returns a square of the given size with its lower-left corner at min
// and the given number of square holes laid out along its middle row.
// Shells are counter-clockwise, holes clockwise.
func Polygon(min orb.Point, size float64, holes int) orb.Polygon {
	p := orb.Polygon{square(min, size)}
	if holes == 0 {
		return p
	}
	step := size / float64(2*holes+1)
	y := min[1] + size/2 - step/2
	for i := 0; i < holes; i++ {
		h := square(orb.Point{min[0] + step*float64(2*i+1), y}, step)
		h.Reverse()
		p = append(p, h)
	}
	return p
}

func square(min orb.Point, size float64) orb.Ring {
	return orb.Ring{
		min,
		{min[0] + size, min[1]},
		{min[0] + size, min[1] + size},
		{min[0], min[1] + size},
		min,
	}
}

func shpParts(p orb.Polygon) [][]shp.Point {
	parts := make([][]shp.Point, 0, len(p))
	for i, r := range p {
		r = append(orb.Ring(nil), r...)
		// Shapefile shells are clockwise, holes counter-clockwise
		if (i == 0) != (r.Orientation() == orb.CW) {
			r.Reverse()
		}
		part := make([]shp.Point, len(r))
		for j, pt := range r {
			part[j] = shp.Point{X: pt[0], Y: pt[1]}
		}
		parts = append(parts, part)
	}
	return parts
}

// Record is a feature of a shapefile fixture
type Record struct {
	Polygons []orb.Polygon
	Name     string
	Area     int
	// Extra holds the values of the extra fields, in order
	Extra []interface{}
}

// WriteShapefile writes the records into path (.shp, .shx, .dbf) with "name" and "area" attributes.
// If prj is not empty, it is written into the .prj sidecar. The extra fields follow "area".
func WriteShapefile(path string, records []Record, prj string, extra ...shp.Field) error {
	base := strings.TrimSuffix(path, ".shp")
	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		return fmt.Errorf("WriteShapefile.Create: %w", err)
	}
	if err := w.SetFields(append([]shp.Field{shp.StringField("name", 32), shp.NumberField("area", 10)}, extra...)); err != nil {
		w.Close()
		return fmt.Errorf("WriteShapefile.SetFields: %w", err)
	}
	for _, r := range records {
		var parts [][]shp.Point
		for _, p := range r.Polygons {
			parts = append(parts, shpParts(p)...)
		}
		n := int(w.Write((*shp.Polygon)(shp.NewPolyLine(parts))))
		if err := w.WriteAttribute(n, 0, r.Name); err != nil {
			w.Close()
			return fmt.Errorf("WriteShapefile.WriteAttribute: %w", err)
		}
		if err := w.WriteAttribute(n, 1, r.Area); err != nil {
			w.Close()
			return fmt.Errorf("WriteShapefile.WriteAttribute: %w", err)
		}
		for i, v := range r.Extra {
			if err := w.WriteAttribute(n, 2+i, v); err != nil {
				w.Close()
				return fmt.Errorf("WriteShapefile.WriteAttribute: %w", err)
			}
		}
	}
	w.Close()
	// go-shp names the attribute file <base>dbf
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return fmt.Errorf("WriteShapefile.Rename: %w", err)
	}
	if prj != "" {
		if err := os.WriteFile(base+".prj", []byte(prj), 0644); err != nil {
			return fmt.Errorf("WriteShapefile.prj: %w", err)
		}
	}
	return nil
}

// WriteFile writes raw content, for corrupted fixtures
func WriteFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
