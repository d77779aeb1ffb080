package common

import (
	"fmt"
	"time"
)

// Extent is a bounding box: minx, miny, maxx, maxy
type Extent [4]float64

// StrictlyContains returns true if o lies inside e without touching its borders
func (e Extent) StrictlyContains(o Extent) bool {
	return e[0] < o[0] && e[1] < o[1] && e[2] > o[2] && e[3] > o[3]
}

func (e Extent) String() string {
	return fmt.Sprintf("[%g %g %g %g]", e[0], e[1], e[2], e[3])
}

// Parcel is a plot of land whose geometry is derived from an uploaded vector file
// or given directly by the user.
type Parcel struct {
	UUID         string     `json:"uuid"`
	Name         string     `json:"name"`
	RecordType   RecordType `json:"record_type"`
	File         string     `json:"file,omitempty"`
	Geom         string     `json:"geom,omitempty"`
	SRID         int        `json:"srid"`
	BufferExtent *Extent    `json:"buffer_extent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasGeometry returns true if the geometry of the parcel has been derived
func (p Parcel) HasGeometry() bool {
	return p.Geom != ""
}

// GeometryUpdated is published each time the geometry of a parcel is derived
type GeometryUpdated struct {
	UUID         string     `json:"uuid"`
	RecordType   RecordType `json:"record_type"`
	SRID         int        `json:"srid"`
	BufferExtent Extent     `json:"buffer_extent"`
	File         string     `json:"file,omitempty"`
	Date         time.Time  `json:"date"`
}
