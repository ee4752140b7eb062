package m2m

import (
	"fmt"

	"github.com/go-spatial/geom"
)

// Coordinate is a WGS84 point as expected by the M2M API
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// SpatialFilter restricts a scene search to an area of interest. It is either
// a SpatialFilterMbr or a SpatialFilterGeoJSON.
type SpatialFilter interface {
	spatialFilter()
}

// SpatialFilterMbr is a bounding-box spatial filter
type SpatialFilterMbr struct {
	FilterType string     `json:"filterType"`
	LowerLeft  Coordinate `json:"lowerLeft"`
	UpperRight Coordinate `json:"upperRight"`
}

func (SpatialFilterMbr) spatialFilter() {}

// NewSpatialFilterMbr creates a bounding-box filter from (xmin, ymin, xmax, ymax)
func NewSpatialFilterMbr(xmin, ymin, xmax, ymax float64) SpatialFilterMbr {
	return SpatialFilterMbr{
		FilterType: "mbr",
		LowerLeft:  Coordinate{Longitude: xmin, Latitude: ymin},
		UpperRight: Coordinate{Longitude: xmax, Latitude: ymax},
	}
}

// NewSpatialFilterPoint creates a bounding-box filter degenerated to a point
func NewSpatialFilterPoint(longitude, latitude float64) SpatialFilterMbr {
	return NewSpatialFilterMbr(longitude, latitude, longitude, latitude)
}

// SpatialFilterGeoJSON is a geometry spatial filter
type SpatialFilterGeoJSON struct {
	FilterType string  `json:"filterType"`
	GeoJSON    GeoJSON `json:"geoJson"`
}

func (SpatialFilterGeoJSON) spatialFilter() {}

// GeoJSON is a geometry as expected by the M2M API: coordinates are
// {longitude, latitude} objects instead of tuples, and only the outer ring of
// polygons is kept.
type GeoJSON struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// NewSpatialFilterGeoJSON creates a spatial filter from a geometry
func NewSpatialFilterGeoJSON(g geom.Geometry) (SpatialFilterGeoJSON, error) {
	geoJSON, err := newGeoJSON(g)
	if err != nil {
		return SpatialFilterGeoJSON{}, fmt.Errorf("NewSpatialFilterGeoJSON.%w", err)
	}
	return SpatialFilterGeoJSON{FilterType: "geoJson", GeoJSON: geoJSON}, nil
}

func newGeoJSON(g geom.Geometry) (GeoJSON, error) {
	switch geo := g.(type) {
	case geom.Point:
		return GeoJSON{Type: "Point", Coordinates: Coordinate{Longitude: geo.X(), Latitude: geo.Y()}}, nil
	case geom.LineString:
		return GeoJSON{Type: "LineString", Coordinates: toCoordinates(geo.Vertices())}, nil
	case geom.Polygon:
		rings := geo.LinearRings()
		if len(rings) == 0 {
			return GeoJSON{}, fmt.Errorf("newGeoJSON: empty polygon")
		}
		return GeoJSON{Type: "Polygon", Coordinates: toCoordinates(rings[0])}, nil
	case geom.MultiPolygon:
		polygons := geo.Polygons()
		if len(polygons) == 0 {
			return GeoJSON{}, fmt.Errorf("newGeoJSON: empty multipolygon")
		}
		rings := make([][]Coordinate, len(polygons[0]))
		for i, ring := range polygons[0] {
			rings[i] = toCoordinates(ring)
		}
		return GeoJSON{Type: "MultiPolygon", Coordinates: rings}, nil
	}
	return GeoJSON{}, fmt.Errorf("newGeoJSON: geometry type %T not supported", g)
}

func toCoordinates(points [][2]float64) []Coordinate {
	coords := make([]Coordinate, len(points))
	for i, p := range points {
		coords[i] = Coordinate{Longitude: p[0], Latitude: p[1]}
	}
	return coords
}

// AcquisitionFilter restricts a search to an acquisition period (YYYY-MM-DD dates)
type AcquisitionFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CloudCoverFilter restricts a search to a range of cloud cover percentages
type CloudCoverFilter struct {
	Min            int  `json:"min"`
	Max            int  `json:"max"`
	IncludeUnknown bool `json:"includeUnknown"`
}

// MetadataValue filters scenes on the value of a metadata field
type MetadataValue struct {
	FilterType string      `json:"filterType"`
	FilterID   string      `json:"filterId"`
	Value      interface{} `json:"value"`
	Operand    string      `json:"operand"`
}

// NewMetadataValue creates a metadata filter. The operand is "like" for string
// values and "=" otherwise.
func NewMetadataValue(fieldID string, value interface{}) MetadataValue {
	operand := "="
	if _, ok := value.(string); ok {
		operand = "like"
	}
	return MetadataValue{FilterType: "value", FilterID: fieldID, Value: value, Operand: operand}
}

// SceneFilter combines the search filters. Nil members are omitted from the query.
type SceneFilter struct {
	AcquisitionFilter *AcquisitionFilter `json:"acquisitionFilter,omitempty"`
	SpatialFilter     SpatialFilter      `json:"spatialFilter,omitempty"`
	CloudCoverFilter  *CloudCoverFilter  `json:"cloudCoverFilter,omitempty"`
	MetadataFilter    *MetadataValue     `json:"metadataFilter,omitempty"`
	SeasonalFilter    []int              `json:"seasonalFilter,omitempty"`
}
