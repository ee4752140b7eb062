package m2m

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Metadata is the normalized metadata of a scene. Keys are snake_case, values
// are coerced to int, float64 or time.Time when possible (identifiers stay
// strings). Geometries are decoded as geom.Geometry.
type Metadata map[string]interface{}

// julian layout of the start_time/end_time metadata fields
const julianTimeLayout = "2006:002:15:04:05"

type metadataField struct {
	FieldName      string      `json:"fieldName"`
	DictionaryLink string      `json:"dictionaryLink"`
	Value          interface{} `json:"value"`
}

// ParseMetadata normalizes the raw metadata of a scene (an element of the
// scene-search results or the response of scene-metadata). The browse field
// (LandsatLook preview products) is dropped.
func ParseMetadata(raw json.RawMessage) (Metadata, error) {
	return parseMetadata(raw, false)
}

// ParseMetadataWithBrowse normalizes the raw metadata of a scene, including
// the browse products keyed by product name.
func ParseMetadataWithBrowse(raw json.RawMessage) (Metadata, error) {
	return parseMetadata(raw, true)
}

func parseMetadata(raw json.RawMessage, parseBrowse bool) (Metadata, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("ParseMetadata: %w", err)
	}

	metadata := Metadata{}
	for key, value := range fields {
		name := camelToSnake(key)
		switch key {
		case "browse":
			if !parseBrowse {
				continue
			}
			browse, err := parseBrowseMetadata(value)
			if err != nil {
				return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
			}
			metadata[name] = browse
		case "spatialCoverage", "spatialBounds":
			var g geojson.Geometry
			if err := json.Unmarshal(value, &g); err != nil {
				return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
			}
			if key == "spatialBounds" {
				extent, err := geom.NewExtentFromGeometry(g.Geometry)
				if err != nil {
					return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
				}
				metadata[name] = [4]float64(*extent)
			} else {
				metadata[name] = g.Geometry
			}
		case "temporalCoverage":
			var coverage struct {
				StartDate string `json:"startDate"`
				EndDate   string `json:"endDate"`
			}
			if err := json.Unmarshal(value, &coverage); err != nil {
				return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
			}
			metadata[name] = []interface{}{toDate(coverage.StartDate), toDate(coverage.EndDate)}
		case "metadata":
			var metadataFields []metadataField
			if err := json.Unmarshal(value, &metadataFields); err != nil {
				return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
			}
			for name, value := range parseMetadataFields(metadataFields) {
				metadata[name] = value
			}
		default:
			v, err := decodeValue(value)
			if err != nil {
				return nil, fmt.Errorf("ParseMetadata.%s: %w", key, err)
			}
			if strings.HasSuffix(name, "_id") {
				metadata[name] = strings.TrimSpace(toString(v))
			} else {
				metadata[name] = parseValue(v)
			}
		}
	}

	if _, ok := metadata["acquisition_date"]; !ok {
		if coverage, ok := metadata["temporal_coverage"].([]interface{}); ok {
			metadata["acquisition_date"] = coverage[0]
		}
	}
	return metadata, nil
}

// parseBrowseMetadata normalizes the browse product list of a scene, keyed by
// product name. Field values (LandsatLook URLs, pixel sizes) are kept as-is.
func parseBrowseMetadata(raw json.RawMessage) (map[string]map[string]interface{}, error) {
	var products []map[string]interface{}
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, err
	}
	browse := map[string]map[string]interface{}{}
	for _, product := range products {
		name, _ := product["browseName"].(string)
		fields := map[string]interface{}{}
		for field, value := range product {
			fields[camelToSnake(field)] = value
		}
		browse[titleToSnake(name)] = fields
	}
	return browse, nil
}

// parseMetadataFields normalizes the "metadata" field list of a scene
func parseMetadataFields(fields []metadataField) Metadata {
	metadata := Metadata{}
	for _, field := range fields {
		name := titleToSnake(field.FieldName)
		// abbreviate "identifier" by "id" for shorter names
		name = strings.ReplaceAll(name, "identifier", "id")
		// always use "acquisition_date" instead of "date_acquired" for consistency
		if name == "date_acquired" {
			name = "acquisition_date"
		}
		// remove processing-level information in field names for consistency
		name = strings.ReplaceAll(name, "_l1", "")
		name = strings.ReplaceAll(name, "_l2", "")
		// corner coordinates are already available through the spatial coverage
		dictID := strings.TrimSpace(field.DictionaryLink[strings.LastIndex(field.DictionaryLink, "#")+1:])
		if dictID == "coordinates_degrees" {
			continue
		}
		// Sentinel metadata has an "Entity ID" field that would conflict with
		// the entityId field of the API
		if name == "entity_id" {
			name = "sentinel_entity_id"
		}
		if strings.HasSuffix(name, "_id") {
			// numeric identifiers stay strings
			metadata[name] = strings.TrimSpace(toString(field.Value))
		} else {
			metadata[name] = parseValue(field.Value)
		}
	}
	return metadata
}

// decodeValue decodes a raw JSON value, keeping numbers as json.Number
func decodeValue(raw json.RawMessage) (interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var v interface{}
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseValue coerces a metadata value to int, float64 or time.Time if possible
func parseValue(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if i, err := strconv.Atoi(v.String()); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case float64:
		if i := int(v); float64(i) == v {
			return i
		}
		return v
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return toDate(s)
	}
	return value
}

// toDate converts a string to time.Time if possible, returning the string unchanged otherwise
func toDate(s string) interface{} {
	if t, err := dateparse.ParseAny(s); err == nil {
		return t
	}
	// start_time/end_time use a year:day-of-year layout with fractional seconds
	nofrag, frag, _ := strings.Cut(s, ".")
	if t, err := time.Parse(julianTimeLayout, nofrag); err == nil {
		if len(frag) > 6 {
			frag = frag[:6]
		}
		if us, err := strconv.Atoi(frag); err == nil {
			for i := len(frag); i < 6; i++ {
				us *= 10
			}
			t = t.Add(time.Duration(us) * time.Microsecond)
		}
		return t
	}
	return s
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", value)
}

// titleToSnake converts a title-case field name to snake_case
func titleToSnake(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(s), " ", "_"), "/", "-")
}

// camelToSnake converts a camelCase field name to snake_case
func camelToSnake(s string) string {
	var b strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c + 'a' - 'A')
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}
