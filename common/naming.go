package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Landsat scenes are identified either by a product identifier
// (LXSS_LLLL_PPPRRR_YYYYMMDD_yyyymmdd_CC_TX) or by a short scene identifier
// (LXSPPPRRRYYYYDDDGSIVV). Sentinel-2 scenes are identified either by a
// display identifier (e.g. L1C_T18QYF_A011919_20171127T154624) or by a
// decimal entity identifier.

// IsProductID returns true if the identifier is shaped like a Landsat product id
func IsProductID(identifier string) bool {
	return len(identifier) == 40 && strings.HasPrefix(identifier, "L")
}

// IsSceneID returns true if the identifier is shaped like a Landsat scene id
func IsSceneID(identifier string) bool {
	return len(identifier) == 21 && strings.HasPrefix(identifier, "L")
}

// IsSentinelDisplayID returns true if the identifier is shaped like a Sentinel-2 display id
func IsSentinelDisplayID(identifier string) bool {
	return len(identifier) == 34 && strings.HasPrefix(identifier, "L")
}

// IsDisplayID returns true if the identifier is a display identifier (Landsat
// product id or Sentinel-2 display id)
func IsDisplayID(identifier string) bool {
	return IsProductID(identifier) || IsSentinelDisplayID(identifier)
}

// IsEntityID returns true if the identifier is an entity identifier (Landsat
// scene id or Sentinel-2 entity id)
func IsEntityID(identifier string) bool {
	return IsSceneID(identifier) || IsSentinelEntityID(identifier)
}

// IsSentinelEntityID returns true if the identifier is shaped like a Sentinel-2 entity id
func IsSentinelEntityID(identifier string) bool {
	if len(identifier) != 8 {
		return false
	}
	for _, c := range identifier {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ProductID is a parsed Landsat product identifier
type ProductID struct {
	ProductID          string
	Sensor             string
	Satellite          int
	Level              string // processing correction level (e.g. L1TP)
	Path, Row          int
	AcquisitionDate    time.Time
	ProcessingDate     time.Time
	CollectionNumber   int
	CollectionCategory string
}

// SceneID is a parsed Landsat scene identifier
type SceneID struct {
	SceneID         string
	Sensor          string
	Satellite       int
	Path, Row       int
	AcquisitionDate time.Time
	GroundStation   string
	ArchiveVersion  string
}

// ParseProductID parses a Landsat product identifier
// LXSS_LLLL_PPPRRR_YYYYMMDD_yyyymmdd_CC_TX
func ParseProductID(identifier string) (ProductID, error) {
	if !IsProductID(identifier) {
		return ProductID{}, fmt.Errorf("invalid Landsat product id: %s", identifier)
	}
	satellite, err := strconv.Atoi(identifier[2:4])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.Satellite: %w", err)
	}
	path, err := strconv.Atoi(identifier[10:13])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.Path: %w", err)
	}
	row, err := strconv.Atoi(identifier[13:16])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.Row: %w", err)
	}
	acquisition, err := time.Parse("20060102", identifier[17:25])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.AcquisitionDate: %w", err)
	}
	processing, err := time.Parse("20060102", identifier[26:34])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.ProcessingDate: %w", err)
	}
	collection, err := strconv.Atoi(identifier[35:37])
	if err != nil {
		return ProductID{}, fmt.Errorf("ParseProductID.CollectionNumber: %w", err)
	}
	return ProductID{
		ProductID:          identifier,
		Sensor:             identifier[1:2],
		Satellite:          satellite,
		Level:              identifier[5:9],
		Path:               path,
		Row:                row,
		AcquisitionDate:    acquisition,
		ProcessingDate:     processing,
		CollectionNumber:   collection,
		CollectionCategory: identifier[38:40],
	}, nil
}

// ParseSceneID parses a Landsat scene identifier LXSPPPRRRYYYYDDDGSIVV
func ParseSceneID(identifier string) (SceneID, error) {
	if !IsSceneID(identifier) {
		return SceneID{}, fmt.Errorf("invalid Landsat scene id: %s", identifier)
	}
	satellite, err := strconv.Atoi(identifier[2:3])
	if err != nil {
		return SceneID{}, fmt.Errorf("ParseSceneID.Satellite: %w", err)
	}
	path, err := strconv.Atoi(identifier[3:6])
	if err != nil {
		return SceneID{}, fmt.Errorf("ParseSceneID.Path: %w", err)
	}
	row, err := strconv.Atoi(identifier[6:9])
	if err != nil {
		return SceneID{}, fmt.Errorf("ParseSceneID.Row: %w", err)
	}
	acquisition, err := time.Parse("2006002", identifier[9:16])
	if err != nil {
		return SceneID{}, fmt.Errorf("ParseSceneID.AcquisitionDate: %w", err)
	}
	return SceneID{
		SceneID:         identifier,
		Sensor:          identifier[1:2],
		Satellite:       satellite,
		Path:            path,
		Row:             row,
		AcquisitionDate: acquisition,
		GroundStation:   identifier[16:19],
		ArchiveVersion:  identifier[19:21],
	}, nil
}

// LandsatDataset returns the catalog dataset holding the scenes of the given
// satellite, collection ("c1" or "c2") and processing level ("l1" or "l2").
// Collection 1 datasets are not split by level.
func LandsatDataset(satellite int, collection, level string) (string, error) {
	var dataset string
	switch {
	case satellite == 5:
		dataset = "landsat_tm"
	case satellite == 7:
		dataset = "landsat_etm"
	case satellite == 8 && collection == "c1":
		dataset = "landsat_8"
	case (satellite == 8 || satellite == 9) && collection == "c2":
		dataset = "landsat_ot"
	default:
		return "", fmt.Errorf("no dataset for Landsat-%d %s", satellite, collection)
	}
	dataset += "_" + collection
	if collection == "c2" {
		dataset += "_" + level
	}
	return dataset, nil
}

// GuessDataset guesses the catalog dataset a scene belongs to from the shape
// and content of its identifier. Sentinel-2 identifiers always map to
// DatasetSentinel2A.
func GuessDataset(identifier string) (string, error) {
	switch {
	case IsProductID(identifier):
		meta, err := ParseProductID(identifier)
		if err != nil {
			return "", fmt.Errorf("GuessDataset.%w", err)
		}
		collection := fmt.Sprintf("c%d", meta.CollectionNumber)
		level := strings.ToLower(meta.Level[0:2])
		return LandsatDataset(meta.Satellite, collection, level)
	case IsSceneID(identifier):
		meta, err := ParseSceneID(identifier)
		if err != nil {
			return "", fmt.Errorf("GuessDataset.%w", err)
		}
		return LandsatDataset(meta.Satellite, "c1", "l1")
	case IsSentinelDisplayID(identifier), IsSentinelEntityID(identifier):
		return DatasetSentinel2A, nil
	}
	return "", fmt.Errorf("dataset cannot be guessed from identifier %s", identifier)
}

// Info returns the fields of the product id as a map suitable for FormatBrackets
func (p ProductID) Info() map[string]string {
	return map[string]string{
		"SCENE":      p.ProductID,
		"SENSOR":     p.Sensor,
		"SATELLITE":  fmt.Sprintf("%02d", p.Satellite),
		"LEVEL":      p.Level,
		"PATH":       fmt.Sprintf("%03d", p.Path),
		"ROW":        fmt.Sprintf("%03d", p.Row),
		"DATE":       p.AcquisitionDate.Format("20060102"),
		"YEAR":       p.AcquisitionDate.Format("2006"),
		"MONTH":      p.AcquisitionDate.Format("01"),
		"DAY":        p.AcquisitionDate.Format("02"),
		"COLLECTION": fmt.Sprintf("%02d", p.CollectionNumber),
		"CATEGORY":   p.CollectionCategory,
	}
}

// Info returns the fields of the scene id as a map suitable for FormatBrackets
func (s SceneID) Info() map[string]string {
	return map[string]string{
		"SCENE":           s.SceneID,
		"SENSOR":          s.Sensor,
		"SATELLITE":       strconv.Itoa(s.Satellite),
		"PATH":            fmt.Sprintf("%03d", s.Path),
		"ROW":             fmt.Sprintf("%03d", s.Row),
		"DATE":            s.AcquisitionDate.Format("20060102"),
		"YEAR":            s.AcquisitionDate.Format("2006"),
		"JULIAN_DAY":      s.AcquisitionDate.Format("002"),
		"GROUND_STATION":  s.GroundStation,
		"ARCHIVE_VERSION": s.ArchiveVersion,
	}
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys must be keys of ProductID.Info() or SceneID.Info()
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
