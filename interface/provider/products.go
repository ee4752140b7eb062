package provider

import (
	"github.com/geofactory/eefetch/common"
	"github.com/geofactory/eefetch/service"
)

// ProductTable maps a dataset to the ordered list of GeoTIFF data product ids
// to try when building a download URL. The portal's internal product id of a
// dataset has changed over time and the right one cannot be known in advance:
// candidates are tried in order until one is available.
type ProductTable map[string][]string

// DefaultProducts is the data product table of the EarthExplorer portal
var DefaultProducts = ProductTable{
	common.DatasetLandsatTMC1:    {"5e83d08fd9932768"},
	common.DatasetLandsatETMC1:   {"5e83a507d6aaa3db"},
	common.DatasetLandsat8C1:     {"5e83d0b84df8d8c2"},
	common.DatasetLandsatTMC2L1:  {"5e83d0a0f94d7d8d"},
	common.DatasetLandsatETMC2L1: {"5e83d0d0d2aaa488"},
	common.DatasetLandsatOTC2L1:  {"5e81f14ff4f9941c"},
	common.DatasetLandsatTMC2L2:  {"5e83d11933473426"},
	common.DatasetLandsatETMC2L2: {"5e83d12aada2e3c5"},
	common.DatasetLandsatOTC2L2:  {"5e83d14f30ea90a9", "5e83d14fec7cae84", "632211e26883b1f7"},
	common.DatasetSentinel2A:     {"5e83a42c6eba8084"},
}

// Candidates returns the ordered data product ids of a dataset
func (t ProductTable) Candidates(dataset string) ([]string, error) {
	candidates, ok := t[dataset]
	if !ok || len(candidates) == 0 {
		return nil, service.ErrUnsupportedDataset{Dataset: dataset}
	}
	return candidates, nil
}
