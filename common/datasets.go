package common

// Catalog datasets supported for search and download
const (
	DatasetLandsatTMC1    = "landsat_tm_c1"
	DatasetLandsatETMC1   = "landsat_etm_c1"
	DatasetLandsat8C1     = "landsat_8_c1"
	DatasetLandsatTMC2L1  = "landsat_tm_c2_l1"
	DatasetLandsatETMC2L1 = "landsat_etm_c2_l1"
	DatasetLandsatOTC2L1  = "landsat_ot_c2_l1"
	DatasetLandsatTMC2L2  = "landsat_tm_c2_l2"
	DatasetLandsatETMC2L2 = "landsat_etm_c2_l2"
	DatasetLandsatOTC2L2  = "landsat_ot_c2_l2"
	DatasetSentinel2A     = "sentinel_2a"
)

// Datasets lists the supported catalog datasets
var Datasets = []string{
	DatasetLandsatTMC1,
	DatasetLandsatETMC1,
	DatasetLandsat8C1,
	DatasetLandsatTMC2L1,
	DatasetLandsatETMC2L1,
	DatasetLandsatOTC2L1,
	DatasetLandsatTMC2L2,
	DatasetLandsatETMC2L2,
	DatasetLandsatOTC2L2,
	DatasetSentinel2A,
}

// IsSupportedDataset returns true if the dataset can be searched and downloaded
func IsSupportedDataset(dataset string) bool {
	for _, d := range Datasets {
		if d == dataset {
			return true
		}
	}
	return false
}
