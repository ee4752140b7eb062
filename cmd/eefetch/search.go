package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/spf13/cobra"

	"github.com/geofactory/eefetch/interface/catalog/m2m"
)

var (
	searchDataset   string
	searchLongitude float64
	searchLatitude  float64
	searchBbox      []float64
	searchClouds    int
	searchStart     string
	searchEnd       string
	searchMonths    []int
	searchLimit     int
	searchOutput    string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for scenes in the USGS catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := searchFilter(cmd)
		if err != nil {
			return err
		}

		username, password, err := credentials()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		api, err := m2m.NewAPI(ctx, username, password)
		if err != nil {
			return err
		}
		defer api.Logout(ctx)

		scenes, err := api.Search(ctx, searchDataset, filter, searchLimit)
		if err != nil {
			return err
		}
		return printScenes(scenes, searchOutput)
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchDataset, "dataset", "d", "", "dataset to search (e.g. landsat_ot_c2_l2, sentinel_2a)")
	searchCmd.MarkFlagRequired("dataset")
	searchCmd.Flags().Float64Var(&searchLongitude, "longitude", 0, "point of interest (longitude)")
	searchCmd.Flags().Float64Var(&searchLatitude, "latitude", 0, "point of interest (latitude)")
	searchCmd.Flags().Float64SliceVar(&searchBbox, "bbox", nil, "bounding box (xmin,ymin,xmax,ymax)")
	searchCmd.Flags().IntVarP(&searchClouds, "clouds", "c", 0, "maximum cloud cover (%)")
	searchCmd.Flags().StringVar(&searchStart, "start", "", "start date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "end date (YYYY-MM-DD, default today)")
	searchCmd.Flags().IntSliceVar(&searchMonths, "months", nil, "limit results to the given months (1-12)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", m2m.DefaultMaxResults, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "entity_id", "output format (entity_id|display_id|json|csv)")
}

func searchFilter(cmd *cobra.Command) (m2m.SceneFilter, error) {
	filter := m2m.SceneFilter{}

	switch {
	case cmd.Flags().Changed("bbox"):
		if len(searchBbox) != 4 {
			return filter, fmt.Errorf("--bbox expects xmin,ymin,xmax,ymax")
		}
		filter.SpatialFilter = m2m.NewSpatialFilterMbr(searchBbox[0], searchBbox[1], searchBbox[2], searchBbox[3])
	case cmd.Flags().Changed("longitude") || cmd.Flags().Changed("latitude"):
		filter.SpatialFilter = m2m.NewSpatialFilterPoint(searchLongitude, searchLatitude)
	}

	if cmd.Flags().Changed("clouds") {
		filter.CloudCoverFilter = &m2m.CloudCoverFilter{Max: searchClouds}
	}

	if searchStart != "" || searchEnd != "" {
		start, end := searchStart, searchEnd
		if end == "" {
			end = time.Now().Format("2006-01-02")
		}
		if start == "" {
			return filter, fmt.Errorf("--end requires --start")
		}
		for _, date := range []string{start, end} {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return filter, fmt.Errorf("invalid date %q (expect YYYY-MM-DD)", date)
			}
		}
		filter.AcquisitionFilter = &m2m.AcquisitionFilter{Start: start, End: end}
	}

	if len(searchMonths) > 0 {
		for _, m := range searchMonths {
			if m < 1 || m > 12 {
				return filter, fmt.Errorf("invalid month %d", m)
			}
		}
		filter.SeasonalFilter = searchMonths
	}

	return filter, nil
}

func printScenes(scenes []m2m.Metadata, output string) error {
	switch output {
	case "entity_id":
		for _, scene := range scenes {
			fmt.Println(scene["entity_id"])
		}
	case "display_id":
		for _, scene := range scenes {
			fmt.Println(scene["display_id"])
		}
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		for _, scene := range scenes {
			if g, ok := scene["spatial_coverage"].(geom.Geometry); ok {
				scene["spatial_coverage"] = geojson.Geometry{Geometry: g}
			}
			if err := encoder.Encode(scene); err != nil {
				return err
			}
		}
	case "csv":
		writer := csv.NewWriter(os.Stdout)
		if err := writer.Write([]string{"entity_id", "display_id", "acquisition_date", "cloud_cover"}); err != nil {
			return err
		}
		for _, scene := range scenes {
			record := []string{
				fmt.Sprint(scene["entity_id"]),
				fmt.Sprint(scene["display_id"]),
				"",
				"",
			}
			if date, ok := scene["acquisition_date"].(time.Time); ok {
				record[2] = date.Format("2006-01-02")
			}
			if clouds, ok := scene["cloud_cover"]; ok {
				record[3] = fmt.Sprint(clouds)
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}
