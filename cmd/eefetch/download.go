package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geofactory/eefetch/interface/catalog/m2m"
	"github.com/geofactory/eefetch/interface/provider"
	"github.com/geofactory/eefetch/service"
	"github.com/geofactory/eefetch/service/log"
)

var (
	downloadOutput    string
	downloadDataset   string
	downloadTimeout   int
	downloadSkip      bool
	downloadOverwrite bool
	downloadExtract   bool
	downloadSource    string
	downloadAwsKey    string
	downloadAwsSecret string
)

var downloadCmd = &cobra.Command{
	Use:   "download IDENTIFIER...",
	Short: "Download scenes by entity id, scene id or product id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var downloader provider.SceneDownloader
		var ee *provider.EarthExplorer
		var username, password string
		switch downloadSource {
		case "ee":
			var err error
			username, password, err = credentials()
			if err != nil {
				return err
			}
			api, err := m2m.NewAPI(ctx, username, password)
			if err != nil {
				return err
			}
			defer api.Logout(ctx)
			ee, err = provider.NewEarthExplorer(ctx, username, password, api)
			if err != nil {
				return err
			}
			defer ee.Logout(ctx)
			downloader = ee
		case "aws":
			downloader = provider.NewLandsatAws(downloadAwsKey, downloadAwsSecret)
		default:
			return fmt.Errorf("unknown source %q (expect ee or aws)", downloadSource)
		}

		options := provider.DownloadOptions{
			OutputDir: downloadOutput,
			Dataset:   downloadDataset,
			Timeout:   time.Duration(downloadTimeout) * time.Second,
			Skip:      downloadSkip,
			Overwrite: downloadOverwrite,
			Extract:   downloadExtract,
		}

		identifiers := service.StringSet{}
		for _, arg := range args {
			identifiers.Push(arg)
		}

		failed := 0
		for _, identifier := range identifiers.Slice() {
			// sessions expire during long batches
			if ee != nil && !ee.LoggedIn() {
				if err := ee.Login(ctx, username, password); err != nil {
					return err
				}
			}
			file, err := downloader.Download(ctx, identifier, options)
			if err != nil {
				log.Logger(ctx).Error("download failed", zap.String("scene", identifier), zap.Error(err))
				failed++
				continue
			}
			fmt.Println(file)
		}
		if failed > 0 {
			return fmt.Errorf("%d/%d downloads failed", failed, len(identifiers.Slice()))
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", ".", "output directory")
	downloadCmd.Flags().StringVarP(&downloadDataset, "dataset", "d", "", "dataset (guessed from the identifier if empty)")
	downloadCmd.Flags().IntVarP(&downloadTimeout, "timeout", "t", 300, "download timeout in seconds")
	downloadCmd.Flags().BoolVar(&downloadSkip, "skip", false, "resolve filenames without downloading")
	downloadCmd.Flags().BoolVar(&downloadOverwrite, "overwrite", false, "overwrite existing files")
	downloadCmd.Flags().BoolVar(&downloadExtract, "extract", false, "extract downloaded archives")
	downloadCmd.Flags().StringVar(&downloadSource, "source", "ee", "download source (ee|aws)")
	downloadCmd.Flags().StringVar(&downloadAwsKey, "aws-access-key-id", "", "AWS access key (source=aws)")
	downloadCmd.Flags().StringVar(&downloadAwsSecret, "aws-secret-access-key", "", "AWS secret key (source=aws)")
}
