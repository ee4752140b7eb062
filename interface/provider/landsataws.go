package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geofactory/eefetch/common"
	"github.com/geofactory/eefetch/service/log"
)

const (
	landsatAwsBucket         = "usgs-landsat"
	landsatAwsPrefixTemplate = "collection02/level-%s/standard/%s/{YEAR}/{PATH}/{ROW}/{SCENE}/"
	landsatAwsRegion         = "us-west-2"
)

// LandsatAws implements SceneDownloader for the requester-pays collection-2
// mirror on S3. Scenes are identified by their product id and downloaded as a
// directory of band files instead of a single archive.
type LandsatAws struct {
	accessKeyID     string
	secretAccessKey string
}

// Name implements SceneDownloader
func (ip *LandsatAws) Name() string {
	return "LandsatAws"
}

// NewLandsatAws creates a SceneDownloader for the S3 mirror
func NewLandsatAws(accessKeyID, secretAccessKey string) *LandsatAws {
	return &LandsatAws{accessKeyID, secretAccessKey}
}

// sensorDir returns the sensor directory of the bucket layout
func sensorDir(p common.ProductID) (string, error) {
	switch {
	case p.Satellite >= 8:
		switch p.Sensor {
		case "O":
			return "oli", nil
		case "T":
			return "tirs", nil
		default:
			return "oli-tirs", nil
		}
	case p.Satellite == 7:
		return "etm", nil
	case p.Satellite == 4, p.Satellite == 5:
		return "tm", nil
	}
	return "", fmt.Errorf("sensorDir: no mirror for Landsat-%d", p.Satellite)
}

// Download implements SceneDownloader
func (ip *LandsatAws) Download(ctx context.Context, identifier string, options DownloadOptions) (string, error) {
	product, err := common.ParseProductID(identifier)
	if err != nil {
		return "", fmt.Errorf("LandsatAws: the mirror is addressed by product id: %w", err)
	}
	if product.CollectionNumber != 2 {
		return "", fmt.Errorf("LandsatAws: only collection 2 is mirrored (got %s)", identifier)
	}
	sensor, err := sensorDir(product)
	if err != nil {
		return "", fmt.Errorf("LandsatAws.%w", err)
	}
	level := strings.ToLower(product.Level[1:2])
	prefix := common.FormatBrackets(fmt.Sprintf(landsatAwsPrefixTemplate, level, sensor), product.Info())

	productDir := filepath.Join(options.OutputDir, identifier)
	if options.Skip {
		return productDir, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.accessKeyID, ip.secretAccessKey, "")),
		config.WithRegion(landsatAwsRegion),
	)
	if err != nil {
		return "", fmt.Errorf("LandsatAws.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})

	paginator := s3.NewListObjectsV2Paginator(client,
		&s3.ListObjectsV2Input{
			Bucket:       aws.String(landsatAwsBucket),
			Prefix:       aws.String(prefix),
			RequestPayer: "requester",
		},
		func(o *s3.ListObjectsV2PaginatorOptions) {
			o.Limit = 200 // much more than the typical number of files in a Landsat product
		},
	)

	if err := os.MkdirAll(productDir, 0755); err != nil {
		return "", fmt.Errorf("LandsatAws.MkdirAll: %w", err)
	}

	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("LandsatAws.NextPage: %w", err)
		}
		for _, object := range page.Contents {
			found = true
			objectKey := aws.ToString(object.Key)
			localFile := filepath.Join(productDir, path.Base(objectKey))

			// band files are immutable: an existing complete file is kept
			if info, err := os.Stat(localFile); err == nil && object.Size != nil && info.Size() == *object.Size && !options.Overwrite {
				log.Logger(ctx).Sugar().Debugf("[AWS] %s is already complete (%s)", path.Base(objectKey), fmtBytes(*object.Size))
				continue
			}
			if err := ip.downloadObject(ctx, downloader, objectKey, localFile); err != nil {
				return "", fmt.Errorf("LandsatAws.%w", err)
			}
		}
	}
	if !found {
		return "", ErrProductNotFound{Product: identifier, Message: "no object under s3://" + landsatAwsBucket + "/" + prefix}
	}
	return productDir, nil
}

func (ip *LandsatAws) downloadObject(ctx context.Context, downloader *manager.Downloader, objectKey, localFile string) error {
	file, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("downloadObject.Create: %w", err)
	}
	defer file.Close()

	if _, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket:       aws.String(landsatAwsBucket),
		Key:          aws.String(objectKey),
		RequestPayer: "requester",
	}); err != nil {
		return fmt.Errorf("downloadObject[%s]: %w", objectKey, err)
	}
	return nil
}
