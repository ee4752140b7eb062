package provider

import (
	"context"
	"time"
)

// SceneDownloader is the interface of a scene download service
type SceneDownloader interface {
	// Download a scene archive and return the path of the local file.
	// identifier is an entity id or a display id, for example
	// LC80380302020274LGN00 or LC08_L1TP_038030_20200930_20201006_01_T1.
	Download(ctx context.Context, identifier string, options DownloadOptions) (string, error)

	// Name of the downloader
	Name() string
}

// DownloadOptions control a single download call
type DownloadOptions struct {
	// OutputDir is created if it does not exist
	OutputDir string
	// Dataset is guessed from the identifier if empty
	Dataset string
	// Timeout of each request (not of the whole transfer)
	Timeout time.Duration
	// Skip resolves the local filename without transferring any byte
	Skip bool
	// Overwrite restarts partial files instead of resuming them
	Overwrite bool
	// Extract unarchives the product once downloaded
	Extract bool
}
