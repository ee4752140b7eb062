package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cavaliercoder/grab"

	"github.com/geofactory/eefetch/common"
	"github.com/geofactory/eefetch/service"
	"github.com/geofactory/eefetch/service/log"
)

const (
	// EELoginURL is the login page of the ERS single sign-on
	EELoginURL = "https://ers.cr.usgs.gov/login/"
	// EELogoutURL invalidates the portal session
	EELogoutURL = "https://earthexplorer.usgs.gov/logout"
	// EEDownloadURL is the download endpoint of a data product of a scene
	EEDownloadURL = "https://earthexplorer.usgs.gov/download/{PRODUCT_ID}/{ENTITY_ID}/EE/"

	// sessionCookie carries the portal session identity once logged in
	sessionCookie = "EROS_SSO_production_secure"

	// DefaultTimeout of the portal requests
	DefaultTimeout = 300 * time.Second
)

// the login form is an undocumented external contract: the anti-forgery token
// is scraped from the HTML and the extraction is isolated here
var csrfRe = regexp.MustCompile(`name="csrf" value="(.+?)"`)

func csrfToken(body []byte) (string, error) {
	m := csrfRe.FindSubmatch(body)
	if m == nil || len(m[1]) == 0 {
		return "", fmt.Errorf("csrfToken: token not found in the login page")
	}
	return string(m[1]), nil
}

// EntityResolver resolves display identifiers to entity identifiers
type EntityResolver interface {
	GetEntityID(ctx context.Context, displayID, dataset string) (string, error)
}

// EarthExplorer implements SceneDownloader for the EarthExplorer portal. The
// portal is cookie-based: a session is created at construction and must be
// checked with LoggedIn before each download.
type EarthExplorer struct {
	LoginURL    string
	LogoutURL   string
	DownloadURL string
	Products    ProductTable

	api    EntityResolver
	client *http.Client
}

// NewEarthExplorer logs in to the EarthExplorer portal. api is used to resolve
// display identifiers (it may be nil if only entity identifiers are downloaded).
func NewEarthExplorer(ctx context.Context, username, password string, api EntityResolver) (*EarthExplorer, error) {
	ee := NewEarthExplorerURL(EELoginURL, EELogoutURL, EEDownloadURL, api)
	if err := ee.Login(ctx, username, password); err != nil {
		return nil, fmt.Errorf("NewEarthExplorer.%w", err)
	}
	return ee, nil
}

// NewEarthExplorerURL creates a portal client on custom endpoints, without
// logging in. downloadURL must carry the {PRODUCT_ID} and {ENTITY_ID} keys.
func NewEarthExplorerURL(loginURL, logoutURL, downloadURL string, api EntityResolver) *EarthExplorer {
	jar, _ := cookiejar.New(nil)
	return &EarthExplorer{
		LoginURL:    loginURL,
		LogoutURL:   logoutURL,
		DownloadURL: downloadURL,
		Products:    DefaultProducts,
		api:         api,
		client:      &http.Client{Jar: jar},
	}
}

// Name implements SceneDownloader
func (ee *EarthExplorer) Name() string {
	return "EarthExplorer"
}

// Login authenticates to the portal: the login page is fetched for its
// anti-forgery token, then the credentials are posted with it
func (ee *EarthExplorer) Login(ctx context.Context, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", ee.LoginURL, nil)
	if err != nil {
		return fmt.Errorf("Login: %w", err)
	}
	body, err := service.GetBodyRetryReq(ee.client, req, 3)
	if err != nil {
		return fmt.Errorf("Login: %w", err)
	}
	csrf, err := csrfToken(body)
	if err != nil {
		return fmt.Errorf("Login.%w", err)
	}

	form := url.Values{"username": {username}, "password": {password}, "csrf": {csrf}}
	req, err = http.NewRequestWithContext(ctx, "POST", ee.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("Login: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := ee.client.Do(req)
	if err != nil {
		return fmt.Errorf("Login: %w", service.MakeTemporary(err))
	}
	resp.Body.Close()

	if !ee.LoggedIn() {
		return service.ErrAuthentication{Code: "EE_LOGIN", Message: "login failed (no session cookie)"}
	}
	return nil
}

// LoggedIn checks the session cookie without any network round-trip
func (ee *EarthExplorer) LoggedIn() bool {
	u, err := url.Parse(ee.LoginURL)
	if err != nil {
		return false
	}
	for _, cookie := range ee.client.Jar.Cookies(u) {
		if cookie.Name == sessionCookie && cookie.Value != "" {
			return true
		}
	}
	return false
}

// Logout requests the logout endpoint (best effort)
func (ee *EarthExplorer) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", ee.LogoutURL, nil)
	if err != nil {
		return fmt.Errorf("Logout: %w", err)
	}
	resp, err := ee.client.Do(req)
	if err != nil {
		return fmt.Errorf("Logout: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Download implements SceneDownloader. The data products of the dataset are
// tried in order: a candidate failure is logged and the next one is tried,
// a timeout is fatal. If the local file is already complete, no transfer is
// performed; if it is partial, the transfer resumes where it stopped unless
// options.Overwrite is set.
func (ee *EarthExplorer) Download(ctx context.Context, identifier string, options DownloadOptions) (string, error) {
	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("EarthExplorer.MkdirAll: %w", err)
	}

	dataset := strings.ToLower(options.Dataset)
	if dataset == "" {
		var err error
		if dataset, err = common.GuessDataset(identifier); err != nil {
			return "", fmt.Errorf("EarthExplorer.%w", err)
		}
	} else if !common.IsSupportedDataset(dataset) {
		return "", service.ErrUnsupportedDataset{Dataset: dataset}
	}

	entityID := identifier
	if common.IsDisplayID(identifier) {
		if ee.api == nil {
			return "", fmt.Errorf("EarthExplorer: no resolver to look up the entity id of %s", identifier)
		}
		var err error
		if entityID, err = ee.api.GetEntityID(ctx, identifier, dataset); err != nil {
			return "", fmt.Errorf("EarthExplorer.%w", err)
		}
	}

	candidates, err := ee.Products.Candidates(dataset)
	if err != nil {
		return "", fmt.Errorf("EarthExplorer.%w", err)
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var reasons []error
	for _, productID := range candidates {
		downloadURL := common.FormatBrackets(ee.DownloadURL, map[string]string{"PRODUCT_ID": productID, "ENTITY_ID": entityID})
		localFile, err := ee.download(ctx, downloadURL, options, timeout)
		if err == nil {
			return localFile, nil
		}
		var timeoutErr service.ErrTimeout
		if errors.As(err, &timeoutErr) {
			return "", fmt.Errorf("EarthExplorer[%s]: %w", entityID, err)
		}
		log.Logger(ctx).Sugar().Debugf("[EE] %s: product %s: %v", entityID, productID, err)
		reasons = append(reasons, fmt.Errorf("%s: %w", productID, err))
	}
	return "", service.ErrDownload{Scene: entityID, Reasons: reasons}
}

// download tries one data product URL
func (ee *EarthExplorer) download(ctx context.Context, downloadURL string, options DownloadOptions, timeout time.Duration) (string, error) {
	fileURL, err := ee.probe(ctx, downloadURL, timeout)
	if err != nil {
		return "", err
	}
	filename, size, err := ee.resolveFile(ctx, fileURL, timeout)
	if err != nil {
		return "", err
	}
	localFile := filepath.Join(options.OutputDir, filename)
	if options.Skip {
		return localFile, nil
	}

	if info, err := os.Stat(localFile); err == nil && size > 0 && info.Size() == size {
		log.Logger(ctx).Sugar().Debugf("[EE] %s is already complete (%s)", filename, fmtBytes(size))
		return localFile, nil
	}

	if err := ee.transfer(ctx, fileURL, localFile, options.Overwrite, timeout); err != nil {
		return "", err
	}

	if options.Extract {
		if err := unarchive(localFile, options.OutputDir); err != nil {
			return "", fmt.Errorf("download.Unarchive: %w", err)
		}
		os.Remove(localFile)
		return options.OutputDir, nil
	}
	return localFile, nil
}

// probe checks the availability of a data product without following the
// redirection to the binary payload. The endpoint answers with a JSON body
// carrying either an error message or the URL of the file.
func (ee *EarthExplorer) probe(ctx context.Context, downloadURL string, timeout time.Duration) (string, error) {
	client := &http.Client{
		Jar:       ee.client.Jar,
		Transport: timeoutTransport(timeout),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, "GET", downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("probe: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if terr := asTimeout(err, timeout); terr != nil {
			return "", terr
		}
		return "", fmt.Errorf("probe: %w", service.MakeTemporary(err))
	}
	body, err := service.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("probe.ReadBody: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("probe[%s]: http status %d", downloadURL, resp.StatusCode)
	}
	var result struct {
		ErrorMessage string `json:"errorMessage"`
		URL          string `json:"url"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("probe.Unmarshal: %w (response: %s)", err, body)
	}
	if result.ErrorMessage != "" {
		return "", ErrProductNotFound{Product: downloadURL, Message: result.ErrorMessage}
	}
	return result.URL, nil
}

// resolveFile resolves the name and size of the remote file from the response
// headers, without reading the body
func (ee *EarthExplorer) resolveFile(ctx context.Context, fileURL string, timeout time.Duration) (string, int64, error) {
	client := &http.Client{Jar: ee.client.Jar, Transport: timeoutTransport(timeout)}
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("resolveFile: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if terr := asTimeout(err, timeout); terr != nil {
			return "", 0, terr
		}
		return "", 0, fmt.Errorf("resolveFile: %w", service.MakeTemporary(err))
	}
	resp.Body.Close()

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil || params["filename"] == "" {
		return "", 0, fmt.Errorf("resolveFile[%s]: no filename in Content-Disposition", fileURL)
	}
	return params["filename"], resp.ContentLength, nil
}

// transfer downloads the file, resuming a partial local file with a range
// request unless overwrite is set
func (ee *EarthExplorer) transfer(ctx context.Context, fileURL, localFile string, overwrite bool, timeout time.Duration) error {
	req, err := grab.NewRequest(localFile, fileURL)
	if err != nil {
		return fmt.Errorf("transfer.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = overwrite

	client := grab.NewClient()
	client.HTTPClient = &http.Client{Jar: ee.client.Jar, Transport: timeoutTransport(timeout)}
	resp := client.Do(req)

	displayProgress(ctx, filepath.Base(localFile), resp, 0.05)

	if err := resp.Err(); err != nil {
		if terr := asTimeout(err, timeout); terr != nil {
			return terr
		}
		err = fmt.Errorf("transfer[%s]: %w", fileURL, err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}
	return nil
}
