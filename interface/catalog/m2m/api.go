package m2m

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geofactory/eefetch/common"
	"github.com/geofactory/eefetch/service"
	"github.com/geofactory/eefetch/service/log"
)

const (
	// APIURL is the default endpoint of the USGS machine-to-machine API
	APIURL = "https://m2m.cr.usgs.gov/api/api/json/stable/"

	// DefaultMaxResults is the number of scenes returned by Search when no
	// limit is given (the API caps a single request to 100 results)
	DefaultMaxResults = 100

	tokenHeader = "X-Auth-Token"
)

// rate-limited requests are retried once after this delay
var rateLimitDelay = 3 * time.Second

// API is a client to the USGS machine-to-machine API
type API struct {
	URL    string
	client *http.Client
	token  string
}

// NewAPI logs in to the M2M API and returns an authenticated client
func NewAPI(ctx context.Context, username, password string) (*API, error) {
	api := &API{URL: APIURL, client: &http.Client{}}
	if err := api.Login(ctx, username, password); err != nil {
		return nil, fmt.Errorf("NewAPI.%w", err)
	}
	return api, nil
}

// apiResponse is the envelope of all M2M API responses
type apiResponse struct {
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

func (r apiResponse) err() error {
	switch r.ErrorCode {
	case "":
		return nil
	case "AUTH_INVALID", "AUTH_UNAUTHROIZED", "AUTH_KEY_INVALID":
		return service.ErrAuthentication{Code: r.ErrorCode, Message: r.ErrorMessage}
	case "RATE_LIMIT":
		return service.ErrRateLimit{Code: r.ErrorCode, Message: r.ErrorMessage}
	}
	return service.ErrAPI{Code: r.ErrorCode, Message: r.ErrorMessage}
}

// Login gets an API key from the user credentials
func (api *API) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("Login.Marshal: %w", err)
	}
	resp, err := service.HTTPPostJSON(ctx, api.client, api.URL+"login", bytes.NewReader(payload), tokenHeader, "")
	if err != nil {
		return fmt.Errorf("Login: %w", service.MakeTemporary(err))
	}
	data, err := decodeResponse(resp)
	if err != nil {
		return fmt.Errorf("Login.%w", err)
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("Login.Unmarshal: %w (response: %s)", err, data)
	}
	api.token = token
	return nil
}

// LoggedIn returns true if the client holds an API key
func (api *API) LoggedIn() bool {
	return api.token != ""
}

// Logout invalidates the API key
func (api *API) Logout(ctx context.Context) error {
	if _, err := api.request(ctx, "logout", nil); err != nil {
		return fmt.Errorf("Logout.%w", err)
	}
	api.token = ""
	return nil
}

// Request performs a raw endpoint request and returns the data of the
// response envelope. params is marshalled as the JSON body of the request.
func (api *API) Request(ctx context.Context, endpoint string, params interface{}) (json.RawMessage, error) {
	return api.request(ctx, endpoint, params)
}

// request performs an endpoint request, retrying once after a fixed delay if
// the account is rate-limited
func (api *API) request(ctx context.Context, endpoint string, params interface{}) (json.RawMessage, error) {
	var body []byte
	if params != nil {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("request.Marshal: %w", err)
		}
	}

	reqID := uuid.New().String()[0:8]
	log.Logger(ctx).Sugar().Debugf("[M2M] %s: %s %s", reqID, endpoint, body)
	start := time.Now()
	data, err := api.do(ctx, api.URL+endpoint, body)
	var rateLimit service.ErrRateLimit
	if errors.As(err, &rateLimit) {
		log.Logger(ctx).Sugar().Debugf("[M2M] %s: %v (retrying in %s)", reqID, rateLimit, rateLimitDelay)
		select {
		case <-time.After(rateLimitDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		data, err = api.do(ctx, api.URL+endpoint, body)
	}
	if err != nil {
		return nil, fmt.Errorf("request[%s]: %w", endpoint, err)
	}
	log.Logger(ctx).Sugar().Debugf("[M2M] %s: done in %v", reqID, time.Since(start))
	return data, nil
}

// do performs a GET with a JSON body as the M2M API expects
func (api *API) do(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	resp, err := service.HTTPGetJSON(ctx, api.client, url, bytes.NewReader(body), tokenHeader, api.token)
	if err != nil {
		return nil, service.MakeTemporary(err)
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (json.RawMessage, error) {
	raw, err := service.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("ReadBody: %w", err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("Unmarshal: %w (response: %s)", err, raw)
	}
	if err := envelope.err(); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// GetEntityIDs resolves display identifiers to entity identifiers.
//
// The lookup endpoint has been removed in API v1.5: the identifiers are
// resolved through a temporary scene list (scene-list-add / scene-list-get),
// which is removed before returning, even on failure.
func (api *API) GetEntityIDs(ctx context.Context, displayIDs []string, dataset string) (entityIDs []string, err error) {
	listID := randomString(10)
	if _, err := api.request(ctx, "scene-list-add", map[string]interface{}{
		"listId":      listID,
		"datasetName": dataset,
		"idField":     "displayId",
		"entityIds":   displayIDs,
	}); err != nil {
		return nil, fmt.Errorf("GetEntityIDs.%w", err)
	}
	defer func() {
		if _, rerr := api.request(ctx, "scene-list-remove", map[string]interface{}{"listId": listID}); rerr != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("GetEntityIDs.%w", rerr))
		}
	}()

	data, err := api.request(ctx, "scene-list-get", map[string]interface{}{"listId": listID})
	if err != nil {
		return nil, fmt.Errorf("GetEntityIDs.%w", err)
	}
	var scenes []struct {
		EntityID string `json:"entityId"`
	}
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("GetEntityIDs.Unmarshal: %w (response: %s)", err, data)
	}
	entityIDs = make([]string, len(scenes))
	for i, scene := range scenes {
		entityIDs[i] = scene.EntityID
	}
	return entityIDs, nil
}

// GetEntityID resolves a display identifier to an entity identifier
func (api *API) GetEntityID(ctx context.Context, displayID, dataset string) (string, error) {
	entityIDs, err := api.GetEntityIDs(ctx, []string{displayID}, dataset)
	if err != nil {
		return "", err
	}
	if len(entityIDs) == 0 {
		return "", fmt.Errorf("GetEntityID: no scene found for %s in %s", displayID, dataset)
	}
	return entityIDs[0], nil
}

// Metadata returns the normalized full metadata of a scene
func (api *API) Metadata(ctx context.Context, entityID, dataset string) (Metadata, error) {
	return api.metadata(ctx, entityID, dataset, ParseMetadata)
}

// MetadataWithBrowse returns the normalized full metadata of a scene,
// including the browse (LandsatLook preview) products
func (api *API) MetadataWithBrowse(ctx context.Context, entityID, dataset string) (Metadata, error) {
	return api.metadata(ctx, entityID, dataset, ParseMetadataWithBrowse)
}

func (api *API) metadata(ctx context.Context, entityID, dataset string, parse func(json.RawMessage) (Metadata, error)) (Metadata, error) {
	data, err := api.request(ctx, "scene-metadata", map[string]interface{}{
		"datasetName":  dataset,
		"entityId":     entityID,
		"metadataType": "full",
	})
	if err != nil {
		return nil, fmt.Errorf("Metadata.%w", err)
	}
	metadata, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("Metadata.%w", err)
	}
	return metadata, nil
}

// GetDisplayID resolves an entity identifier to a display identifier
func (api *API) GetDisplayID(ctx context.Context, entityID, dataset string) (string, error) {
	metadata, err := api.Metadata(ctx, entityID, dataset)
	if err != nil {
		return "", fmt.Errorf("GetDisplayID.%w", err)
	}
	displayID, ok := metadata["display_id"].(string)
	if !ok {
		return "", fmt.Errorf("GetDisplayID: no display_id in metadata of scene %s", entityID)
	}
	return displayID, nil
}

// Search returns the scenes of a dataset matching the filter, with their
// normalized full metadata
func (api *API) Search(ctx context.Context, dataset string, filter SceneFilter, maxResults int) ([]Metadata, error) {
	dataset = strings.ToLower(dataset)
	if !common.IsSupportedDataset(dataset) {
		return nil, service.ErrUnsupportedDataset{Dataset: dataset}
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	data, err := api.request(ctx, "scene-search", map[string]interface{}{
		"datasetName":  dataset,
		"sceneFilter":  filter,
		"maxResults":   maxResults,
		"metadataType": "full",
	})
	if err != nil {
		return nil, fmt.Errorf("Search.%w", err)
	}
	var results struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("Search.Unmarshal: %w (response: %s)", err, data)
	}

	scenes := make([]Metadata, 0, len(results.Results))
	for _, raw := range results.Results {
		metadata, err := ParseMetadata(raw)
		if err != nil {
			return nil, fmt.Errorf("Search.%w", err)
		}
		// landsat_tm_c2_l2 also contains Landsat 4 scenes
		if dataset == common.DatasetLandsatTMC2L2 {
			if entityID, ok := metadata["entity_id"].(string); ok {
				if sceneID, err := common.ParseSceneID(entityID); err == nil && sceneID.Satellite == 4 {
					continue
				}
			}
		}
		scenes = append(scenes, metadata)
	}
	return scenes, nil
}

func randomString(length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
