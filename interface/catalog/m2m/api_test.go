package m2m

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"
	"time"

	"github.com/geofactory/eefetch/service"
)

const (
	testToken     = "test-api-key"
	testEntityID  = "LC80380302020274LGN00"
	testDisplayID = "LC08_L1TP_038030_20200930_20201006_01_T1"
)

// fakeM2M emulates the M2M API endpoints used by the client
type fakeM2M struct {
	lists     map[string][]string
	requests  []string
	rateLimit int
	failGet   bool
}

func (f *fakeM2M) handler(w http.ResponseWriter, r *http.Request) {
	endpoint := path.Base(r.URL.Path)
	f.requests = append(f.requests, endpoint)

	write := func(data interface{}, errorCode, errorMessage string) {
		response := map[string]interface{}{"data": data}
		if errorCode != "" {
			response["errorCode"] = errorCode
			response["errorMessage"] = errorMessage
		}
		json.NewEncoder(w).Encode(response)
	}

	var params map[string]interface{}
	json.NewDecoder(r.Body).Decode(&params)

	if endpoint == "login" {
		if params["username"] != "user" || params["password"] != "pa$$" {
			write(nil, "AUTH_INVALID", "Invalid credentials.")
			return
		}
		write(testToken, "", "")
		return
	}
	if r.Header.Get("X-Auth-Token") != testToken {
		write(nil, "AUTH_UNAUTHROIZED", "Not authorized.")
		return
	}
	if f.rateLimit > 0 {
		f.rateLimit--
		write(nil, "RATE_LIMIT", "Too many requests.")
		return
	}

	switch endpoint {
	case "logout":
		write(nil, "", "")
	case "scene-list-add":
		var entityIDs []string
		for range params["entityIds"].([]interface{}) {
			entityIDs = append(entityIDs, testEntityID)
		}
		f.lists[params["listId"].(string)] = entityIDs
		write(nil, "", "")
	case "scene-list-get":
		if f.failGet {
			write(nil, "SCENE_LIST_GET", "Scene list error.")
			return
		}
		var scenes []map[string]string
		for _, entityID := range f.lists[params["listId"].(string)] {
			scenes = append(scenes, map[string]string{"entityId": entityID})
		}
		write(scenes, "", "")
	case "scene-list-remove":
		delete(f.lists, params["listId"].(string))
		write(nil, "", "")
	case "scene-metadata":
		write(json.RawMessage(testSceneJSON(testEntityID, testDisplayID)), "", "")
	case "scene-search":
		results := []json.RawMessage{
			json.RawMessage(testSceneJSON("LT50380301991076AAA03", "LT05_L2SP_038030_19910317_20200915_02_T1")),
			json.RawMessage(testSceneJSON("LT40380301991076AAA03", "LT04_L2SP_038030_19910317_20200915_02_T1")),
		}
		write(map[string]interface{}{"results": results}, "", "")
	default:
		write(nil, "UNKNOWN_ENDPOINT", "Unknown endpoint.")
	}
}

func testSceneJSON(entityID, displayID string) string {
	return `{
		"entityId": "` + entityID + `",
		"displayId": "` + displayID + `",
		"browse": [{"browseName": "LandsatLook Natural Color Preview Image", "browsePath": "https://example.com/preview.jpg"}],
		"cloudCover": "4.00",
		"publishDate": "2020-10-06",
		"temporalCoverage": {"startDate": "2020-09-30 00:00:00", "endDate": "2020-09-30 00:00:00"},
		"spatialCoverage": {"type": "Polygon", "coordinates": [[[-112.1, 41.3], [-109.9, 41.3], [-109.9, 43.1], [-112.1, 43.1], [-112.1, 41.3]]]},
		"metadata": [
			{"fieldName": "Landsat Product Identifier", "dictionaryLink": "https://lta.cr.usgs.gov/DD/landsat_dictionary.html#landsat_product_id", "value": "` + displayID + `"},
			{"fieldName": "Date Acquired", "dictionaryLink": "https://lta.cr.usgs.gov/DD/landsat_dictionary.html#date_acquired", "value": "2020/09/30"}
		]
	}`
}

func newTestAPI(t *testing.T, fake *fakeM2M) *API {
	t.Helper()
	if fake.lists == nil {
		fake.lists = map[string][]string{}
	}
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)
	api := &API{URL: server.URL + "/", client: server.Client()}
	if err := api.Login(context.Background(), "user", "pa$$"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return api
}

func TestLogin(t *testing.T) {
	fake := &fakeM2M{}
	api := newTestAPI(t, fake)
	if !api.LoggedIn() {
		t.Errorf("expected client to hold an API key")
	}
	if err := api.Logout(context.Background()); err != nil {
		t.Errorf("logout: %v", err)
	}
	if api.LoggedIn() {
		t.Errorf("expected API key to be dropped after logout")
	}

	var authErr service.ErrAuthentication
	if err := api.Login(context.Background(), "user", "wrong"); !errors.As(err, &authErr) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	} else if authErr.Code != "AUTH_INVALID" {
		t.Errorf("expected AUTH_INVALID, got %s", authErr.Code)
	}
}

func TestRateLimitRetry(t *testing.T) {
	delay := rateLimitDelay
	rateLimitDelay = 10 * time.Millisecond
	defer func() { rateLimitDelay = delay }()

	fake := &fakeM2M{rateLimit: 1}
	api := newTestAPI(t, fake)
	if _, err := api.Metadata(context.Background(), testEntityID, "landsat_8_c1"); err != nil {
		t.Errorf("expected rate-limited request to be retried: %v", err)
	}

	fake.rateLimit = 2
	var rateErr service.ErrRateLimit
	if _, err := api.Metadata(context.Background(), testEntityID, "landsat_8_c1"); !errors.As(err, &rateErr) {
		t.Errorf("expected ErrRateLimit after a failed retry, got %v", err)
	}
	if !service.Temporary(service.ErrRateLimit{}) {
		t.Errorf("expected ErrRateLimit to be temporary")
	}
}

func TestGetEntityID(t *testing.T) {
	fake := &fakeM2M{}
	api := newTestAPI(t, fake)
	entityID, err := api.GetEntityID(context.Background(), testDisplayID, "landsat_8_c1")
	if err != nil {
		t.Fatalf("GetEntityID: %v", err)
	}
	if entityID != testEntityID {
		t.Errorf("expected %s, got %s", testEntityID, entityID)
	}
	if len(fake.lists) != 0 {
		t.Errorf("expected the temporary scene list to be removed")
	}
}

func TestGetEntityIDRemovesListOnFailure(t *testing.T) {
	fake := &fakeM2M{failGet: true}
	api := newTestAPI(t, fake)
	if _, err := api.GetEntityID(context.Background(), testDisplayID, "landsat_8_c1"); err == nil {
		t.Fatalf("expected an error")
	}
	removed := false
	for _, endpoint := range fake.requests {
		removed = removed || endpoint == "scene-list-remove"
	}
	if !removed {
		t.Errorf("expected the temporary scene list to be removed on failure")
	}
	if len(fake.lists) != 0 {
		t.Errorf("expected the temporary scene list to be removed on failure")
	}
}

func TestMetadataBrowse(t *testing.T) {
	api := newTestAPI(t, &fakeM2M{})
	metadata, err := api.Metadata(context.Background(), testEntityID, "landsat_8_c1")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if _, ok := metadata["browse"]; ok {
		t.Errorf("expected browse products to be dropped by default")
	}

	metadata, err = api.MetadataWithBrowse(context.Background(), testEntityID, "landsat_8_c1")
	if err != nil {
		t.Fatalf("MetadataWithBrowse: %v", err)
	}
	browse, ok := metadata["browse"].(map[string]map[string]interface{})
	if !ok {
		t.Fatalf("expected browse products, got %T", metadata["browse"])
	}
	if browse["landsatlook_natural_color_preview_image"]["browse_path"] != "https://example.com/preview.jpg" {
		t.Errorf("unexpected browse products: %v", browse)
	}
}

func TestGetDisplayID(t *testing.T) {
	api := newTestAPI(t, &fakeM2M{})
	displayID, err := api.GetDisplayID(context.Background(), testEntityID, "landsat_8_c1")
	if err != nil {
		t.Fatalf("GetDisplayID: %v", err)
	}
	if displayID != testDisplayID {
		t.Errorf("expected %s, got %s", testDisplayID, displayID)
	}
}

func TestSearch(t *testing.T) {
	api := newTestAPI(t, &fakeM2M{})

	var unsupportedErr service.ErrUnsupportedDataset
	if _, err := api.Search(context.Background(), "landsat_x", SceneFilter{}, 0); !errors.As(err, &unsupportedErr) {
		t.Errorf("expected ErrUnsupportedDataset, got %v", err)
	}

	scenes, err := api.Search(context.Background(), "landsat_ot_c2_l2", SceneFilter{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0]["entity_id"] != "LT50380301991076AAA03" {
		t.Errorf("unexpected entity_id: %v", scenes[0]["entity_id"])
	}
	if clouds, ok := scenes[0]["cloud_cover"].(float64); !ok || clouds != 4.0 {
		t.Errorf("expected a numeric cloud_cover, got %v", scenes[0]["cloud_cover"])
	}
	if _, ok := scenes[0]["acquisition_date"].(time.Time); !ok {
		t.Errorf("expected a date acquisition_date, got %v", scenes[0]["acquisition_date"])
	}

	// landsat_tm_c2_l2 also contains Landsat 4 scenes: they are dropped
	scenes, err = api.Search(context.Background(), "LANDSAT_TM_C2_L2", SceneFilter{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("expected the Landsat 4 scene to be dropped, got %d scenes", len(scenes))
	}
	if scenes[0]["entity_id"] != "LT50380301991076AAA03" {
		t.Errorf("unexpected entity_id: %v", scenes[0]["entity_id"])
	}
}
