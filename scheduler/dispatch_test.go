package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devskill-org/fleetcharge/simulator"
)

func TestKWToAmps(t *testing.T) {
	tests := []struct {
		kw   float64
		want float64
	}{
		{0, 0},
		{-1, 0},
		{2.3, 10.0},  // 2.3 kW / 230 V = 10 A
		{3, 13.0},    // 13.04 rounds to 13.0
		{1, 4.3},     // 4.35 rounds down at the tenth
		{7.36, 32.0}, // exactly the connector limit
		{11, 32.0},   // clamped
		{100, 32.0},  // clamped
	}
	for _, tt := range tests {
		if got := KWToAmps(tt.kw); got != tt.want {
			t.Errorf("KWToAmps(%f) = %f, want %f", tt.kw, got, tt.want)
		}
	}
}

func TestPostChargerSetting(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
	}))
	defer server.Close()

	s := &FleetScheduler{}
	site := &SiteConfig{Name: "hq", ChargerAPIURL: server.URL}

	if err := s.postChargerSetting(context.Background(), site, 16.0); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if gotBody["setting_id"] != float64(chargerCurrentSettingID) {
		t.Errorf("setting_id = %v, want %d", gotBody["setting_id"], chargerCurrentSettingID)
	}
	if gotBody["value"] != 16.0 {
		t.Errorf("value = %v, want 16", gotBody["value"])
	}
}

func TestPostChargerSettingServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := &FleetScheduler{}
	site := &SiteConfig{Name: "hq", ChargerAPIURL: server.URL}

	if err := s.postChargerSetting(context.Background(), site, 16.0); err == nil {
		t.Errorf("expected error for non-2xx response")
	}
}

// dispatchScheduler builds a scheduler with one site and a plan covering the
// current hour at the given fleet setpoint.
func dispatchScheduler(logOut io.Writer, site SiteConfig, setpointKW float64, dryRun bool) *FleetScheduler {
	config := validConfig()
	config.DryRun = dryRun
	config.Sites = []SiteConfig{site}

	now := time.Now().UTC()
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)

	return &FleetScheduler{
		config:   config,
		location: time.UTC,
		logger:   log.New(logOut, "", 0),
		lastResults: map[string]*simulator.Result{
			site.Name: {
				HourlyData: []simulator.HourlyPoint{
					{Timestamp: hour, EVKWWith: setpointKW},
				},
			},
		},
	}
}

func TestRunDispatchDryRun(t *testing.T) {
	var logBuf bytes.Buffer
	site := validSite()
	site.ChargerAPIURL = "http://charger.invalid/api"

	// 4.6 kW over 2 vehicles = 2.3 kW each = 10.0 A.
	site.Fleet.Vehicles = 2
	s := dispatchScheduler(&logBuf, site, 4.6, true)

	s.runDispatch(context.Background())

	logged := logBuf.String()
	if !strings.Contains(logged, "DRY-RUN") {
		t.Errorf("expected dry-run marker in log, got: %s", logged)
	}
	if !strings.Contains(logged, "10.0 A") {
		t.Errorf("expected 10.0 A setpoint in log, got: %s", logged)
	}
}

func TestRunDispatchPostsSetpoint(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	site := validSite()
	site.ChargerAPIURL = server.URL
	site.Fleet.Vehicles = 2
	s := dispatchScheduler(io.Discard, site, 4.6, false)

	s.runDispatch(context.Background())

	if gotBody == nil {
		t.Fatalf("expected a charger API call")
	}
	if gotBody["value"] != 10.0 {
		t.Errorf("dispatched value = %v, want 10 A", gotBody["value"])
	}
}

func TestRunDispatchSkipsSitesWithoutPlan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected charger API call for unplanned site")
	}))
	defer server.Close()

	site := validSite()
	site.ChargerAPIURL = server.URL
	config := validConfig()
	config.Sites = []SiteConfig{site}

	s := &FleetScheduler{
		config:      config,
		location:    time.UTC,
		logger:      log.New(io.Discard, "", 0),
		lastResults: map[string]*simulator.Result{},
	}
	s.runDispatch(context.Background())
}
