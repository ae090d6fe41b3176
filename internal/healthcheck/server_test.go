// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	server := NewServer(Config{}, nil)
	if server.port != 8090 {
		t.Errorf("Expected default port 8090, got %d", server.port)
	}

	server = NewServer(Config{Port: 9090}, nil)
	if server.port != 9090 {
		t.Errorf("Expected port 9090, got %d", server.port)
	}
}

func TestServer_SetGetStatus(t *testing.T) {
	server := NewServer(Config{}, nil)

	if status := server.GetStatus(); status != StatusStarting {
		t.Errorf("Expected initial status starting, got %v", status)
	}

	server.SetStatus(StatusHealthy)
	if status := server.GetStatus(); status != StatusHealthy {
		t.Errorf("Expected status healthy, got %v", status)
	}

	server.SetStatus(StatusUnhealthy)
	if status := server.GetStatus(); status != StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %v", status)
	}
}

func TestServer_ReadyConditions(t *testing.T) {
	server := NewServer(Config{}, nil)

	if server.IsReady() {
		t.Error("Expected not ready before SetReady(true)")
	}

	server.SetReady(true)
	if !server.IsReady() {
		t.Error("Expected ready after SetReady(true)")
	}

	server.SetReadyCondition("lake_attached", false)
	if server.IsReady() {
		t.Error("Expected not ready with a false condition")
	}

	server.SetReadyCondition("lake_attached", true)
	if !server.IsReady() {
		t.Error("Expected ready with all conditions true")
	}

	server.SetReadyCondition("lake_attached", false)
	server.ClearReadyCondition("lake_attached")
	if !server.IsReady() {
		t.Error("Expected ready after clearing the failing condition")
	}
}

func TestServer_HealthzHandler(t *testing.T) {
	server := NewServer(Config{}, nil)

	rec := httptest.NewRecorder()
	server.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while starting, got %d", rec.Code)
	}

	server.SetStatus(StatusHealthy)
	rec = httptest.NewRecorder()
	server.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 when healthy, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Healthy {
		t.Error("Expected healthy=true in response body")
	}
}

func TestServer_LivezHandler(t *testing.T) {
	server := NewServer(Config{}, nil)

	rec := httptest.NewRecorder()
	server.livezHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 while starting (alive), got %d", rec.Code)
	}

	server.SetStatus(StatusUnhealthy)
	rec = httptest.NewRecorder()
	server.livezHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when unhealthy, got %d", rec.Code)
	}
}

func TestServer_QueriesHandler(t *testing.T) {
	queries := []QueryStatus{
		{ID: "0198c5", Name: "events-console", Status: "Waiting for next trigger",
			LastProgress: json.RawMessage(`{"batchId":4,"numInputRows":10}`)},
		{ID: "0198c6", Name: "events-parquet", Status: "Processing new data"},
	}
	server := NewServer(Config{}, func() []QueryStatus { return queries })

	rec := httptest.NewRecorder()
	server.queriesHandler(rec, httptest.NewRequest(http.MethodGet, "/queries", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Count   int           `json:"count"`
		Queries []QueryStatus `json:"queries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected count 2, got %d", resp.Count)
	}
	if resp.Queries[0].Name != "events-console" {
		t.Errorf("Unexpected first query name %q", resp.Queries[0].Name)
	}
	if string(resp.Queries[0].LastProgress) != `{"batchId":4,"numInputRows":10}` {
		t.Errorf("Unexpected lastProgress payload %s", resp.Queries[0].LastProgress)
	}
}

func TestServer_QueriesHandlerNilSource(t *testing.T) {
	server := NewServer(Config{}, nil)

	rec := httptest.NewRecorder()
	server.queriesHandler(rec, httptest.NewRequest(http.MethodGet, "/queries", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"count\":0,\"queries\":[]}\n" {
		t.Errorf("Unexpected body %q", got)
	}
}
