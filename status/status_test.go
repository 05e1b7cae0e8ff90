package status_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/highz-obs/filterbank/status"
)

func TestStatusEndpoint(t *testing.T) {
	h := status.Handler(func() status.Report {
		return status.Report{
			Run:    "run-1",
			Engine: map[string]int{"rows": 42},
			Sink:   map[string]int{"filesWritten": 3},
		}
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var rep struct {
		Run    string         `json:"run"`
		Engine map[string]int `json:"engine"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Run != "run-1" || rep.Engine["rows"] != 42 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := httptest.NewServer(status.Handler(func() status.Report { return status.Report{} }))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
