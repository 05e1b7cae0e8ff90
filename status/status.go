/*Package status exposes acquisition progress over HTTP for operators
watching a run from another room. It serves counters only; measurement data
never travels this interface.
*/
package status

import (
	"encoding/json"
	"log"
	"net/http"

	"goji.io"
	"goji.io/pat"
)

// Report is the full status document served to clients.
type Report struct {
	Run    string      `json:"run"`
	Engine interface{} `json:"engine"`
	Sink   interface{} `json:"sink"`
}

// Source yields a fresh report on demand.
type Source func() Report

// Handler returns an HTTP handler serving the report at /status.
func Handler(src Source) http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/status"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(src()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

// Serve starts the status server on addr in a background goroutine. Empty
// addr disables serving. Errors are logged, never fatal; status is a
// convenience, the acquisition does not depend on it.
func Serve(addr string, src Source) {
	if addr == "" {
		return
	}
	go func() {
		if err := http.ListenAndServe(addr, Handler(src)); err != nil {
			log.Printf("status server: %v", err)
		}
	}()
}
