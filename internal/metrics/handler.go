package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the JSON snapshot labelled with the active selector kind.
func (c *Collector) Handler(selector string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.metrics.Snapshot(selector)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
