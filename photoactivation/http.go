package photoactivation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/photoactivation/generichttp"
)

// HTTPWrapper exposes a sequencer and its configuration over HTTP
type HTTPWrapper struct {
	// Seq is the sequencer runs are sent to
	Seq *Sequencer

	// Store holds the configuration Seq reads
	Store *Store

	// Limiter spaces out runs requested over HTTP
	Limiter *rate.Limiter

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper that accepts at most one run per
// minInterval.  minInterval <= 0 does not limit.
func NewHTTPWrapper(seq *Sequencer, store *Store, minInterval time.Duration) HTTPWrapper {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	h := HTTPWrapper{Seq: seq, Store: store, Limiter: lim}
	h.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/config"}:     h.GetConfig,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/config"}:    h.SetConfig,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/parameters"}: h.GetParameters,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/mark"}:      h.Mark,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/run"}:       h.Run,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}:      h.GetState,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/last-run"}:   h.GetLastRun,
	}
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetConfig returns the configuration record as a JSON object
func (h HTTPWrapper) GetConfig(w http.ResponseWriter, r *http.Request) {
	generichttp.WriteJSON(w, http.StatusOK, h.Store.Snapshot())
}

// SetConfig merges a JSON object into the configuration record.  Keys the
// sequencer does not read are rejected and nothing is changed.
func (h HTTPWrapper) SetConfig(w http.ResponseWriter, r *http.Request) {
	vals := map[string]interface{}{}
	err := json.NewDecoder(r.Body).Decode(&vals)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	known := make(map[string]bool, len(RequiredKeys))
	for _, k := range RequiredKeys {
		known[k] = true
	}
	var unknown []string
	for k := range vals {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		http.Error(w, fmt.Sprintf("unknown keys %v", unknown), http.StatusBadRequest)
		return
	}
	h.Store.Merge(vals)
	generichttp.WriteJSON(w, http.StatusOK, h.Store.Snapshot())
}

// GetParameters returns the configuration as the next run would see it, or
// 400 describing why a run would be refused
func (h HTTPWrapper) GetParameters(w http.ResponseWriter, r *http.Request) {
	p, err := LoadParameters(h.Store.Snapshot())
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	generichttp.WriteJSON(w, http.StatusOK, p)
}

// MarkT is the location of a mark, in microns from the image center
type MarkT struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mark sets the stimulation location from {"x": ..., "y": ...}
func (h HTTPWrapper) Mark(w http.ResponseWriter, r *http.Request) {
	m := MarkT{}
	err := json.NewDecoder(r.Body).Decode(&m)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Store.Mark(m.X, m.Y)
	w.WriteHeader(http.StatusOK)
}

// Run performs one run and responds with its report.  A run already in
// progress is 409, a request inside the minimum interval is 429, and a run
// refused for its configuration is 400.
func (h HTTPWrapper) Run(w http.ResponseWriter, r *http.Request) {
	if !h.Limiter.Allow() {
		http.Error(w, "photoactivation: runs are too frequent", http.StatusTooManyRequests)
		return
	}
	report, err := h.Seq.Run(r.Context())
	switch {
	case err == nil:
		generichttp.WriteJSON(w, http.StatusOK, report)
	case errors.Is(err, ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrBusy):
		generichttp.WriteJSON(w, http.StatusConflict, report)
	case errors.Is(err, ErrConfigurationMissing),
		errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrUnsupportedPattern):
		generichttp.WriteJSON(w, http.StatusBadRequest, report)
	default:
		generichttp.WriteJSON(w, http.StatusInternalServerError, report)
	}
}

// StateT is the response of GetState
type StateT struct {
	State  string `json:"state"`
	Node   Node   `json:"node"`
	Active bool   `json:"active"`
}

// GetState returns the state of the sequencer
func (h HTTPWrapper) GetState(w http.ResponseWriter, r *http.Request) {
	h.Seq.mu.Lock()
	st := StateT{State: h.Seq.state.String(), Node: h.Seq.Node(), Active: h.Seq.active}
	h.Seq.mu.Unlock()
	generichttp.WriteJSON(w, http.StatusOK, st)
}

// GetLastRun returns the report of the last completed run
func (h HTTPWrapper) GetLastRun(w http.ResponseWriter, r *http.Request) {
	rep := h.Seq.LastReport()
	if rep.ID == "" {
		http.Error(w, "photoactivation: no run has completed", http.StatusNotFound)
		return
	}
	generichttp.WriteJSON(w, http.StatusOK, rep)
}
