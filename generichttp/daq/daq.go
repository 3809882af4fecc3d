// Package daq provides a generic HTTP interface for watching a DAQ from the
// outside: its sample clock, whether the imaging pipeline holds it, which
// tasks are open, and the calls made to it
package daq

import (
	"net/http"

	"github.com/nasa-jpl/photoactivation/generichttp"
)

// Inspector is a DAQ that can report on itself
type Inspector interface {
	// SampleRate is the rate of the acquisition clock, Hz
	SampleRate() float64

	// Acquiring is true while the imaging pipeline holds the clock
	Acquiring() bool

	// OpenTasks lists the names of tasks that are not closed
	OpenTasks() []string

	// Journal lists the calls made to the DAQ, oldest first
	Journal() []string
}

// HTTPInspector wraps an Inspector in an HTTP route table
type HTTPInspector struct {
	// Insp is the underlying DAQ
	Insp Inspector

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPInspector returns a new HTTP wrapper around a DAQ
func NewHTTPInspector(i Inspector) HTTPInspector {
	h := HTTPInspector{Insp: i}
	h.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/sample-rate"}: generichttp.GetFloat(func() (float64, error) { return i.SampleRate(), nil }),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/acquiring"}:   generichttp.GetBool(func() (bool, error) { return i.Acquiring(), nil }),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/open-tasks"}:  list(i.OpenTasks),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/journal"}:     list(i.Journal),
	}
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPInspector) RT() generichttp.RouteTable {
	return h.RouteTable
}

// list returns a handler which replies with fcn() as a JSON array, never null
func list(fcn func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := fcn()
		if l == nil {
			l = []string{}
		}
		generichttp.WriteJSON(w, http.StatusOK, l)
	}
}

