// Package laser exposes manual control of the photoactivation lasers over HTTP
package laser

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/nasa-jpl/photoactivation/generichttp"
)

// Controller is a basic interface for laser controllers
type Controller interface {
	// SetEmission turns emission on or off
	SetEmission(bool) error

	// GetEmission queries if the laser is currently outputting
	GetEmission() (bool, error)
}

// PowerController can control its output power
type PowerController interface {
	// SetPower sets the output power level of the the device, in percent
	SetPower(float64) error

	// GetPower retrieves the output power level of the device, in percent
	GetPower() (float64, error)
}

// Interlock returns a non-nil error while manual commands must not reach
// the laser, for example during a photoactivation run
type Interlock func() error

// guard refuses the request with 409 while the interlock is engaged
func guard(il Interlock, next http.HandlerFunc) http.HandlerFunc {
	if il == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := il(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		next(w, r)
	}
}

// SetEmission configures the output state of the laser
func SetEmission(c Controller) http.HandlerFunc {
	return generichttp.SetBool(c.SetEmission)
}

// GetEmission queries the output state of the laser
func GetEmission(c Controller) http.HandlerFunc {
	return generichttp.GetBool(c.GetEmission)
}

// SetPower parses {"f64": percent} and configures the output power of the
// laser.  Powers that are not finite or are outside [0,100] are a bad request.
func SetPower(c PowerController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if math.IsNaN(f.F64) || f.F64 < 0 || f.F64 > 100 {
			http.Error(w, fmt.Sprintf("power must be in [0,100] %%, got %g", f.F64), http.StatusBadRequest)
			return
		}
		if err = c.SetPower(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetPower queries the output power of the laser
func GetPower(c PowerController) http.HandlerFunc {
	return generichttp.GetFloat(c.GetPower)
}

// HTTPLaserController wraps a laser in an HTTP route table.  Reads are
// always served; writes are refused while the interlock is engaged.
type HTTPLaserController struct {
	// Ctl is the underlying laser controller
	Ctl Controller

	// Interlock, if not nil, gates /emission and /power writes
	Interlock Interlock

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPLaserController returns a new HTTP wrapper around an existing laser
// controller.  il may be nil.
func NewHTTPLaserController(ctl Controller, il Interlock) HTTPLaserController {
	h := HTTPLaserController{Ctl: ctl, Interlock: il}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/emission"}:  GetEmission(ctl),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/emission"}: guard(il, SetEmission(ctl)),
	}
	if powerctl, ok := interface{}(ctl).(PowerController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}] = GetPower(powerctl)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power"}] = guard(il, SetPower(powerctl))
	}
	h.RouteTable = rt
	return h
}

// RT safisfies the generichttp.HTTPer interface
func (h HTTPLaserController) RT() generichttp.RouteTable {
	return h.RouteTable
}
