package daq_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/photoactivation/daq"
	daqhttp "github.com/nasa-jpl/photoactivation/generichttp/daq"
)

func TestInspectorRoutes(t *testing.T) {
	m := daq.NewMock(1000)
	m.StopAcquisition()
	m.NewDigitalTask("switch", "line0")
	r := chi.NewRouter()
	daqhttp.NewHTTPInspector(m).RT().Bind(r)

	cases := []struct {
		path, want string
	}{
		{"/sample-rate", `{"f64":1000}`},
		{"/acquiring", `{"bool":false}`},
		{"/open-tasks", `["switch"]`},
		{"/journal", `["acquisition.stop","digital.new line0"]`},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, c.path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", c.path, w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != c.want {
			t.Errorf("%s: expected %s, got %s", c.path, c.want, got)
		}
	}
}

func TestEmptyListIsNotNull(t *testing.T) {
	r := chi.NewRouter()
	daqhttp.NewHTTPInspector(daq.NewMock(1000)).RT().Bind(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open-tasks", nil))
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("expected [], got %s", got)
	}
}
