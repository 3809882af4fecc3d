package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/photoactivation/daq"
	"github.com/nasa-jpl/photoactivation/generichttp"
	daqhttp "github.com/nasa-jpl/photoactivation/generichttp/daq"
	"github.com/nasa-jpl/photoactivation/generichttp/laser"
	"github.com/nasa-jpl/photoactivation/lasers"
	"github.com/nasa-jpl/photoactivation/photoactivation"
	"github.com/nasa-jpl/photoactivation/server/middleware/locker"
	"github.com/nasa-jpl/photoactivation/util"
)

// Config holds the setup of the server, the simulated hardware, and the
// initial photoactivation settings.  It is populated from the yaml file.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock uses the simulated DAQ and lasers.  There is no other choice in
	// this build.
	Mock bool `yaml:"Mock"`

	// Endpoint is where the photoactivation routes are served,
	// e.g. "photoactivation" => /photoactivation/run
	Endpoint string `yaml:"Endpoint"`

	// SampleRate is the rate of the acquisition clock, Hz
	SampleRate float64 `yaml:"SampleRate"`

	// SharedLaserSwitch simulates a host which owns the laser path switch
	SharedLaserSwitch bool `yaml:"SharedLaserSwitch"`

	// DualChannel drives both galvos from one task
	DualChannel bool `yaml:"DualChannel"`

	// SettleDelayMs is the time given to the laser path switch, ms
	SettleDelayMs int `yaml:"SettleDelayMs"`

	// WaitTimeoutMs is the slack on the wait for the galvos, ms
	WaitTimeoutMs int `yaml:"WaitTimeoutMs"`

	// MinRunIntervalMs spaces out runs requested over HTTP, ms
	MinRunIntervalMs int `yaml:"MinRunIntervalMs"`

	// Lasers are the installed wavelengths, nm
	Lasers []int `yaml:"Lasers"`

	// Routes wires digital output lines to trigger inputs on the simulated DAQ
	Routes map[string]string `yaml:"Routes"`

	// Photoactivation seeds the photoactivation settings
	Photoactivation map[string]interface{} `yaml:"Photoactivation"`
}

// Rig is the hardware and state behind the server
type Rig struct {
	Dev    *daq.Mock
	Lasers lasers.Bank
	Store  *photoactivation.Store
	Seq    *photoactivation.Sequencer
}

// BuildRig sets up the hardware described by c.  Metrics are registered
// with reg, which may be nil.
func BuildRig(c Config, reg prometheus.Registerer) Rig {
	if !c.Mock {
		log.Fatal("no DAQ driver is compiled into this build, set Mock: true")
	}
	dev := daq.NewMock(c.SampleRate)
	for out, in := range c.Routes {
		dev.Route(out, in)
	}
	store := photoactivation.NewStore(photoactivation.DefaultRecord())
	store.Merge(c.Photoactivation)
	if c.SharedLaserSwitch {
		line, _ := store.Lookup(photoactivation.KeyLaserPortSwitcher)
		dev.ShareLaserSwitch(fmt.Sprint(line))
	}
	bank := lasers.Bank{}
	for _, wvl := range c.Lasers {
		bank[wvl] = lasers.NewMock(wvl, nil)
	}
	log.Printf("simulated DAQ at %g Hz with lasers %s nm", c.SampleRate, util.IntSliceToCSV(bank.Wavelengths()))
	seq := photoactivation.New(store, dev, bank, photoactivation.Options{
		SettleDelay: util.MsToDuration(c.SettleDelayMs),
		WaitTimeout: util.MsToDuration(c.WaitTimeoutMs),
		DualChannel: c.DualChannel,
		Logger:      log.New(os.Stderr, "", log.LstdFlags),
		Metrics:     photoactivation.NewMetrics(reg),
	})
	return Rig{Dev: dev, Lasers: bank, Store: store, Seq: seq}
}

// mount binds httper under endpoint behind its own lock and records its
// routes in graph
func mount(root chi.Router, graph map[string][]string, endpoint string, httper generichttp.HTTPer) {
	hndlS := generichttp.SubMuxSanitize(endpoint)
	graph[hndlS] = httper.RT().Endpoints()
	lock := locker.New()
	locker.Inject(httper, lock)
	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)
}

// BuildMux serves the photoactivation node, the DAQ, one node per laser, the
// prometheus metrics, and a special route, endpoints, which returns every
// route as JSON.  The laser nodes refuse writes while a run is in progress.
func BuildMux(c Config, rig Rig) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	mount(root, supergraph, c.Endpoint, photoactivation.NewHTTPWrapper(rig.Seq, rig.Store, util.MsToDuration(c.MinRunIntervalMs)))
	mount(root, supergraph, "daq", daqhttp.NewHTTPInspector(rig.Dev))
	for _, wvl := range rig.Lasers.Wavelengths() {
		mount(root, supergraph, fmt.Sprintf("laser/%d", wvl), laser.NewHTTPLaserController(rig.Lasers[wvl], rig.Seq.Busy))
	}

	root.Handle("/metrics", promhttp.Handler())
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
