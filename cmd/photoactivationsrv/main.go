package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/photoactivation/photoactivation"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "photoactivation.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:             ":8000",
		Mock:             true,
		Endpoint:         "photoactivation",
		SampleRate:       100000,
		DualChannel:      true,
		SettleDelayMs:    100,
		WaitTimeoutMs:    1000,
		MinRunIntervalMs: 500,
		Lasers:           []int{488, 561, 642},
		Routes:           map[string]string{"PCIE6738/port0/line1": "/PCIE6738/PFI4"},
		Photoactivation:  photoactivation.DefaultRecord()}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconf() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `photoactivationsrv drives a pair of galvos and a laser to photoactivate a
marked point on the sample, in step with the acquisition clock, and exposes
the settings and runs over HTTP.

Usage:
	photoactivationsrv <command>

Commands:
	run
	fire
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `photoactivationsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Routes of the photoactivation node, under Endpoint:
	GET  /config       the settings as a JSON object
	POST /config       merge a JSON object into the settings
	GET  /parameters   the settings the next run will use, or why it will be refused
	POST /mark         {"x": um, "y": um} from the image center
	POST /run          run once and return the report
	GET  /state        state of the sequencer
	GET  /last-run     report of the last run
	GET  /lock, POST /lock

Each laser is served under /laser/<wavelength> with /emission and /power.
The DAQ is served under /daq with /sample-rate, /acquiring, /open-tasks, and /journal.

fire runs once with the settings in the config file and prints the report.

Settings, under Photoactivation:
	x_pinout, y_pinout               analog outputs of the galvos
	x_scaling_factor, y_scaling_factor   volts per micron
	laser_port_switcher              digital line of the laser path switch
	photoactivation_trigger          digital line that fires the galvos
	photoactivation_source           trigger input the galvos listen on
	wavelength                       nm, one of Lasers
	laser_power                      percent
	duration                         ms
	pattern                          Point
	location_x, location_y           microns from the image center`
	fmt.Println(str)
}

func mkconf() {
	c := loadconf()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconf()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("photoactivationsrv version %v\n", Version)
}

func fire() {
	c := loadconf()
	rig := BuildRig(c, nil)
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " photoactivating",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	rep, err := rig.Seq.Run(context.Background())
	if err != nil {
		spinner.StopFail()
	} else {
		spinner.Stop()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(rep)
	if cerr := rig.Seq.Close(); cerr != nil {
		log.Println("releasing laser switch:", cerr)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run() {
	c := loadconf()
	rig := BuildRig(c, prometheus.DefaultRegisterer)
	mux := BuildMux(c, rig)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		if err := rig.Seq.Close(); err != nil {
			log.Println("releasing laser switch:", err)
		}
		os.Exit(0)
	}()
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "fire":
		fire()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
