package photoactivation

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// keys of the configuration record
const (
	KeyXPinout                = "x_pinout"
	KeyYPinout                = "y_pinout"
	KeyLaserPortSwitcher      = "laser_port_switcher"
	KeyXScalingFactor         = "x_scaling_factor"
	KeyYScalingFactor         = "y_scaling_factor"
	KeyLaserPower             = "laser_power"
	KeyDuration               = "duration"
	KeyPattern                = "pattern"
	KeyWavelength             = "wavelength"
	KeyLocationX              = "location_x"
	KeyLocationY              = "location_y"
	KeyPhotoactivationTrigger = "photoactivation_trigger"
	KeyPhotoactivationSource  = "photoactivation_source"
)

// RequiredKeys lists every key LoadParameters reads
var RequiredKeys = []string{
	KeyXPinout,
	KeyYPinout,
	KeyLaserPortSwitcher,
	KeyXScalingFactor,
	KeyYScalingFactor,
	KeyLaserPower,
	KeyDuration,
	KeyPattern,
	KeyWavelength,
	KeyLocationX,
	KeyLocationY,
	KeyPhotoactivationTrigger,
	KeyPhotoactivationSource,
}

// Pattern is the shape traced by the galvos during stimulation
type Pattern int

const (
	// Point holds the beam at one location
	Point Pattern = iota

	// Square is not implemented
	Square

	// Circle is not implemented
	Circle
)

func (p Pattern) String() string {
	switch p {
	case Point:
		return "Point"
	case Square:
		return "Square"
	case Circle:
		return "Circle"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

// MarshalText encodes the pattern by name
func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a pattern name
func (p *Pattern) UnmarshalText(b []byte) error {
	v, err := ParsePattern(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePattern converts a pattern name, case insensitive, to a Pattern
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point":
		return Point, nil
	case "square":
		return Square, nil
	case "circle":
		return Circle, nil
	}
	return Point, fmt.Errorf("%w: %q", ErrUnsupportedPattern, s)
}

// Parameters is the snapshot of the configuration a run works from.  It is
// built once at the start of a run and never changes during it.
type Parameters struct {
	// XPinout and YPinout are the analog output channels of the galvos
	XPinout string `mapstructure:"x_pinout" json:"x_pinout"`
	YPinout string `mapstructure:"y_pinout" json:"y_pinout"`

	// XScalingFactor and YScalingFactor are in volts per micron
	XScalingFactor float64 `mapstructure:"x_scaling_factor" json:"x_scaling_factor"`
	YScalingFactor float64 `mapstructure:"y_scaling_factor" json:"y_scaling_factor"`

	// LaserPortSwitcher is the digital line that moves the laser onto the
	// photoactivation path
	LaserPortSwitcher string `mapstructure:"laser_port_switcher" json:"laser_port_switcher"`

	// PhotoactivationTrigger is the digital output line that delivers the TTL
	PhotoactivationTrigger string `mapstructure:"photoactivation_trigger" json:"photoactivation_trigger"`

	// PhotoactivationSource is the trigger input terminal that receives the TTL
	PhotoactivationSource string `mapstructure:"photoactivation_source" json:"photoactivation_source"`

	// Wavelength selects the laser, in nm
	Wavelength int `mapstructure:"wavelength" json:"wavelength"`

	// LaserPower is in percent
	LaserPower float64 `mapstructure:"laser_power" json:"laser_power"`

	// Duration of the stimulation in milliseconds
	Duration int `mapstructure:"duration" json:"duration"`

	Pattern Pattern `mapstructure:"pattern" json:"pattern"`

	// LocationX and LocationY are offsets from the image center in microns
	LocationX float64 `mapstructure:"location_x" json:"location_x"`
	LocationY float64 `mapstructure:"location_y" json:"location_y"`
}

// MaxDuration is the longest stimulation accepted, in milliseconds
const MaxDuration = 10 * 60 * 1000

// Validate checks that the parameters can be used to drive hardware
func (p Parameters) Validate() error {
	var problems []string
	for _, f := range []struct {
		key string
		v   float64
	}{
		{KeyXScalingFactor, p.XScalingFactor},
		{KeyYScalingFactor, p.YScalingFactor},
		{KeyLaserPower, p.LaserPower},
		{KeyLocationX, p.LocationX},
		{KeyLocationY, p.LocationY},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			problems = append(problems, fmt.Sprintf("%s must be finite, got %g", f.key, f.v))
		}
	}
	if p.XPinout == "" || p.YPinout == "" {
		problems = append(problems, "galvo pinouts must not be empty")
	}
	if p.LaserPortSwitcher == "" {
		problems = append(problems, "laser port switcher must not be empty")
	}
	if p.PhotoactivationTrigger == "" || p.PhotoactivationSource == "" {
		problems = append(problems, "trigger line and source must not be empty")
	}
	if p.XScalingFactor <= 0 || p.YScalingFactor <= 0 {
		problems = append(problems, fmt.Sprintf("scaling factors must be > 0, got %g, %g", p.XScalingFactor, p.YScalingFactor))
	}
	if p.LaserPower < 0 || p.LaserPower > 100 {
		problems = append(problems, fmt.Sprintf("laser power must be in [0,100], got %g", p.LaserPower))
	}
	if p.Duration <= 0 || p.Duration > MaxDuration {
		problems = append(problems, fmt.Sprintf("duration must be in (0,%d] ms, got %d", MaxDuration, p.Duration))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParameter, strings.Join(problems, "; "))
	}
	return nil
}

// Record is a read only view of the configuration record
type Record interface {
	// Lookup returns the value of key and whether it is present
	Lookup(key string) (interface{}, bool)
}

func patternHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(Point) || from.Kind() != reflect.String {
		return data, nil
	}
	return ParsePattern(reflect.ValueOf(data).String())
}

// LoadParameters reads every required key from rec into a Parameters.
// A missing key is reported as ErrConfigurationMissing, naming every
// missing key.  Values are converted weakly, so "10" and 10.0 are both
// acceptable for an integer field.
func LoadParameters(rec Record) (Parameters, error) {
	var (
		p       Parameters
		missing []string
		raw     = make(map[string]interface{}, len(RequiredKeys))
	)
	for _, k := range RequiredKeys {
		v, ok := rec.Lookup(k)
		if !ok {
			missing = append(missing, k)
			continue
		}
		raw[k] = v
	}
	if len(missing) > 0 {
		return p, fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(patternHook),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err = dec.Decode(raw); err != nil {
		if strings.Contains(err.Error(), ErrUnsupportedPattern.Error()) {
			return p, fmt.Errorf("%w: %v", ErrUnsupportedPattern, raw[KeyPattern])
		}
		return p, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return p, nil
}
