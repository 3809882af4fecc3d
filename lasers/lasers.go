// Package lasers groups the lasers of a microscope by wavelength
package lasers

import (
	"fmt"
	"sort"

	"github.com/nasa-jpl/photoactivation/generichttp/laser"
)

// Laser is a laser whose emission and power can be controlled
type Laser interface {
	laser.Controller
	laser.PowerController
}

// Bank maps wavelengths in nm to lasers
type Bank map[int]Laser

// Get returns the laser at wavelength nm
func (b Bank) Get(wavelength int) (Laser, error) {
	l, ok := b[wavelength]
	if !ok {
		return nil, fmt.Errorf("lasers: no %d nm laser is installed", wavelength)
	}
	return l, nil
}

// Wavelengths returns the installed wavelengths in ascending order
func (b Bank) Wavelengths() []int {
	out := make([]int, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
