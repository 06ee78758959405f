package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SimulatorOptions)(nil)

// SimulatorOptions configure the in-process head-unit simulator used on
// development machines without a car.
type SimulatorOptions struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Port        int           `json:"port" mapstructure:"port"`
	Brand       string        `json:"brand" mapstructure:"brand"`
	HMIType     string        `json:"hmi-type" mapstructure:"hmi-type"`
	VehicleType string        `json:"vehicle-type" mapstructure:"vehicle-type"`
	ReadyAfter  time.Duration `json:"ready-after" mapstructure:"ready-after"`
}

// NewSimulatorOptions returns a disabled simulator posing as a BMW on 4005.
func NewSimulatorOptions() *SimulatorOptions {
	return &SimulatorOptions{
		Port:        4005,
		Brand:       "bmw",
		HMIType:     "BMW_ID5",
		VehicleType: "F22",
		ReadyAfter:  2 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SimulatorOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Port < 1 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("--sim.port %d out of range", o.Port))
	}
	switch strings.ToLower(o.Brand) {
	case "bmw", "mini":
	default:
		errs = append(errs, fmt.Errorf("--sim.brand must be 'bmw' or 'mini', got %q", o.Brand))
	}
	if o.ReadyAfter < 0 {
		errs = append(errs, fmt.Errorf("--sim.ready-after must not be negative"))
	}
	return errs
}

// AddFlags adds flags for SimulatorOptions to the specified FlagSet.
func (o *SimulatorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "sim.enabled", o.Enabled, "Run an in-process head-unit simulator instead of talking to a real proxy.")
	fs.IntVar(&o.Port, "sim.port", o.Port, "Loopback port the simulator listens on.")
	fs.StringVar(&o.Brand, "sim.brand", o.Brand, "Brand whose certificate the simulator accepts ('bmw' or 'mini').")
	fs.StringVar(&o.HMIType, "sim.hmi-type", o.HMIType, "hmi.type capability reported by the simulator.")
	fs.StringVar(&o.VehicleType, "sim.vehicle-type", o.VehicleType, "vehicle.type capability reported by the simulator.")
	fs.DurationVar(&o.ReadyAfter, "sim.ready-after", o.ReadyAfter, "How long the simulated security service stays not-ready after start.")
}
