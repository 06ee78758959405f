package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ProberOptions)(nil)

// DefaultCandidatePorts are the loopback ports a head-unit proxy listens on, in scan order.
var DefaultCandidatePorts = []int{4004, 4005, 4006, 4007, 4008}

// maxPortProbeTimeout caps a single reachability check.
const maxPortProbeTimeout = time.Second

// ProberOptions configures discovery and supervision of the head-unit proxy.
type ProberOptions struct {
	// CandidatePorts are probed in this order on every search pass.
	CandidatePorts []int `json:"candidate-ports" mapstructure:"candidate-ports"`

	TickSearch            time.Duration `json:"tick-search" mapstructure:"tick-search"`
	TickSearchAfterDetect time.Duration `json:"tick-search-after-detect" mapstructure:"tick-search-after-detect"`
	TickSearchStartup     time.Duration `json:"tick-search-startup" mapstructure:"tick-search-startup"`
	TickSearchNotReady    time.Duration `json:"tick-search-not-ready" mapstructure:"tick-search-not-ready"`
	TickKeepalive         time.Duration `json:"tick-keepalive" mapstructure:"tick-keepalive"`
	TickReconnect         time.Duration `json:"tick-reconnect" mapstructure:"tick-reconnect"`

	PortProbeTimeout time.Duration `json:"port-probe-timeout" mapstructure:"port-probe-timeout"`

	// BMWCertFile and MiniCertFile hold the brand certificates presented
	// during the handshake. They are optional when the simulator is enabled.
	BMWCertFile  string `json:"bmw-cert-file" mapstructure:"bmw-cert-file"`
	MiniCertFile string `json:"mini-cert-file" mapstructure:"mini-cert-file"`
}

// NewProberOptions returns the default prober cadence.
func NewProberOptions() *ProberOptions {
	return &ProberOptions{
		CandidatePorts:        append([]int(nil), DefaultCandidatePorts...),
		TickSearch:            2 * time.Second,
		TickSearchAfterDetect: 5 * time.Second,
		TickSearchStartup:     1 * time.Second,
		TickSearchNotReady:    2 * time.Second,
		TickKeepalive:         3 * time.Second,
		TickReconnect:         5 * time.Second,
		PortProbeTimeout:      1 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ProberOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	seen := make(map[int]struct{}, len(o.CandidatePorts))
	for _, p := range o.CandidatePorts {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("--prober.candidate-ports: port %d out of range", p))
		}
		if _, dup := seen[p]; dup {
			errs = append(errs, fmt.Errorf("--prober.candidate-ports: port %d listed twice", p))
		}
		seen[p] = struct{}{}
	}

	ticks := []struct {
		flag string
		d    time.Duration
	}{
		{"tick-search", o.TickSearch},
		{"tick-search-after-detect", o.TickSearchAfterDetect},
		{"tick-search-startup", o.TickSearchStartup},
		{"tick-search-not-ready", o.TickSearchNotReady},
		{"tick-keepalive", o.TickKeepalive},
		{"tick-reconnect", o.TickReconnect},
	}
	for _, tick := range ticks {
		if tick.d <= 0 {
			errs = append(errs, fmt.Errorf("--prober.%s must be positive, got %s", tick.flag, tick.d))
		}
	}

	if o.PortProbeTimeout <= 0 || o.PortProbeTimeout > maxPortProbeTimeout {
		errs = append(errs, fmt.Errorf("--prober.port-probe-timeout must be in (0, %s], got %s", maxPortProbeTimeout, o.PortProbeTimeout))
	}

	return errs
}

// AddFlags adds flags for ProberOptions to the specified FlagSet.
func (o *ProberOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntSliceVar(&o.CandidatePorts, "prober.candidate-ports", o.CandidatePorts, "Loopback ports probed for a head-unit proxy, in order.")

	fs.DurationVar(&o.TickSearch, "prober.tick-search", o.TickSearch, "Delay before the next search pass when nothing was found.")
	fs.DurationVar(&o.TickSearchAfterDetect, "prober.tick-search-after-detect", o.TickSearchAfterDetect, "Delay armed right after a successful detection.")
	fs.DurationVar(&o.TickSearchStartup, "prober.tick-search-startup", o.TickSearchStartup, "Delay before the first search pass.")
	fs.DurationVar(&o.TickSearchNotReady, "prober.tick-search-not-ready", o.TickSearchNotReady, "Delay before retrying while the security service is not ready.")
	fs.DurationVar(&o.TickKeepalive, "prober.tick-keepalive", o.TickKeepalive, "Interval between keepalive pings while connected.")
	fs.DurationVar(&o.TickReconnect, "prober.tick-reconnect", o.TickReconnect, "Delay before searching again after the connection dropped.")

	fs.DurationVar(&o.PortProbeTimeout, "prober.port-probe-timeout", o.PortProbeTimeout, "TCP connect timeout for a single port probe (at most 1s).")

	fs.StringVar(&o.BMWCertFile, "prober.bmw-cert-file", o.BMWCertFile, "Path to the BMW brand certificate.")
	fs.StringVar(&o.MiniCertFile, "prober.mini-cert-file", o.MiniCertFile, "Path to the MINI brand certificate.")
}

// LoadCerts reads the configured brand certificates. Unset paths yield nil.
func (o *ProberOptions) LoadCerts() (bmw, mini []byte, err error) {
	if o.BMWCertFile != "" {
		if bmw, err = os.ReadFile(o.BMWCertFile); err != nil {
			return nil, nil, fmt.Errorf("read bmw cert: %w", err)
		}
	}
	if o.MiniCertFile != "" {
		if mini, err = os.ReadFile(o.MiniCertFile); err != nil {
			return nil, nil, fmt.Errorf("read mini cert: %w", err)
		}
	}
	return bmw, mini, nil
}
