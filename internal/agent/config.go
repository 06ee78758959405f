package agent

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/internal/headunit/sim"
	"github.com/autopeer-io/carprober/internal/latency"
	"github.com/autopeer-io/carprober/internal/metrics"
	"github.com/autopeer-io/carprober/internal/notifier"
	"github.com/autopeer-io/carprober/internal/prober"
	"github.com/autopeer-io/carprober/internal/registry"
	"github.com/autopeer-io/carprober/internal/server"
	grpcserver "github.com/autopeer-io/carprober/internal/server/grpc"
	httpserver "github.com/autopeer-io/carprober/internal/server/http"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/carprober/pkg/mqtt/topic"
	"github.com/autopeer-io/carprober/pkg/options"
)

// ErrNoTransport is returned when neither the simulator nor an embedder
// supplied a way to reach the head unit.
var ErrNoTransport = errors.New("no head-unit transport: enable --sim.enabled or provide an oracle and dialer")

type Config struct {
	ProberOptions *options.ProberOptions
	MqttOptions   *options.MqttOptions
	HttpOptions   *options.HttpOptions
	GrpcOptions   *options.GrpcOptions
	SimOptions    *options.SimulatorOptions

	// Oracle, Dialer and Mangle connect the prober to a real head-unit
	// proxy. They are ignored when the simulator is enabled.
	Oracle core.SecurityOracle
	Dialer core.Dialer
	Mangle core.MangleFunc

	// Registry defaults to registry.Std().
	Registry *registry.Registry
}

func (cfg *Config) NewAgent() (*Agent, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = registry.Std()
	}

	bmw, mini, err := cfg.ProberOptions.LoadCerts()
	if err != nil {
		return nil, err
	}
	certs := map[core.Brand][]byte{core.BrandBMW: bmw, core.BrandMini: mini}

	a := &Agent{registry: reg}

	oracle, dialer, mangle := cfg.Oracle, cfg.Dialer, cfg.Mangle
	if cfg.SimOptions != nil && cfg.SimOptions.Enabled {
		s, err := sim.New(cfg.SimOptions, sim.WithCerts(certs))
		if err != nil {
			return nil, fmt.Errorf("failed to init head-unit simulator: %w", err)
		}
		if !slices.Contains(cfg.ProberOptions.CandidatePorts, cfg.SimOptions.Port) {
			log.Warn("Simulator port is not a candidate port, the prober will not find it",
				"port", cfg.SimOptions.Port, "candidates", cfg.ProberOptions.CandidatePorts)
		}
		a.sim = s
		oracle, dialer, mangle, certs = s, s, sim.Mangle, s.Certs()
	}
	if oracle == nil || dialer == nil || mangle == nil {
		return nil, ErrNoTransport
	}

	sampler := latency.NewSampler(latency.WithObserver(metrics.RPCLatency))
	if err := metrics.RegisterAverage(func() float64 { return sampler.Average().Seconds() }); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("failed to register latency gauge: %w", err)
		}
		log.Debug("Latency average gauge already registered")
	}
	a.sampler = sampler

	listeners := []registry.Listener{metrics.RecordConnection}

	var sinks core.Sinks
	if cfg.MqttOptions.Enabled() {
		n, err := cfg.newNotifier()
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt notifier: %w", err)
		}
		a.notifier = n
		sinks = append(sinks, n)
		listeners = append(listeners, n.OnConnection)
	}

	var servers []server.Server
	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		servers = append(servers, httpserver.NewServer(cfg.HttpOptions, reg, sampler, metrics.Registry))
	}
	if cfg.GrpcOptions != nil && cfg.GrpcOptions.Enabled {
		g := grpcserver.NewServer(cfg.GrpcOptions)
		listeners = append(listeners, g.OnConnection)
		servers = append(servers, g)
	}
	a.servers = server.NewManager(servers...)

	detector := prober.NewDetector(prober.DetectorConfig{
		Oracle:  oracle,
		Dialer:  dialer,
		Mangle:  mangle,
		Certs:   certs,
		Sampler: sampler,
		Events:  sinks,
	})
	a.prober = prober.New(cfg.ProberOptions, prober.NewPortProbe(cfg.ProberOptions.PortProbeTimeout), detector, reg, sampler)

	// Subscribe last: reg may be the process-wide registry, and nothing above
	// may leave a listener behind on failure.
	for _, l := range listeners {
		a.listen(l)
	}

	return a, nil
}

func (cfg *Config) newNotifier() (*notifier.MQTTNotifier, error) {
	deviceID := cfg.MqttOptions.DeviceID
	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("device id not set and host name unavailable: %w", err)
		}
		deviceID = host
	}

	topics := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-car-prober-%s", deviceID)
	}

	willTopic, willPayload, err := notifier.ConnectionWill(topics, deviceID)
	if err != nil {
		return nil, err
	}
	mqttConfig.WillTopic = willTopic
	mqttConfig.WillPayload = willPayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, err
	}

	return notifier.NewMQTTNotifier(client, topics, deviceID, cfg.MqttOptions.QueueSize), nil
}
