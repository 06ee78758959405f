package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/carprober/internal/agent"
	"github.com/autopeer-io/carprober/pkg/app"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/options"
)

type CarProberOptions struct {
	ProberOptions *options.ProberOptions    `json:"prober" mapstructure:"prober"`
	SimOptions    *options.SimulatorOptions `json:"sim" mapstructure:"sim"`
	MqttOptions   *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions   *options.HttpOptions      `json:"http" mapstructure:"http"`
	GrpcOptions   *options.GrpcOptions      `json:"grpc" mapstructure:"grpc"`
	Log           *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*CarProberOptions)(nil)

func NewCarProberOptions() *CarProberOptions {
	return &CarProberOptions{
		ProberOptions: options.NewProberOptions(),
		SimOptions:    options.NewSimulatorOptions(),
		MqttOptions:   options.NewMqttOptions(),
		HttpOptions:   options.NewHttpOptions(),
		GrpcOptions:   options.NewGrpcOptions(),
		Log:           log.NewOptions(),
	}
}

func (o *CarProberOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.ProberOptions.AddFlags(fss.FlagSet("prober"))
	o.SimOptions.AddFlags(fss.FlagSet("simulator"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *CarProberOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "cpeer-car-prober"
	}
	return nil
}

func (o *CarProberOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.ProberOptions.Validate()...)
	errs = append(errs, o.SimOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *CarProberOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		ProberOptions: o.ProberOptions,
		MqttOptions:   o.MqttOptions,
		HttpOptions:   o.HttpOptions,
		GrpcOptions:   o.GrpcOptions,
		SimOptions:    o.SimOptions,
	}, nil
}
