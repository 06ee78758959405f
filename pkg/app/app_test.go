package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"
)

type probeOptions struct {
	Ports []int         `mapstructure:"ports"`
	Tick  time.Duration `mapstructure:"tick"`
	Name  string        `mapstructure:"name"`
}

type testOptions struct {
	Probe *probeOptions `mapstructure:"probe"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{Probe: &probeOptions{Ports: []int{4004}, Tick: time.Second, Name: "default"}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("probe")
	fs.IntSliceVar(&o.Probe.Ports, "probe.ports", o.Probe.Ports, "ports")
	fs.DurationVar(&o.Probe.Tick, "probe.tick", o.Probe.Tick, "tick")
	fs.StringVar(&o.Probe.Name, "probe.name", o.Probe.Name, "name")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.Probe.Tick <= 0 {
		return errors.New("tick must be positive")
	}
	return nil
}

func execute(t *testing.T, a *App, args ...string) error {
	t.Helper()
	a.Command().SetArgs(args)
	return a.Command().Execute()
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prober.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  ports: [4006, 4007]\n  tick: 3s\n  name: file\n"), 0o600))

	opts := newTestOptions()
	ran := false
	a := NewApp("test-prober", "test", WithOptions(opts), WithRunFunc(func() error {
		ran = true
		return nil
	}))

	require.NoError(t, execute(t, a, "--config", path, "--probe.name", "flag"))

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, []int{4006, 4007}, opts.Probe.Ports)
	assert.Equal(t, 3*time.Second, opts.Probe.Tick)
	assert.Equal(t, "flag", opts.Probe.Name)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_PROBER_PROBE_NAME", "env")

	opts := newTestOptions()
	a := NewApp("test-prober", "test", WithOptions(opts), WithRunFunc(func() error { return nil }))

	require.NoError(t, execute(t, a))
	assert.Equal(t, "env", opts.Probe.Name)
}

func TestValidationFailureSkipsRun(t *testing.T) {
	opts := newTestOptions()
	ran := false
	a := NewApp("test-prober", "test", WithOptions(opts), WithRunFunc(func() error {
		ran = true
		return nil
	}))
	a.Command().SilenceErrors = true

	err := execute(t, a, "--probe.tick", "0s")
	require.Error(t, err)
	assert.False(t, ran)
}

func TestDefaultValidArgs(t *testing.T) {
	a := NewApp("test-prober", "test", WithOptions(newTestOptions()), WithDefaultValidArgs(),
		WithRunFunc(func() error { return nil }))
	a.Command().SilenceErrors = true

	assert.Error(t, execute(t, a, "unexpected"))
}

func TestSubcommandSharesOptions(t *testing.T) {
	opts := newTestOptions()
	var seen []int
	sub := &cobra.Command{
		Use: "scan",
		RunE: func(*cobra.Command, []string) error {
			seen = opts.Probe.Ports
			return nil
		},
	}
	a := NewApp("test-prober", "test", WithOptions(opts), WithCommands(sub),
		WithRunFunc(func() error { t.Fatal("root run called"); return nil }))

	require.NoError(t, execute(t, a, "scan", "--probe.ports", "4008"))
	assert.Equal(t, []int{4008}, seen)
}

func TestMissingConfigFile(t *testing.T) {
	a := NewApp("test-prober", "test", WithOptions(newTestOptions()), WithRunFunc(func() error { return nil }))
	a.Command().SilenceErrors = true

	err := execute(t, a, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
