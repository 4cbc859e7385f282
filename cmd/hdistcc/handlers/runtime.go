package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gossh "golang.org/x/crypto/ssh"

	"github.com/imamik/hdistcc/internal/config"
	"github.com/imamik/hdistcc/internal/credentials"
	"github.com/imamik/hdistcc/internal/dispatch"
	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/observe"
	"github.com/imamik/hdistcc/internal/observe/natssink"
	"github.com/imamik/hdistcc/internal/observe/tracing"
	"github.com/imamik/hdistcc/internal/platform/hcloud"
	hdssh "github.com/imamik/hdistcc/internal/platform/ssh"
	"github.com/imamik/hdistcc/internal/startup"
	"github.com/imamik/hdistcc/internal/util/netutil"
)

// fleetProvider is the compute backend the CLI drives.
type fleetProvider interface {
	fleet.Provider
	PublicIP(ctx context.Context) (string, error)
}

// eventSink is an observer that must be flushed on exit.
type eventSink interface {
	observe.Observer
	Close()
}

// Factory function variables - can be replaced in tests.
var (
	loadSettings = config.Load
	loadTimeouts = config.LoadTimeouts
	ownerHash    = config.LocalOwnerHash

	resolveToken = func() (string, error) {
		return config.ResolveToken(credentials.Keyring{})
	}

	newProvider = func(token string, s *config.Settings, t *config.Timeouts, log logr.Logger) fleetProvider {
		return hcloud.New(token,
			hcloud.WithTimeouts(t),
			hcloud.WithArchitecture(hcloud.ParseArchitecture(s.Image.Architecture)),
			hcloud.WithLogger(log.WithName("hcloud")),
		)
	}

	newProber = func(s *config.Settings, key []byte, nodes hdssh.NodeLister, log logr.Logger) (fleet.Prober, error) {
		client, err := hdssh.NewClient(&hdssh.Config{
			User:        s.SSH.User,
			PrivateKey:  key,
			DialTimeout: s.SSH.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		return hdssh.NewProber(client, nodes,
			hdssh.WithSentinel(s.Readiness.SentinelPath, s.Readiness.SentinelMarker),
			hdssh.WithPort(client.Port()),
			hdssh.WithPortCheck(netutil.PortOpen),
			hdssh.WithProbeLogger(log.WithName("probe")),
		), nil
	}

	newDispatcher = func(s *config.Settings, identityFile string, args []string, log logr.Logger) fleet.Dispatcher {
		return dispatch.New(dispatch.Options{
			Command:      s.Build.Command,
			Args:         args,
			Pump:         s.Build.Pump,
			LZO:          s.Build.LZO,
			CPP:          s.Build.CPP,
			Randomize:    s.Build.Randomize,
			User:         s.SSH.User,
			IdentityFile: identityFile,
			Stdout:       stdout,
			Stderr:       stderr,
		}, dispatch.WithLogger(log.WithName("dispatch")))
	}

	connectEvents = func(url, prefix string, log logr.Logger) (eventSink, error) {
		sink, err := natssink.Connect(url, prefix, log.WithName("events"))
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	setupTracing = tracing.Setup

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// runtime is everything one fleet command needs, built from settings,
// flags and the environment.
type runtime struct {
	settings *config.Settings
	fleet    *fleet.Orchestrator
	log      logr.Logger

	registry    *prometheus.Registry
	metricsFile string
	closers     []func(context.Context) error
}

// newRuntime wires the orchestrator for op. makeArgs are only used by make.
// stop never reads the SSH key or detects the public address: deleting the
// fleet and its resources only needs names.
func newRuntime(ctx context.Context, opts *GlobalOptions, op string, makeArgs []string) (_ *runtime, err error) {
	s, err := loadSettings(opts.configPath(), opts.ConfigPath == "")
	if err != nil {
		return nil, err
	}
	opts.apply(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}

	t := loadTimeouts()
	if opts.Timeout > 0 {
		t.Operation = opts.Timeout
	}

	log := newLogger(opts.Verbose, stderr)
	rt := &runtime{
		settings:    s,
		log:         log,
		registry:    prometheus.NewRegistry(),
		metricsFile: opts.MetricsFile,
	}
	defer func() {
		if err != nil {
			if closeErr := rt.release(context.WithoutCancel(ctx)); closeErr != nil {
				log.Error(closeErr, "failed to release runtime")
			}
		}
	}()

	var obs observe.Observer = observe.NewLogObserver(log)
	if s.Events.NATSURL != "" {
		sink, err := connectEvents(s.Events.NATSURL, s.Events.SubjectPrefix, log)
		if err != nil {
			log.Info("event sink disabled", "error", err.Error())
		} else {
			obs = observe.Tee(obs, sink)
			rt.closers = append(rt.closers, func(context.Context) error { sink.Close(); return nil })
		}
	}

	shutdown, err := setupTracing(opts.Trace, stderr)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdown)

	token, err := resolveToken()
	if err != nil {
		return nil, err
	}
	provider := newProvider(token, s, t, log)

	keyPath := expandHome(s.SSH.PrivateKeyPath)
	var publicKey string
	var prober fleet.Prober
	if op != fleet.OpStop {
		var privateKey []byte
		privateKey, publicKey, err = loadSSHKey(keyPath)
		if err != nil {
			return nil, err
		}
		if privateKey == nil {
			return nil, &config.ConfigError{Field: "ssh.private_key_path", Message: "is required to check node readiness"}
		}
		if prober, err = newProber(s, privateKey, provider, log); err != nil {
			return nil, &config.ConfigError{Field: "ssh.private_key_path", Message: "unusable key", Err: err}
		}
	}

	var dispatcher fleet.Dispatcher
	if op == fleet.OpMake {
		dispatcher = newDispatcher(s, keyPath, makeArgs, log)
	}

	var script string
	if op == fleet.OpStart {
		script, err = startup.Load(s.StartupScript, s.Distro, startup.Params{
			SentinelPath: s.Readiness.SentinelPath,
			Marker:       s.Readiness.SentinelMarker,
		})
		if err != nil {
			return nil, &config.ConfigError{Field: "startup_script", Message: "cannot prepare startup script", Err: err}
		}
	}

	var sources []string
	if s.Firewall.Enabled && op == fleet.OpStart {
		if sources, err = firewallSources(ctx, s.Firewall.Sources, provider); err != nil {
			return nil, err
		}
	}

	owner, err := ownerHash()
	if err != nil {
		return nil, err
	}
	id := fleet.Identity{
		Project:   s.Project,
		Zone:      s.Zone,
		Prefix:    s.Prefix,
		Distro:    s.Distro,
		OwnerHash: owner,
		Global:    s.Global,
	}

	rt.fleet = fleet.New(id, provider, prober, dispatcher, fleet.Options{
		ImageOwner:         s.Image.Owner,
		ImageFamily:        s.Image.Family,
		MachineType:        s.MachineType,
		StartupScript:      script,
		Network:            fleet.NetworkConfig{PublicIPv4: s.Network.PublicIPv4, PublicIPv6: s.Network.PublicIPv6},
		Scopes:             s.Scopes,
		Preemptible:        s.Preemptible,
		Labels:             s.Labels,
		SSHPublicKey:       publicKey,
		FirewallSources:    sources,
		ManageSSHKey:       s.SSH.PrivateKeyPath != "",
		ManageFirewall:     s.Firewall.Enabled,
		CreatePollInterval: t.CreatePollInterval,
		DeletePollInterval: t.DeletePollInterval,
		MaxPollErrors:      t.MaxPollErrors,
		NodeTimeout:        t.Node,
		OperationTimeout:   t.Operation,
		ReadyAttempts:      s.Readiness.Attempts,
		ReadyInterval:      s.Readiness.Interval,
		MaxFleetSize:       s.MaxFleetSize,
		SlotsPerNode:       s.Slots,
	},
		fleet.WithObserver(obs.WithFields(map[string]string{"fleet": id.BaseName()})),
		fleet.WithMetrics(fleet.NewMetrics(rt.registry)),
	)
	return rt, nil
}

// release runs the closers in reverse order of registration.
func (rt *runtime) release(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// close flushes tracing, events and the metrics textfile.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if err := rt.release(ctx); err != nil {
		errs = append(errs, err)
	}
	if rt.metricsFile != "" {
		if err := prometheus.WriteToTextfile(rt.metricsFile, rt.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newLogger builds the console logger. verbose enables V(1) output.
func newLogger(verbose bool, w io.Writer) logr.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zapr.NewLogger(zap.New(core))
}

// loadSSHKey reads the private key at path and derives its authorized_keys
// line. An empty path is not an error.
func loadSSHKey(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", nil
	}
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &config.ConfigError{Field: "ssh.private_key_path", Message: "failed to read key", Err: err}
	}
	signer, err := gossh.ParsePrivateKey(data)
	if err != nil {
		return nil, "", &config.ConfigError{Field: "ssh.private_key_path", Message: "failed to parse key", Err: err}
	}
	return data, strings.TrimSpace(string(gossh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// firewallSources returns the configured sources or, when there are none,
// the operator's detected public address.
func firewallSources(ctx context.Context, configured []string, provider fleetProvider) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	ip, err := provider.PublicIP(ctx)
	if err != nil {
		return nil, &config.ConfigError{Field: "firewall.sources", Message: "cannot detect public address; set sources or disable the firewall", Err: err}
	}
	return []string{ip}, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
