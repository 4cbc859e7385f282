package config

import (
	"errors"
	"net/netip"
	"regexp"
	"slices"
	"time"
)

// Defaults for a fresh settings file.
const (
	DefaultFile           = "hdistcc.yaml"
	DefaultProject        = "default"
	DefaultZone           = "fsn1"
	DefaultPrefix         = "hdistcc"
	DefaultDistro         = "ubuntu"
	DefaultMachineType    = "cx22"
	DefaultImageOwner     = "system"
	DefaultImageFamily    = "ubuntu-24.04"
	DefaultArchitecture   = "x86"
	DefaultSlots          = 2
	DefaultMaxFleetSize   = 8
	DefaultSSHUser        = "root"
	DefaultSSHDialTimeout = 5 * time.Second
	DefaultSentinelPath   = "/tmp/hdistcc_ready"
	DefaultSentinelMarker = "HDISTCC_READY"
	DefaultSubjectPrefix  = "hdistcc.events"
	DefaultBuildCommand   = "make"
	DefaultReadyAttempts  = 40
	DefaultReadyInterval  = 10 * time.Second

	// MaxFleetSizeLimit is the hard upper bound for max_fleet_size.
	MaxFleetSizeLimit = 8
)

// Image owners understood by the Hetzner provider.
const (
	ImageOwnerSystem   = "system"
	ImageOwnerSnapshot = "snapshot"
)

// Zones lists the Hetzner Cloud locations.
var Zones = []string{"fsn1", "nbg1", "hel1", "ash", "hil", "sin"}

// Distros lists the distributions with a built-in startup script.
var Distros = []string{"ubuntu", "debian"}

var namePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,30}[a-z0-9])?$`)

// Settings is the full hdistcc configuration.
type Settings struct {
	Project       string            `yaml:"project"`
	Zone          string            `yaml:"zone"`
	Prefix        string            `yaml:"prefix"`
	Distro        string            `yaml:"distro"`
	Global        bool              `yaml:"global,omitempty"`
	MachineType   string            `yaml:"machine_type"`
	Image         ImageSettings     `yaml:"image"`
	Slots         int               `yaml:"slots"`
	MaxFleetSize  int               `yaml:"max_fleet_size"`
	Network       NetworkSettings   `yaml:"network"`
	Scopes        []string          `yaml:"scopes,omitempty"`
	Preemptible   bool              `yaml:"preemptible,omitempty"`
	StartupScript string            `yaml:"startup_script,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	SSH           SSHSettings       `yaml:"ssh"`
	Firewall      FirewallSettings  `yaml:"firewall"`
	Readiness     ReadinessSettings `yaml:"readiness"`
	Events        EventSettings     `yaml:"events,omitempty"`
	Build         BuildSettings     `yaml:"build"`
}

// ImageSettings selects the node image.
type ImageSettings struct {
	// Owner is "system" for Hetzner images or "snapshot" for own snapshots
	// labelled with the family.
	Owner        string `yaml:"owner"`
	Family       string `yaml:"family"`
	Architecture string `yaml:"architecture"`
}

// NetworkSettings controls public addressing.
type NetworkSettings struct {
	PublicIPv4 bool `yaml:"public_ipv4"`
	PublicIPv6 bool `yaml:"public_ipv6"`
}

// SSHSettings configures access to nodes.
type SSHSettings struct {
	User           string        `yaml:"user"`
	PrivateKeyPath string        `yaml:"private_key_path,omitempty"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// FirewallSettings restricts inbound traffic to fleet nodes.
type FirewallSettings struct {
	// Enabled applies a firewall admitting SSH from Sources only.
	Enabled bool `yaml:"enabled"`
	// Sources are CIDRs or addresses. Empty means the operator's public
	// IPv4 address, detected at start.
	Sources []string `yaml:"sources,omitempty"`
}

// ReadinessSettings configures the readiness poll.
type ReadinessSettings struct {
	Attempts       int           `yaml:"attempts"`
	Interval       time.Duration `yaml:"interval"`
	SentinelPath   string        `yaml:"sentinel_path"`
	SentinelMarker string        `yaml:"sentinel_marker"`
}

// EventSettings configures the optional NATS event sink.
type EventSettings struct {
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// BuildSettings configures the distcc invocation.
type BuildSettings struct {
	Command   string `yaml:"command"`
	Pump      bool   `yaml:"pump"`
	LZO       bool   `yaml:"lzo"`
	CPP       bool   `yaml:"cpp"`
	Randomize bool   `yaml:"randomize"`
}

// Default returns settings with every default applied.
func Default() *Settings {
	return &Settings{
		Project:     DefaultProject,
		Zone:        DefaultZone,
		Prefix:      DefaultPrefix,
		Distro:      DefaultDistro,
		MachineType: DefaultMachineType,
		Image: ImageSettings{
			Owner:        DefaultImageOwner,
			Family:       DefaultImageFamily,
			Architecture: DefaultArchitecture,
		},
		Slots:        DefaultSlots,
		MaxFleetSize: DefaultMaxFleetSize,
		Network:      NetworkSettings{PublicIPv4: true, PublicIPv6: true},
		SSH: SSHSettings{
			User:        DefaultSSHUser,
			DialTimeout: DefaultSSHDialTimeout,
		},
		Firewall: FirewallSettings{Enabled: true},
		Readiness: ReadinessSettings{
			Attempts:       DefaultReadyAttempts,
			Interval:       DefaultReadyInterval,
			SentinelPath:   DefaultSentinelPath,
			SentinelMarker: DefaultSentinelMarker,
		},
		Events: EventSettings{SubjectPrefix: DefaultSubjectPrefix},
		Build: BuildSettings{
			Command:   DefaultBuildCommand,
			Pump:      true,
			LZO:       true,
			CPP:       true,
			Randomize: true,
		},
	}
}

// Validate checks the settings. All problems are reported, joined; each
// is a *ConfigError.
func (s *Settings) Validate() error {
	var errs []error
	add := func(err *ConfigError) { errs = append(errs, err) }

	if s.Project == "" {
		add(fieldError("project", "is required"))
	}
	if !slices.Contains(Zones, s.Zone) {
		add(fieldError("zone", "%q is not a known location (%v)", s.Zone, Zones))
	}
	if !namePattern.MatchString(s.Prefix) {
		add(fieldError("prefix", "%q must be 1-32 lowercase alphanumeric characters or hyphens", s.Prefix))
	}
	if !slices.Contains(Distros, s.Distro) && s.StartupScript == "" {
		add(fieldError("distro", "%q has no built-in startup script (%v); set startup_script", s.Distro, Distros))
	}
	if !namePattern.MatchString(s.Distro) {
		add(fieldError("distro", "%q must be lowercase alphanumeric characters or hyphens", s.Distro))
	}
	if s.MachineType == "" {
		add(fieldError("machine_type", "is required"))
	}
	switch s.Image.Owner {
	case ImageOwnerSystem, ImageOwnerSnapshot:
	default:
		add(fieldError("image.owner", "must be %q or %q", ImageOwnerSystem, ImageOwnerSnapshot))
	}
	if s.Image.Family == "" {
		add(fieldError("image.family", "is required"))
	}
	if s.Image.Architecture != "x86" && s.Image.Architecture != "arm" {
		add(fieldError("image.architecture", "must be x86 or arm"))
	}
	if s.Slots < 1 {
		add(fieldError("slots", "must be at least 1"))
	}
	if s.MaxFleetSize < 1 || s.MaxFleetSize > MaxFleetSizeLimit {
		add(fieldError("max_fleet_size", "must be between 1 and %d", MaxFleetSizeLimit))
	}
	if !s.Network.PublicIPv4 && !s.Network.PublicIPv6 {
		add(fieldError("network", "nodes need a public address to be reachable"))
	}
	if s.SSH.User == "" {
		add(fieldError("ssh.user", "is required"))
	}
	for _, src := range s.Firewall.Sources {
		if !validSource(src) {
			add(fieldError("firewall.sources", "%q is not an address or CIDR", src))
		}
	}
	if s.Readiness.Attempts < 1 {
		add(fieldError("readiness.attempts", "must be at least 1"))
	}
	if s.Readiness.Interval <= 0 {
		add(fieldError("readiness.interval", "must be positive"))
	}
	if s.Readiness.SentinelPath == "" || s.Readiness.SentinelMarker == "" {
		add(fieldError("readiness", "sentinel_path and sentinel_marker are required"))
	}
	if s.Build.Command == "" {
		add(fieldError("build.command", "is required"))
	}

	return errors.Join(errs...)
}

func validSource(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
