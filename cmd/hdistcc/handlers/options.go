package handlers

import (
	"time"

	"github.com/imamik/hdistcc/internal/config"
)

// GlobalOptions are the flags shared by the fleet commands. Empty values
// leave the settings file in charge.
type GlobalOptions struct {
	ConfigPath  string
	Zone        string
	Project     string
	Prefix      string
	Distro      string
	Global      bool
	Timeout     time.Duration
	Verbose     bool
	Trace       bool
	MetricsFile string
}

// apply overrides s with the flags that were set.
func (o *GlobalOptions) apply(s *config.Settings) {
	if o.Zone != "" {
		s.Zone = o.Zone
	}
	if o.Project != "" {
		s.Project = o.Project
	}
	if o.Prefix != "" {
		s.Prefix = o.Prefix
	}
	if o.Distro != "" {
		s.Distro = o.Distro
	}
	if o.Global {
		s.Global = true
	}
}

func (o *GlobalOptions) configPath() string {
	if o.ConfigPath == "" {
		return config.DefaultFile
	}
	return o.ConfigPath
}
