package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/util/prerequisites"
)

var _ fleet.Dispatcher = (*Dispatcher)(nil)

// ErrNoHosts is returned when a build is dispatched to an empty fleet.
var ErrNoHosts = errors.New("no build hosts")

// Options configure the build invocation.
type Options struct {
	// Command is the build command, split on whitespace. Default "make".
	Command string
	// Args are appended after the -j flag.
	Args []string

	Pump      bool
	LZO       bool
	CPP       bool
	Randomize bool

	// User is the SSH login on the nodes; empty uses ssh's default.
	User string
	// IdentityFile is the SSH private key distcc's ssh uses.
	IdentityFile string

	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	// Env is the base environment; nil means os.Environ().
	Env []string
}

// Dispatcher runs builds.
type Dispatcher struct {
	opts    Options
	checker prerequisites.Checker
	run     func(*exec.Cmd) error
	tempDir string
	log     logr.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChecker replaces the tool lookup.
func WithChecker(c prerequisites.Checker) Option {
	return func(d *Dispatcher) {
		d.checker = c
	}
}

// WithRunner replaces process execution.
func WithRunner(run func(*exec.Cmd) error) Option {
	return func(d *Dispatcher) {
		d.run = run
	}
}

// WithTempDir sets where the ssh wrapper is written.
func WithTempDir(dir string) Option {
	return func(d *Dispatcher) {
		d.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// New creates a Dispatcher.
func New(opts Options, options ...Option) *Dispatcher {
	if opts.Command == "" {
		opts.Command = "make"
	}
	d := &Dispatcher{
		opts:    opts,
		checker: prerequisites.Checker{LookPath: exec.LookPath},
		run:     (*exec.Cmd).Run,
		log:     logr.Discard(),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Dispatch runs the build with parallelism jobs across hosts.
func (d *Dispatcher) Dispatch(ctx context.Context, hosts []fleet.HostDescriptor, parallelism int) error {
	if len(hosts) == 0 {
		return ErrNoHosts
	}
	if parallelism < 1 {
		parallelism = 1
	}

	tools := prerequisites.BuildTools(d.opts.Pump)
	if name := d.buildTool(); name != "make" {
		tools = append(tools, prerequisites.Tool{Name: name, Required: true, Description: "Build command"})
	}
	if err := d.checker.Check(tools).Error(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(d.tempDir, "hdistcc-")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	wrapper, err := writeSSHWrapper(dir, d.opts.IdentityFile)
	if err != nil {
		return err
	}

	argv := Command(d.opts, parallelism)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = d.opts.Dir
	cmd.Stdout = d.opts.Stdout
	cmd.Stderr = d.opts.Stderr
	cmd.Stdin = nil
	base := d.opts.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string(nil), base...), Environment(d.opts, hosts, wrapper)...)

	d.log.V(1).Info("running build", "argv", argv, "hosts", HostsValue(d.opts, hosts))
	if err := d.run(cmd); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}

func (d *Dispatcher) buildTool() string {
	fields := strings.Fields(d.opts.Command)
	if len(fields) == 0 {
		return "make"
	}
	return fields[0]
}

// Command returns the argv of the build: the build command, preceded by
// pump in pump mode, with -j<parallelism> and the extra arguments.
func Command(opts Options, parallelism int) []string {
	var argv []string
	if opts.Pump {
		argv = append(argv, "pump")
	}
	fields := strings.Fields(opts.Command)
	if len(fields) == 0 {
		fields = []string{"make"}
	}
	argv = append(argv, fields...)
	argv = append(argv, "-j"+strconv.Itoa(parallelism))
	return append(argv, opts.Args...)
}

// HostsValue renders DISTCC_HOSTS: each node as an SSH host with its slot
// limit and options.
func HostsValue(opts Options, hosts []fleet.HostDescriptor) string {
	var parts []string
	if opts.Randomize {
		parts = append(parts, "--randomize")
	}
	for _, h := range hosts {
		addr := h.Address
		if addr == "" {
			addr = h.Host
		}
		entry := "@" + addr
		if opts.User != "" {
			entry = opts.User + "@" + addr
		}
		entry += "/" + strconv.Itoa(max(h.Slots, 1))
		if opts.LZO {
			entry += ",lzo"
		}
		// cpp ships preprocessing to the node and only works under pump
		if opts.CPP && opts.Pump {
			entry += ",cpp"
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, " ")
}

// Environment returns the variables added to the build environment.
func Environment(opts Options, hosts []fleet.HostDescriptor, sshWrapper string) []string {
	env := []string{
		"DISTCC_HOSTS=" + HostsValue(opts, hosts),
		"DISTCC_TCP_CORK=0",
		"CCACHE_PREFIX=distcc",
	}
	if sshWrapper != "" {
		env = append(env, "DISTCC_SSH="+sshWrapper)
	}
	return env
}

// writeSSHWrapper writes an executable that runs ssh non-interactively with
// a private known_hosts file. distcc accepts only a program name in
// DISTCC_SSH, so options travel through the wrapper.
func writeSSHWrapper(dir, identityFile string) (string, error) {
	knownHosts := filepath.Join(dir, "known_hosts")
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "UserKnownHostsFile=" + shellQuote(knownHosts),
	}
	if identityFile != "" {
		args = append(args, "-o", "IdentitiesOnly=yes", "-i", shellQuote(identityFile))
	}
	script := "#!/bin/sh\nexec ssh " + strings.Join(args, " ") + " \"$@\"\n"

	path := filepath.Join(dir, "ssh")
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		return "", fmt.Errorf("failed to write ssh wrapper: %w", err)
	}
	return path, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
