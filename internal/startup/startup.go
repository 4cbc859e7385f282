// Package startup renders the per-distro scripts that prepare a fleet node
// for distcc and write the readiness sentinel when done.
package startup

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"
)

//go:embed scripts/*.sh.tmpl
var scripts embed.FS

var templates = template.Must(
	template.New("startup").
		Funcs(template.FuncMap{"quote": quote}).
		ParseFS(scripts, "scripts/*.sh.tmpl"),
)

// Params are the values substituted into a startup script.
type Params struct {
	SentinelPath string
	Marker       string
	// Packages are installed in addition to the distcc toolchain.
	Packages []string
	// Commands run after installation, before the sentinel is written.
	Commands []string
}

// Distros returns the distributions with a built-in script, sorted.
func Distros() []string {
	var out []string
	for _, t := range templates.Templates() {
		if name, ok := strings.CutSuffix(t.Name(), ".sh.tmpl"); ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Render returns the built-in script for distro.
func Render(distro string, p Params) (string, error) {
	if p.SentinelPath == "" || p.Marker == "" {
		return "", fmt.Errorf("startup script needs a sentinel path and marker")
	}
	t := templates.Lookup(distro + ".sh.tmpl")
	if t == nil {
		return "", fmt.Errorf("no startup script for distro %q (have %v)", distro, Distros())
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render %s startup script: %w", distro, err)
	}
	return buf.String(), nil
}

// Load returns the script for distro, or the contents of path when set.
// A custom script is used verbatim: it must write the sentinel itself.
func Load(path, distro string, p Params) (string, error) {
	if path == "" {
		return Render(distro, p)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read startup script: %w", err)
	}
	return string(data), nil
}

// quote quotes s for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
