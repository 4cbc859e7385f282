// Package prerequisites checks that the local tools a distributed build
// needs are installed.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool is a local executable the build depends on.
type Tool struct {
	Name        string
	Required    bool
	Description string
	InstallURL  string
}

// BuildTools returns the tools needed to dispatch a build. pump is only
// required when pump mode is enabled.
func BuildTools(pump bool) []Tool {
	return []Tool{
		{
			Name:        "make",
			Required:    true,
			Description: "Runs the build",
			InstallURL:  "https://www.gnu.org/software/make/",
		},
		{
			Name:        "distcc",
			Required:    true,
			Description: "Distributes compile jobs to fleet nodes",
			InstallURL:  "https://www.distcc.org/",
		},
		{
			Name:        "pump",
			Required:    pump,
			Description: "Ships preprocessing to fleet nodes (distcc-pump)",
			InstallURL:  "https://www.distcc.org/",
		},
		{
			Name:        "ssh",
			Required:    true,
			Description: "Transport for distcc to reach fleet nodes",
			InstallURL:  "https://www.openssh.com/",
		},
	}
}

// OptionalTools returns tools that improve builds but are not needed.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "ccache",
			Required:    false,
			Description: "Caches compile results in front of distcc",
			InstallURL:  "https://ccache.dev/",
		},
	}
}

// CheckResult is the outcome for one tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults aggregates the outcome of a check.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors reports whether a required tool is missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error naming the missing required tools, or nil.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Checker looks tools up. Version may be nil.
type Checker struct {
	LookPath func(name string) (string, error)
	Version  func(name string) string
}

// Check looks every tool up on PATH and records its version.
func Check(tools []Tool) *CheckResults {
	return Checker{LookPath: exec.LookPath, Version: getToolVersion}.Check(tools)
}

// Check looks every tool up.
func (c Checker) Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := c.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			if c.Version != nil {
				result.Version = c.Version(tool.Name)
			}
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckForBuild checks the build tools plus the optional ones.
func CheckForBuild(pump bool) *CheckResults {
	return Check(append(BuildTools(pump), OptionalTools()...))
}

// getToolVersion attempts to get the version of a tool.
// Returns empty string if version cannot be determined.
func getToolVersion(name string) string {
	for _, flag := range []string{"--version", "-v"} {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		output, err := exec.Command(name, flag).Output()
		if err == nil {
			line, _, _ := strings.Cut(string(output), "\n")
			return strings.TrimSpace(line)
		}
	}
	return ""
}
