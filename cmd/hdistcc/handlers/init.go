package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/hdistcc/internal/config"
	"github.com/imamik/hdistcc/internal/platform/hcloud"
	"github.com/imamik/hdistcc/internal/util/keygen"
)

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// listMachineTypes offers the live server types of a location.
	listMachineTypes = func(ctx context.Context, token, zone string) ([]config.MachineTypeOption, error) {
		return hcloud.New(token).MachineTypes(ctx, zone)
	}

	runWizard    = config.RunWizard
	saveSettings = config.Save
	generateKey  = keygen.GenerateEd25519KeyPair
)

// Init runs the configuration wizard and writes the settings file. A
// missing SSH key at the chosen path is generated.
func Init(ctx context.Context, outputPath string) error {
	if outputPath == "" {
		outputPath = config.DefaultFile
	}
	if fileExists(outputPath) {
		fmt.Fprintf(stdout, "Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	printWelcome()

	var machineTypes []config.MachineTypeOption
	if token, err := resolveToken(); err == nil {
		machineTypes, err = listMachineTypes(ctx, token, config.DefaultZone)
		if err != nil {
			fmt.Fprintf(stdout, "Could not list server types (%v), using defaults.\n\n", err)
		}
	}

	result, err := runWizard(ctx, machineTypes)
	if err != nil {
		return err
	}
	s := result.ToSettings()

	keyPath := expandHome(s.SSH.PrivateKeyPath)
	generated := false
	if keyPath != "" && !fileExists(keyPath) {
		pair, err := generateKey("hdistcc")
		if err != nil {
			return err
		}
		if err := pair.WriteFiles(keyPath); err != nil {
			return err
		}
		generated = true
	}

	if err := s.Validate(); err != nil {
		return err
	}
	if err := saveSettings(outputPath, s); err != nil {
		return err
	}

	printInitSuccess(outputPath, s, generated)
	return nil
}

func printWelcome() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "hdistcc - distcc build fleets on Hetzner Cloud")
	fmt.Fprintln(stdout, "==============================================")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "This wizard writes a settings file with sensible defaults.")
	fmt.Fprintln(stdout)
}

func printInitSuccess(outputPath string, s *config.Settings, generatedKey bool) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Configuration saved!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  File: %s\n", outputPath)
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, "Fleet Summary")
	fmt.Fprintln(stdout, "-------------")
	fmt.Fprintf(stdout, "  Zone:         %s\n", s.Zone)
	fmt.Fprintf(stdout, "  Distro:       %s (%s)\n", s.Distro, s.Image.Family)
	fmt.Fprintf(stdout, "  Machine type: %s\n", s.MachineType)
	fmt.Fprintf(stdout, "  Slots/node:   %d\n", s.Slots)
	fmt.Fprintf(stdout, "  Firewall:     %t\n", s.Firewall.Enabled)
	fmt.Fprintf(stdout, "  Pump mode:    %t\n", s.Build.Pump)
	if generatedKey {
		fmt.Fprintf(stdout, "  SSH key:      %s (generated)\n", s.SSH.PrivateKeyPath)
	} else if s.SSH.PrivateKeyPath != "" {
		fmt.Fprintf(stdout, "  SSH key:      %s\n", s.SSH.PrivateKeyPath)
	}
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  1. Store your API token:  hdistcc auth login")
	fmt.Fprintln(stdout, "  2. Start a fleet:         hdistcc start --qty 3")
	fmt.Fprintln(stdout, "  3. Build:                 hdistcc make -- all")
	fmt.Fprintln(stdout, "  4. Tear it down:          hdistcc stop")
	fmt.Fprintln(stdout)
}
