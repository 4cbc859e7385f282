package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
)

// MachineTypeOption is one server type offered by the wizard.
type MachineTypeOption struct {
	Name  string
	Label string
}

// DefaultMachineTypes is the static list used when the API is not reachable.
var DefaultMachineTypes = []MachineTypeOption{
	{Name: "cx22", Label: "CX22 - 2 vCPU, 4GB RAM"},
	{Name: "cx32", Label: "CX32 - 4 vCPU, 8GB RAM"},
	{Name: "cx42", Label: "CX42 - 8 vCPU, 16GB RAM"},
	{Name: "cx52", Label: "CX52 - 16 vCPU, 32GB RAM"},
	{Name: "cpx31", Label: "CPX31 - 4 vCPU (AMD), 8GB RAM"},
	{Name: "cax21", Label: "CAX21 - 4 vCPU (ARM), 8GB RAM"},
}

var zoneLabels = map[string]string{
	"fsn1": "Falkenstein, Germany (fsn1)",
	"nbg1": "Nuremberg, Germany (nbg1)",
	"hel1": "Helsinki, Finland (hel1)",
	"ash":  "Ashburn, USA (ash)",
	"hil":  "Hillsboro, USA (hil)",
	"sin":  "Singapore (sin)",
}

// WizardResult holds the user's choices from the wizard.
type WizardResult struct {
	Project     string
	Zone        string
	Distro      string
	MachineType string
	Slots       int
	SSHKeyPath  string
	Firewall    bool
	Pump        bool
}

// RunWizard asks for the settings that differ between users. machineTypes
// may be nil to use DefaultMachineTypes.
func RunWizard(ctx context.Context, machineTypes []MachineTypeOption) (*WizardResult, error) {
	result := &WizardResult{
		Project:     DefaultProject,
		Zone:        DefaultZone,
		Distro:      DefaultDistro,
		MachineType: DefaultMachineType,
		Slots:       DefaultSlots,
		SSHKeyPath:  defaultKeyPath(),
		Firewall:    true,
		Pump:        true,
	}
	if len(machineTypes) == 0 {
		machineTypes = DefaultMachineTypes
	}

	zoneOpts := make([]huh.Option[string], len(Zones))
	for i, z := range Zones {
		zoneOpts[i] = huh.NewOption(zoneLabels[z], z)
	}
	typeOpts := make([]huh.Option[string], len(machineTypes))
	for i, mt := range machineTypes {
		typeOpts[i] = huh.NewOption(mt.Label, mt.Name)
	}
	distroOpts := make([]huh.Option[string], len(Distros))
	for i, d := range Distros {
		distroOpts[i] = huh.NewOption(d, d)
	}
	slots := strconv.Itoa(result.Slots)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project").
				Description("Label for the Hetzner project your token belongs to").
				Value(&result.Project).
				Validate(requireNonEmpty),
			huh.NewSelect[string]().
				Title("Location").
				Options(zoneOpts...).
				Value(&result.Zone),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Node distribution").
				Options(distroOpts...).
				Value(&result.Distro),
			huh.NewSelect[string]().
				Title("Node server type").
				Description("Each node runs 'slots' compile jobs").
				Options(typeOpts...).
				Value(&result.MachineType),
			huh.NewInput().
				Title("Slots per node").
				Value(&slots).
				Validate(validateSlots),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SSH private key").
				Description("Created if missing; its public key is installed on every node").
				Value(&result.SSHKeyPath).
				Validate(requireNonEmpty),
			huh.NewConfirm().
				Title("Restrict SSH to your public IP?").
				Value(&result.Firewall),
			huh.NewConfirm().
				Title("Use distcc pump mode?").
				Description("Preprocesses on the nodes; needs distcc-pump locally").
				Value(&result.Pump),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}
	result.Slots, _ = strconv.Atoi(slots)
	return result, nil
}

// ToSettings applies the wizard choices over the defaults.
func (r *WizardResult) ToSettings() *Settings {
	s := Default()
	s.Project = r.Project
	s.Zone = r.Zone
	s.Distro = r.Distro
	s.MachineType = r.MachineType
	if len(r.MachineType) >= 3 && r.MachineType[:3] == "cax" {
		s.Image.Architecture = "arm"
	}
	if r.Distro == "debian" {
		s.Image.Family = "debian-12"
	}
	s.Slots = r.Slots
	s.SSH.PrivateKeyPath = r.SSHKeyPath
	s.Firewall.Enabled = r.Firewall
	s.Build.Pump = r.Pump
	s.Build.CPP = r.Pump
	return s
}

func requireNonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validateSlots(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 64 {
		return fmt.Errorf("must be a number between 1 and 64")
	}
	return nil
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "hdistcc_ed25519")
}
