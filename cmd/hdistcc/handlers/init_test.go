package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/config"
)

type initFakes struct {
	*env
	saved        *config.Settings
	savedPath    string
	machineTypes []config.MachineTypeOption
}

func withInitFakes(t *testing.T, result *config.WizardResult) *initFakes {
	t.Helper()
	f := &initFakes{env: withFakes(t)}
	origWizard, origSave, origList, origExists := runWizard, saveSettings, listMachineTypes, fileExists
	t.Cleanup(func() {
		runWizard, saveSettings, listMachineTypes, fileExists = origWizard, origSave, origList, origExists
	})

	runWizard = func(_ context.Context, types []config.MachineTypeOption) (*config.WizardResult, error) {
		f.machineTypes = types
		return result, nil
	}
	saveSettings = func(path string, s *config.Settings) error {
		f.savedPath, f.saved = path, s
		return nil
	}
	listMachineTypes = func(context.Context, string, string) ([]config.MachineTypeOption, error) {
		return []config.MachineTypeOption{{Name: "cx22", Label: "CX22"}}, nil
	}
	return f
}

func wizardResult(keyPath string) *config.WizardResult {
	return &config.WizardResult{
		Project:     "default",
		Zone:        "nbg1",
		Distro:      "debian",
		MachineType: "cx32",
		Slots:       4,
		SSHKeyPath:  keyPath,
		Firewall:    true,
		Pump:        false,
	}
}

func TestInit_WritesSettingsAndGeneratesKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "ssh", "hdistcc_ed25519")
	f := withInitFakes(t, wizardResult(keyPath))

	require.NoError(t, Init(context.Background(), "out.yaml"))

	require.NotNil(t, f.saved)
	assert.Equal(t, "out.yaml", f.savedPath)
	assert.Equal(t, "nbg1", f.saved.Zone)
	assert.Equal(t, "debian-12", f.saved.Image.Family)
	assert.False(t, f.saved.Build.CPP)
	assert.Equal(t, []config.MachineTypeOption{{Name: "cx22", Label: "CX22"}}, f.machineTypes)

	_, err := os.Stat(keyPath)
	require.NoError(t, err)
	_, err = os.Stat(keyPath + ".pub")
	require.NoError(t, err)
}

func TestInit_KeepsExistingKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "existing")
	require.NoError(t, os.WriteFile(keyPath, []byte("keep me"), 0o600))
	withInitFakes(t, wizardResult(keyPath))

	require.NoError(t, Init(context.Background(), "out.yaml"))

	data, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestInit_FallsBackWithoutToken(t *testing.T) {
	f := withInitFakes(t, wizardResult(""))
	resolveToken = func() (string, error) { return "", &config.ConfigError{Message: "no token"} }

	require.NoError(t, Init(context.Background(), "out.yaml"))
	assert.Nil(t, f.machineTypes)
}

func TestInit_WizardCanceled(t *testing.T) {
	f := withInitFakes(t, nil)
	runWizard = func(context.Context, []config.MachineTypeOption) (*config.WizardResult, error) {
		return nil, errors.New("wizard canceled: user aborted")
	}

	err := Init(context.Background(), "out.yaml")
	require.Error(t, err)
	assert.Nil(t, f.saved)
}

func TestInit_WarnsOnOverwrite(t *testing.T) {
	f := withInitFakes(t, wizardResult(""))
	fileExists = func(string) bool { return true }

	require.NoError(t, Init(context.Background(), "out.yaml"))
	assert.Contains(t, f.out.String(), "already exists")
	assert.Contains(t, f.out.String(), "Configuration saved!")
}
