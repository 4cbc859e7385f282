package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// DefaultMachineIDPath is the systemd machine identity file.
const DefaultMachineIDPath = "/etc/machine-id"

// ownerKey separates ownership hashes from any other use of the machine
// identity: ASCII "hdistcc.owner", zero-padded to 32 bytes.
var ownerKey = [32]byte{'h', 'd', 'i', 's', 't', 'c', 'c', '.', 'o', 'w', 'n', 'e', 'r'}

// OwnerHashLength matches the hash segment of node names.
const OwnerHashLength = 8

// HostIdentity returns a stable identifier for the local host: the
// contents of machineIDPath or, failing that, the hostname.
func HostIdentity(machineIDPath string, hostname func() (string, error)) (string, error) {
	// #nosec G304
	if data, err := os.ReadFile(machineIDPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	name, err := hostname()
	if err != nil || name == "" {
		return "", &ConfigError{Message: "cannot identify the local host: no machine id and no hostname", Err: err}
	}
	return name, nil
}

// OwnerHash derives the ownership hash from a host identifier.
func OwnerHash(hostID string) string {
	hasher, err := blake3.NewKeyed(ownerKey[:])
	if err != nil {
		panic(fmt.Sprintf("config: blake3 keyed hash initialization failed: %v", err))
	}
	_, _ = hasher.Write([]byte(hostID))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum)[:OwnerHashLength]
}

// LocalOwnerHash returns the ownership hash of this host.
func LocalOwnerHash() (string, error) {
	id, err := HostIdentity(DefaultMachineIDPath, os.Hostname)
	if err != nil {
		return "", err
	}
	return OwnerHash(id), nil
}
