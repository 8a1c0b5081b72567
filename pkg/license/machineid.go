package license

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

const appID = "multiaccount-trade"

// MachineID returns an app-scoped hash of the host's machine id.
func MachineID() (string, error) {
	return machineid.ProtectedID(appID)
}

// NodeID identifies this process's host in status reports and operator tokens.
// Hosts without a readable machine id fall back to the hostname.
func NodeID() string {
	if id, err := MachineID(); err == nil && id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
