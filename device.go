package orchestra

import (
	"net"
	"os"
)

// devicePlaceholder is the degraded identity used when the local host
// cannot be resolved. Resolution failure must never block startup.
const devicePlaceholder = "Unable to retrieve the localhost information"

// Device identifies the process origin attached to every session.
type Device struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname"`
}

// ResolveDevice determines the local host identity. It is called once
// during orchestrator construction; failures degrade to a placeholder
// identity carrying the error text.
func ResolveDevice() Device {
	hostname, err := os.Hostname()
	if err != nil {
		return Device{Address: devicePlaceholder, Hostname: err.Error()}
	}

	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		// The hostname resolved but carries no address; keep the name.
		return Device{Address: "127.0.0.1", Hostname: hostname}
	}

	return Device{Address: addrs[0], Hostname: hostname}
}

// String returns "hostname (address)".
func (d Device) String() string {
	return d.Hostname + " (" + d.Address + ")"
}
