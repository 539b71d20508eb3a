package connection

import "time"

// Record is the last known connection state of one profile. Records are
// values: a Store hands out copies, so holding one never races with writers.
type Record struct {
	ProfileName string `json:"profile_name"`
	Status      Status `json:"status"`
	// ConnectedSince is zero unless Status is Connected.
	ConnectedSince time.Time `json:"connected_since"`
	// IPAddress is empty unless Status is Connected.
	IPAddress string `json:"ip_address,omitempty"`

	// Reserved for telemetry; the probes do not fill them.
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}

// NewRecord returns a Disconnected record for name.
func NewRecord(name string) Record {
	return Record{ProfileName: name, Status: Disconnected()}
}

// Uptime returns how long the record has been connected as of now.
func (r Record) Uptime(now time.Time) time.Duration {
	if !r.Status.Is(StateConnected) || r.ConnectedSince.IsZero() {
		return 0
	}
	return now.Sub(r.ConnectedSince)
}

// Profile is the subset of a configured VPN profile the core needs. Only
// Name, Username and Protocol are interpreted; the rest is passed through
// to the actuator.
type Profile struct {
	Name           string
	GatewayAddress string
	Category       string
	CertPath       string
	Username       string
	Aliases        string
	Protocol       string
	AutoConnect    bool
}

// ActiveConnection is one entry of the system's active connection list.
type ActiveConnection struct {
	Name string `json:"name"`
	// IP is empty when the system does not report an address.
	IP string `json:"ip,omitempty"`
}

// Names returns the profile names of the given profiles.
func Names(profiles []Profile) []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return names
}
