// Package mdns provides optional mDNS/Bonjour advertisement of the debug
// server.
//
// When enabled, the host advertises itself on the local network using
// DNS-SD, so a device agent can find the server without a typed URL.
//
// The advertisement includes:
//   - Service type: _tabris-debug._tcp
//   - TXT records with protocol version, host name, server id and the
//     session id a new device should use
//
// Discovery only reveals where to connect. Admission is still decided by
// the server's session fencing.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for debug servers.
const ServiceType = "_tabris-debug._tcp"

// ProtocolVersion identifies the TXT record layout.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the debug server port to advertise.
	Port int

	// ServerID is the identifier of the running server process.
	ServerID string

	// SessionID is the session id the next device should connect with.
	SessionID int64

	// Path is the websocket path on the server.
	Path string

	// Name is a human-readable name for this host.
	// Defaults to the system hostname if empty.
	Name string
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start begins advertising the service via mDNS.
//
// Start is safe to call multiple times; subsequent calls are no-ops
// if already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := instanceName(a.config.Name)
	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords(a.config, name),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// SetSessionID updates the advertised session id. A running advertisement
// is updated in place.
func (a *Advertiser) SetSessionID(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.config.SessionID = id
	if a.server != nil {
		a.server.SetText(txtRecords(a.config, instanceName(a.config.Name)))
	}
}

// Stop stops the mDNS advertisement and unregisters the service.
// It is safe to call Stop multiple times or on an advertiser that
// was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "tabris"
	}
	return hostname
}

// txtRecords builds the service metadata. DNS TXT strings are limited to
// 255 bytes each; a UUID server id is 36.
func txtRecords(cfg Config, name string) []string {
	records := []string{
		"version=" + ProtocolVersion,
		"name=" + name,
	}
	if cfg.ServerID != "" {
		records = append(records, "server="+cfg.ServerID)
	}
	if cfg.SessionID > 0 {
		records = append(records, "session="+strconv.FormatInt(cfg.SessionID, 10))
	}
	if cfg.Path != "" {
		records = append(records, "path="+cfg.Path)
	}
	return records
}

// DiscoveredHost represents a debug server found via mDNS discovery.
type DiscoveredHost struct {
	Name      string
	Host      string
	Port      int
	Version   string
	ServerID  string
	SessionID int64
	Path      string
}

// URL returns the websocket URL a device agent would dial.
func (h DiscoveredHost) URL() string {
	url := fmt.Sprintf("ws://%s:%d%s", h.Host, h.Port, h.Path)
	if h.ServerID != "" {
		url += fmt.Sprintf("?session=%d&server=%s", h.SessionID, h.ServerID)
	}
	return url
}

// applyText fills host fields from TXT records. Unknown keys are ignored.
func (h *DiscoveredHost) applyText(records []string) {
	for _, txt := range records {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			h.Version = value
		case "name":
			h.Name = value
		case "server":
			h.ServerID = value
		case "session":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				h.SessionID = id
			}
		case "path":
			h.Path = value
		}
	}
}

// Discover searches for debug servers on the local network until ctx is done.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			host := DiscoveredHost{
				Name: entry.Instance,
				Port: entry.Port,
			}

			// Prefer IPv4 address
			if len(entry.AddrIPv4) > 0 {
				host.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				host.Host = "[" + entry.AddrIPv6[0].String() + "]"
			}
			host.applyText(entry.Text)

			mu.Lock()
			hosts = append(hosts, host)
			mu.Unlock()
		}
	}()

	err = resolver.Browse(ctx, ServiceType, "local.", entries)
	if err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once ctx is done.
	wg.Wait()

	return hosts, nil
}
