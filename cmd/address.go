package main

// This file centralizes the choice of the address printed in the connect URL.

import (
	"net"
)

// resolvePublicHost returns the host:port a device should dial. A configured
// value wins. A wildcard or empty listen host is replaced by the machine's
// preferred outbound IP so the URL works from another device.
func resolvePublicHost(configured, boundAddr string) string {
	if configured != "" {
		return configured
	}
	host, port, err := net.SplitHostPort(boundAddr)
	if err != nil {
		return boundAddr
	}
	ip := net.ParseIP(host)
	if host != "" && (ip == nil || !ip.IsUnspecified()) {
		return boundAddr
	}
	if out := GetPreferredOutboundIP(); out != "" {
		return net.JoinHostPort(out, port)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

// GetPreferredOutboundIP returns the machine's preferred outbound IPv4 address.
// It works by dialing a UDP connection to a public IP (no actual traffic sent)
// and checking which local address was selected by the OS routing table.
// Returns empty string if detection fails.
func GetPreferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return localAddr.IP.String()
}
