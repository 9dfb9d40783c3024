package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type advertised by Thing servers.
	ServiceType = "_hololinked._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record key constants.
const (
	TXTKeyServerID = "id"     // Server identifier
	TXTKeyThings   = "things" // Thing IDs hosted by the server (comma-separated)
	TXTKeyCodecs   = "codecs" // Supported codec tags (comma-separated)
	TXTKeyHTTP     = "http"   // HTTP gateway address (optional)
	TXTKeyVersion  = "v"      // Protocol version
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrAlreadyStarted      = errors.New("announcer already started")
)

// ServerInfo describes a Thing server for advertisement.
type ServerInfo struct {
	// Instance is the mDNS instance name.
	Instance string

	// ServerID is the server's stable identifier.
	ServerID string

	// Port is the framed TCP listener port.
	Port uint16

	// Things lists the IDs of the Things the server hosts.
	Things []string

	// Codecs lists the payload codec tags the server accepts.
	Codecs []string

	// HTTPAddress is the HTTP gateway address, if one is running.
	HTTPAddress string

	// Version is the protocol version.
	Version string
}

// ServerService represents a discovered Thing server.
type ServerService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the hostname.
	Host string

	// Port is the service port.
	Port uint16

	// Addresses are the IP addresses (IPv4 and IPv6).
	Addresses []string

	// ServerID is the server's stable identifier.
	ServerID string

	// Things lists the IDs of the Things the server hosts.
	Things []string

	// Codecs lists the payload codec tags the server accepts.
	Codecs []string

	// HTTPAddress is the HTTP gateway address, if any.
	HTTPAddress string

	// Version is the protocol version.
	Version string
}

// HasThing reports whether the server hosts the given Thing.
func (s *ServerService) HasThing(thingID string) bool {
	for _, id := range s.Things {
		if id == thingID {
			return true
		}
	}
	return false
}
