// Package version provides protocol version parsing and comparison.
//
// The version travels in the "v" TXT record of discovery advertisements
// so clients can skip servers they cannot talk to before dialing.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this library.
const Current = "1.0"

// Version represents a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
// Minor versions are additive and never break the wire format.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// CheckCompatible reports whether a server's advertised version string is
// compatible with this library. An empty string passes: servers predating
// the "v" TXT record speak major version 1.
func CheckCompatible(advertised string) error {
	if advertised == "" {
		return nil
	}
	theirs, err := Parse(advertised)
	if err != nil {
		return err
	}
	ours, err := Parse(Current)
	if err != nil {
		return err
	}
	if !ours.Compatible(theirs) {
		return fmt.Errorf("server version %s is incompatible with %s", theirs, ours)
	}
	return nil
}
