package discovery

import (
	"fmt"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates TXT records for server discovery.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyServerID] = info.ServerID
	txt[TXTKeyThings] = encodeList(info.Things)

	// Optional fields
	if len(info.Codecs) > 0 {
		txt[TXTKeyCodecs] = encodeList(info.Codecs)
	}
	if info.HTTPAddress != "" {
		txt[TXTKeyHTTP] = info.HTTPAddress
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	return txt
}

// DecodeServerTXT parses TXT records from server discovery.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{}

	// Parse server ID (required)
	var ok bool
	info.ServerID, ok = txt[TXTKeyServerID]
	if !ok || info.ServerID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyServerID)
	}

	// Parse thing IDs (required, may be empty)
	thingsStr, ok := txt[TXTKeyThings]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyThings)
	}
	info.Things = parseList(thingsStr)

	// Optional fields
	info.Codecs = parseList(txt[TXTKeyCodecs])
	info.HTTPAddress = txt[TXTKeyHTTP]
	info.Version = txt[TXTKeyVersion]

	return info, nil
}

// encodeList converts a string slice to a comma-separated string.
func encodeList(items []string) string {
	return strings.Join(items, ",")
}

// parseList parses a comma-separated string into a slice.
func parseList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
