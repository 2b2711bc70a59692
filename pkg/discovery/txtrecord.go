package discovery

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// Equal reports whether both maps hold the same attributes.
func (t TXTRecordMap) Equal(o TXTRecordMap) bool {
	return maps.Equal(t, o)
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, sorted by key. This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for _, k := range slices.Sorted(maps.Keys(txt)) {
		result = append(result, k+"="+txt[k])
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, ok := strings.Cut(s, "=")
		if ok {
			txt[k] = v
		} else if s != "" {
			// Key without value (boolean flag)
			txt[s] = ""
		}
	}
	return txt
}

// ValidateTXT checks that every attribute can be encoded.
func ValidateTXT(txt TXTRecordMap) error {
	for k, v := range txt {
		if k == "" || strings.Contains(k, "=") {
			return fmt.Errorf("%w: key %q", ErrInvalidTXTRecord, k)
		}
		if n := len(k) + 1 + len(v); n > MaxTXTEntryLen {
			return fmt.Errorf("%w: %q is %d bytes", ErrInvalidTXTRecord, k, n)
		}
	}
	return nil
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
