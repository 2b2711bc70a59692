package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Constants for mDNS.
const (
	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultTTL is the record TTL of advertised services.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTEntryLen is the limit of one "key=value" TXT string.
	MaxTXTEntryLen = 255
)

// Errors.
var (
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrInvalidServiceType  = errors.New("invalid service type")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrMissingRequired     = errors.New("missing required field")
	ErrNotFound            = errors.New("service not found")
	ErrClosed              = errors.New("discovery closed")
)

// Service is one service instance to advertise.
type Service struct {
	// Instance is the instance label, such as "srp1234".
	Instance string

	// Type is the service type, such as "_foo._tcp".
	Type string

	// Subtypes are optional subtype labels, without the "_sub" part.
	Subtypes []string

	// Host is the host label that owns the service.
	Host string

	Port     uint16
	Priority uint8
	Weight   uint8

	// Txt holds the TXT attributes.
	Txt TXTRecordMap

	// Addresses are the host's addresses.
	Addresses []netip.Addr
}

// Key identifies the service: "<instance>.<type>".
func (s *Service) Key() string {
	return s.Instance + "." + s.Type
}

// Validate checks the fields that mDNS constrains.
func (s *Service) Validate() error {
	if err := ValidateInstanceName(s.Instance); err != nil {
		return err
	}
	if err := ValidateServiceType(s.Type); err != nil {
		return err
	}
	if s.Port == 0 {
		return fmt.Errorf("%w: port", ErrMissingRequired)
	}
	return ValidateTXT(s.Txt)
}

// ValidateServiceType checks a "_name._proto" service type.
func ValidateServiceType(t string) error {
	name, proto, ok := strings.Cut(t, ".")
	if !ok || len(name) < 2 || name[0] != '_' {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, t)
	}
	if proto != "_tcp" && proto != "_udp" {
		return fmt.Errorf("%w: %q: protocol must be _tcp or _udp", ErrInvalidServiceType, t)
	}
	return nil
}

// BrowsedService is a service found on the link.
type BrowsedService struct {
	Instance  string
	Type      string
	Host      string
	Port      uint16
	Addresses []string
	Txt       TXTRecordMap
}
