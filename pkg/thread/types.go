package thread

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EUI64 is the IEEE extended unique identifier that seeds an engine's identity.
type EUI64 [8]byte

// String returns the identifier as hex.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// Role is the device role in the Thread network.
type Role uint8

const (
	// RoleDisabled - Thread networking is off.
	RoleDisabled Role = iota

	// RoleDetached - Thread is enabled but not attached to a partition.
	RoleDetached

	// RoleChild - attached as a child.
	RoleChild

	// RoleRouter - attached as a router.
	RoleRouter

	// RoleLeader - attached as the partition leader.
	RoleLeader
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDisabled:
		return "DISABLED"
	case RoleDetached:
		return "DETACHED"
	case RoleChild:
		return "CHILD"
	case RoleRouter:
		return "ROUTER"
	case RoleLeader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// Attached reports whether the role is one of the attached roles.
func (r Role) Attached() bool {
	return r >= RoleChild && r <= RoleLeader
}

// Changes is a bitmask of observable state the native engine changed.
type Changes uint32

const (
	ChangedIPv6Addrs Changes = 1 << iota
	ChangedRole
	ChangedDataset
	ChangedSrpHost
	ChangedSrpServices
	ChangedSrpServer
	ChangedRadio
)

// Has reports whether all of flags are set.
func (c Changes) Has(flags Changes) bool {
	return c&flags == flags
}

// String lists the changed items.
func (c Changes) String() string {
	names := []string{"IPV6_ADDRS", "ROLE", "DATASET", "SRP_HOST", "SRP_SERVICES", "SRP_SERVER", "RADIO"}
	var parts []string
	for i, n := range names {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// SrpState is the registration state of the SRP host or of one service.
type SrpState uint8

const (
	// SrpUninitialized - nothing has been configured or registered yet.
	SrpUninitialized SrpState = iota

	// SrpRegistering - the first registration is in flight.
	SrpRegistering

	// SrpRegistered - the registrar accepted the registration.
	SrpRegistered

	// SrpUpdating - a refresh or change is in flight.
	SrpUpdating

	// SrpRemoving - a removal is in flight.
	SrpRemoving

	// SrpRemoved - the registrar confirmed removal.
	SrpRemoved

	// SrpError - the last attempt failed; the engine retries with backoff.
	SrpError
)

// String returns the state name.
func (s SrpState) String() string {
	switch s {
	case SrpUninitialized:
		return "UNINITIALIZED"
	case SrpRegistering:
		return "REGISTERING"
	case SrpRegistered:
		return "REGISTERED"
	case SrpUpdating:
		return "UPDATING"
	case SrpRemoving:
		return "REMOVING"
	case SrpRemoved:
		return "REMOVED"
	case SrpError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Idle reports whether no registration activity is pending or held.
func (s SrpState) Idle() bool {
	return s == SrpUninitialized || s == SrpRemoved
}

// SrpConf is the SRP client host configuration.
type SrpConf struct {
	// HostName is the DNS-SD host label, without domain.
	HostName string

	// LeaseSecs is the requested lease. Zero selects the engine default.
	LeaseSecs uint32

	// KeyLeaseSecs is the requested key lease. Zero selects the engine default.
	KeyLeaseSecs uint32
}

// String formats the configuration.
func (c SrpConf) String() string {
	return fmt.Sprintf("host=%q lease=%ds key-lease=%ds", c.HostName, c.LeaseSecs, c.KeyLeaseSecs)
}

// TxtEntry is one DNS-SD TXT attribute.
type TxtEntry struct {
	Key   string
	Value []byte
}

// SrpService is a service record to register.
type SrpService struct {
	// Name is the service type, such as "_foo._tcp".
	Name string

	// InstanceName is the service instance label.
	InstanceName string

	// SubtypeLabels are optional subtype labels.
	SubtypeLabels []string

	// TxtEntries are the TXT attributes.
	TxtEntries []TxtEntry

	Port     uint16
	Priority uint8
	Weight   uint8

	// LeaseSecs and KeyLeaseSecs override the host lease when non-zero.
	LeaseSecs    uint32
	KeyLeaseSecs uint32
}

// String formats the record.
func (s SrpService) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s port=%d prio=%d weight=%d", s.InstanceName, s.Name, s.Port, s.Priority, s.Weight)
	for _, st := range s.SubtypeLabels {
		fmt.Fprintf(&b, " subtype=%s", st)
	}
	for _, t := range s.TxtEntries {
		fmt.Fprintf(&b, " %s=%q", t.Key, t.Value)
	}
	return b.String()
}

// Clone returns a deep copy.
func (s SrpService) Clone() SrpService {
	c := s
	c.SubtypeLabels = append([]string(nil), s.SubtypeLabels...)
	c.TxtEntries = make([]TxtEntry, len(s.TxtEntries))
	for i, t := range s.TxtEntries {
		c.TxtEntries[i] = TxtEntry{Key: t.Key, Value: append([]byte(nil), t.Value...)}
	}
	return c
}

// SrpServiceID identifies an added service. It is the arena slot index
// holding the record.
type SrpServiceID uint32

// SrpServiceInfo is an immutable view of a registered service.
type SrpServiceInfo struct {
	ID      SrpServiceID
	Service SrpService
	State   SrpState
}
