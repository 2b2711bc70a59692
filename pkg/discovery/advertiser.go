package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising a service. An existing advertisement
	// with the same key is replaced.
	Advertise(ctx context.Context, svc *Service) error

	// Update updates the TXT records of an advertised service.
	Update(key string, svc *Service) error

	// Stop stops advertising the service with the given key.
	Stop(key string) error

	// StopAll stops all advertisements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}

// Proxy keeps an Advertiser in step with a registrar's table of hosts.
type Proxy struct {
	mu sync.Mutex

	advertiser Advertiser
	logger     *slog.Logger
	closed     bool

	// Advertised services by host, then by key.
	hosts map[string]map[string]*Service

	onChange func(host string, advertised int)
}

// NewProxy creates an advertising proxy. logger may be nil.
func NewProxy(advertiser Advertiser, logger *slog.Logger) *Proxy {
	return &Proxy{
		advertiser: advertiser,
		logger:     logger,
		hosts:      make(map[string]map[string]*Service),
	}
}

// OnChange sets a callback run after a host's advertised set changed.
func (p *Proxy) OnChange(fn func(host string, advertised int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Publish makes services the advertised set of host. An empty set withdraws
// the host: a host without services is not published. Services that fail
// validation are skipped and reported in the returned error; the others are
// still published.
func (p *Proxy) Publish(ctx context.Context, host string, services []*Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	want := make(map[string]*Service, len(services))
	var firstErr error
	for _, svc := range services {
		if err := svc.Validate(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s: %w", svc.Key(), err)
			}
			continue
		}
		want[svc.Key()] = svc
	}

	have := p.hosts[host]
	for key := range have {
		if _, ok := want[key]; ok {
			continue
		}
		if err := p.advertiser.Stop(key); err != nil {
			p.debugLog("withdraw failed", "service", key, "error", err)
		}
		delete(have, key)
	}

	for _, key := range slices.Sorted(maps.Keys(want)) {
		svc := want[key]
		old, ok := have[key]
		switch {
		case !ok:
			if err := p.advertiser.Advertise(ctx, svc); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("advertise %s: %w", key, err)
				}
				continue
			}
			p.debugLog("service advertised", "host", host, "service", key, "port", svc.Port)
		case sameRecord(old, svc):
			if !old.Txt.Equal(svc.Txt) {
				if err := p.advertiser.Update(key, svc); err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("update %s: %w", key, err)
					}
					continue
				}
			}
		default:
			// Port or subtypes changed: re-register.
			if err := p.advertiser.Advertise(ctx, svc); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("advertise %s: %w", key, err)
				}
				continue
			}
		}
		if have == nil {
			have = make(map[string]*Service)
			p.hosts[host] = have
		}
		have[key] = svc
	}

	if len(have) == 0 {
		delete(p.hosts, host)
	}
	if p.onChange != nil {
		p.onChange(host, len(have))
	}
	return firstErr
}

// Withdraw stops advertising every service of host.
func (p *Proxy) Withdraw(host string) {
	_ = p.Publish(context.Background(), host, nil)
}

// Advertised returns the advertised service keys of host, sorted.
func (p *Proxy) Advertised(host string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Sorted(maps.Keys(p.hosts[host]))
}

// Close withdraws everything. Later calls to Publish fail with ErrClosed.
func (p *Proxy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.advertiser.StopAll()
	clear(p.hosts)
}

func (p *Proxy) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func sameRecord(a, b *Service) bool {
	return a.Port == b.Port && a.Host == b.Host && slices.Equal(a.Subtypes, b.Subtypes) &&
		slices.Equal(a.Addresses, b.Addresses)
}
