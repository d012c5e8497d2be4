package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// Domain is the mDNS browse domain.
const Domain = "local."

// ErrNoServiceType is returned by Watch when no service type is given.
var ErrNoServiceType = errors.New("discovery: service type is required")

// Config contains mDNS browse options.
type Config struct {
	// Interface restricts browsing to one network interface. Empty browses
	// on all of them.
	Interface string
}

// Logger is the logging interface used by the provider.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// MDNSProvider implements boxsync.DiscoveryProvider.
type MDNSProvider struct {
	cfg    Config
	logger Logger
	browse browseFunc

	active sync.WaitGroup
}

var _ boxsync.DiscoveryProvider = (*MDNSProvider)(nil)

// NewMDNSProvider creates a provider.
func NewMDNSProvider(cfg Config) *MDNSProvider {
	return &MDNSProvider{
		cfg:    cfg,
		logger: noopLogger{},
		browse: zeroconfBrowse,
	}
}

// SetLogger sets the logger for the provider.
func (p *MDNSProvider) SetLogger(logger Logger) {
	p.logger = logger
}

// Watch browses for serviceType until ctx is cancelled. It returns
// immediately; onEvent is called from a single goroutine.
//
// Several instances of one host (one per interface) collapse into one box
// whose addresses are the union. The box is removed when its last instance
// goes away.
func (p *MDNSProvider) Watch(ctx context.Context, serviceType string, onEvent func(boxsync.DiscoveryEvent)) error {
	if serviceType == "" {
		return ErrNoServiceType
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	opts := p.browserOptions()

	p.active.Add(2)

	go func() {
		defer p.active.Done()
		if err := p.browse(ctx, serviceType, Domain, entries, removed, opts...); err != nil && ctx.Err() == nil {
			p.logger.Warn("mdns browse stopped", "service", serviceType, "error", err)
		}
	}()

	go func() {
		defer p.active.Done()
		p.consume(ctx, entries, removed, onEvent)
	}()

	p.logger.Debug("mdns browse started", "service", serviceType, "domain", Domain)
	return nil
}

// Wait blocks until every Watch started so far has stopped.
func (p *MDNSProvider) Wait() {
	p.active.Wait()
}

func (p *MDNSProvider) consume(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, onEvent func(boxsync.DiscoveryEvent)) {
	seen := newTracker()

	for {
		select {
		case <-ctx.Done():
			return

		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			box, ok := EntryToBox(entry)
			if !ok {
				p.logger.Debug("ignoring mdns entry without host", "instance", entry.Instance)
				continue
			}
			if merged, changed := seen.add(box); changed {
				onEvent(boxsync.DiscoveryEvent{Action: boxsync.DiscoveryAdded, Box: merged})
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			box, ok := EntryToBox(entry)
			if !ok {
				continue
			}
			if last, gone := seen.remove(box); gone {
				onEvent(boxsync.DiscoveryEvent{Action: boxsync.DiscoveryRemoved, Box: last})
			}
		}

		if entries == nil && removed == nil {
			return
		}
	}
}

func (p *MDNSProvider) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if p.cfg.Interface != "" {
		iface, err := net.InterfaceByName(p.cfg.Interface)
		if err != nil {
			p.logger.Warn("mdns interface not found, browsing all", "interface", p.cfg.Interface, "error", err)
		} else {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// EntryToBox converts an mDNS entry. The name is the advertised host without
// the trailing dot, or the instance name when no host was advertised.
func EntryToBox(entry *zeroconf.ServiceEntry) (boxsync.Box, bool) {
	if entry == nil {
		return boxsync.Box{}, false
	}
	name := strings.TrimSuffix(entry.HostName, ".")
	if name == "" {
		name = entry.Instance
	}
	if name == "" {
		return boxsync.Box{}, false
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return boxsync.Box{Name: name, Port: entry.Port, Addresses: addrs}, true
}

// tracker aggregates per-interface announcements by box name.
type tracker struct {
	boxes map[string]boxsync.Box
}

func newTracker() *tracker {
	return &tracker{boxes: make(map[string]boxsync.Box)}
}

// add merges b and reports whether anything observable changed.
func (t *tracker) add(b boxsync.Box) (boxsync.Box, bool) {
	existing, ok := t.boxes[b.Name]
	if !ok {
		t.boxes[b.Name] = b
		return b, true
	}

	merged := existing
	merged.Addresses = mergeAddresses(existing.Addresses, b.Addresses)
	if b.Port != 0 {
		merged.Port = b.Port
	}
	changed := merged.Port != existing.Port || len(merged.Addresses) != len(existing.Addresses)
	t.boxes[b.Name] = merged
	return merged, changed
}

// remove drops the addresses of b and reports whether the box is gone.
func (t *tracker) remove(b boxsync.Box) (boxsync.Box, bool) {
	existing, ok := t.boxes[b.Name]
	if !ok {
		return boxsync.Box{}, false
	}

	left := removeAddresses(existing.Addresses, b.Addresses)
	if len(left) > 0 && len(b.Addresses) > 0 {
		existing.Addresses = left
		t.boxes[b.Name] = existing
		return existing, false
	}
	delete(t.boxes, b.Name)
	return existing, true
}

func mergeAddresses(have, add []string) []string {
	out := append([]string(nil), have...)
	for _, a := range add {
		found := false
		for _, h := range out {
			if h == a {
				found = true
				break
			}
		}
		if !found {
			out = append(out, a)
		}
	}
	return out
}

func removeAddresses(have, drop []string) []string {
	gone := make(map[string]bool, len(drop))
	for _, d := range drop {
		gone[d] = true
	}
	out := make([]string, 0, len(have))
	for _, h := range have {
		if !gone[h] {
			out = append(out, h)
		}
	}
	return out
}
