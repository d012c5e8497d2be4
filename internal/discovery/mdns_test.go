package discovery

import (
	"context"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

func entry(instance, host string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{HostName: host, Port: port}
	e.Instance = instance
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestEntryToBox(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  boxsync.Box
		ok    bool
	}{
		{
			name:  "host name with trailing dot",
			entry: entry("Hub", "hub.local.", 443, "fe80::1", "192.168.1.20"),
			want:  boxsync.Box{Name: "hub.local", Port: 443, Addresses: []string{"192.168.1.20", "fe80::1"}},
			ok:    true,
		},
		{
			name:  "instance fallback",
			entry: entry("Hub", "", 8443, "10.0.0.2"),
			want:  boxsync.Box{Name: "Hub", Port: 8443, Addresses: []string{"10.0.0.2"}},
			ok:    true,
		},
		{
			name:  "no addresses",
			entry: entry("", "hub.local.", 443),
			want:  boxsync.Box{Name: "hub.local", Port: 443, Addresses: []string{}},
			ok:    true,
		},
		{name: "nameless", entry: entry("", "", 443, "10.0.0.2"), ok: false},
		{name: "nil", entry: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EntryToBox(tt.entry)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EntryToBox() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTracker(t *testing.T) {
	tr := newTracker()

	if _, changed := tr.add(boxsync.Box{Name: "hub", Port: 443, Addresses: []string{"10.0.0.2"}}); !changed {
		t.Error("first announcement should be a change")
	}
	if _, changed := tr.add(boxsync.Box{Name: "hub", Port: 443, Addresses: []string{"10.0.0.2"}}); changed {
		t.Error("repeat announcement should not be a change")
	}
	merged, changed := tr.add(boxsync.Box{Name: "hub", Port: 443, Addresses: []string{"fe80::1"}})
	if !changed || len(merged.Addresses) != 2 {
		t.Errorf("second interface: changed=%v addrs=%v", changed, merged.Addresses)
	}

	if _, gone := tr.remove(boxsync.Box{Name: "hub", Addresses: []string{"10.0.0.2"}}); gone {
		t.Error("box removed while an address remains")
	}
	last, gone := tr.remove(boxsync.Box{Name: "hub", Addresses: []string{"fe80::1"}})
	if !gone || last.Name != "hub" {
		t.Errorf("remove last address: gone=%v box=%+v", gone, last)
	}
	if _, gone := tr.remove(boxsync.Box{Name: "unknown"}); gone {
		t.Error("removing an unknown box reported gone")
	}
}

func TestMDNSProvider_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewMDNSProvider(Config{})
	var gotService, gotDomain string
	p.browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, _ ...zeroconf.ClientOption) error {
		gotService, gotDomain = service, domain
		entries <- entry("Hub", "hub.local.", 443, "10.0.0.2")
		entries <- entry("Hub", "hub.local.", 443, "10.0.0.2")
		removed <- entry("Hub", "hub.local.", 443, "10.0.0.2")
		<-ctx.Done()
		return ctx.Err()
	}

	var (
		mu     sync.Mutex
		events []boxsync.DiscoveryEvent
	)
	done := make(chan struct{})
	err := p.Watch(ctx, "_https._tcp", func(ev boxsync.DiscoveryEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		if len(events) == 2 {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for discovery events")
	}
	cancel()
	p.Wait()

	if gotService != "_https._tcp" || gotDomain != Domain {
		t.Errorf("browse(%q, %q)", gotService, gotDomain)
	}
	mu.Lock()
	defer mu.Unlock()
	if events[0].Action != boxsync.DiscoveryAdded || events[0].Box.Name != "hub.local" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Action != boxsync.DiscoveryRemoved || events[1].Box.Name != "hub.local" {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestMDNSProvider_Watch_NoServiceType(t *testing.T) {
	p := NewMDNSProvider(Config{})
	if err := p.Watch(context.Background(), "", func(boxsync.DiscoveryEvent) {}); err != ErrNoServiceType {
		t.Errorf("Watch() error = %v, want ErrNoServiceType", err)
	}
}
