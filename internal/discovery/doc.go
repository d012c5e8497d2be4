// Package discovery finds boxes on the local network over mDNS/DNS-SD.
//
// MDNSProvider implements boxsync.DiscoveryProvider on top of
// github.com/enbility/zeroconf/v3. Each advertised instance becomes a
// boxsync.Box named after its advertised host, with the IPv4 addresses
// listed before the IPv6 ones.
package discovery
