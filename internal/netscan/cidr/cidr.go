// Package cidr expands a dotted-quad/prefix range into the ascending list
// of usable host addresses (spec §4.2), generalizing the teacher's
// parseIPRange/inc pair in pkg/discovery/discovery.go to cover /31 and /32
// and to validate the prefix up front instead of silently misbehaving.
package cidr

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Expand parses cidrStr and returns the usable host addresses in ascending
// order. For prefixes <= 30 the network and broadcast addresses are
// excluded; for /31 and /32 every address in the range is usable.
func Expand(cidrStr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return nil, fmt.Errorf("cidr: invalid range %q: %w", cidrStr, err)
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("cidr: %q is not an IPv4 range", cidrStr)
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("cidr: %q is not an IPv4 range", cidrStr)
	}

	base := binary.BigEndian.Uint32(ipnet.IP.To4())
	count := uint64(1) << uint(32-ones)

	var addrs []string
	for i := uint64(0); i < count; i++ {
		if ones <= 30 && (i == 0 || i == count-1) {
			continue // network and broadcast
		}
		addrs = append(addrs, uint32ToIP(uint32(base+uint32(i))).String())
	}

	return addrs, nil
}

// Validate checks that cidrStr parses as an IPv4 CIDR and that its prefix
// is not shorter than minPrefix, unless allowLarge bypasses the guard
// (spec §7 safety limit).
func Validate(cidrStr string, minPrefix int, allowLarge bool) error {
	_, ipnet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return fmt.Errorf("cidr: invalid range %q: %w", cidrStr, err)
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return fmt.Errorf("cidr: %q is not an IPv4 range", cidrStr)
	}

	if !allowLarge && ones < minPrefix {
		return fmt.Errorf("cidr: prefix /%d is shorter than the minimum /%d allowed", ones, minPrefix)
	}

	return nil
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
