package util

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeIP parses an IPv4 or IPv6 address and returns its canonical form.
func NormalizeIP(s string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %q", s)
	}
	return ip.String(), nil
}

// NormalizeMAC converts a MAC address in any of the usual notations
// (aa-bb-cc-dd-ee-ff, aabb.ccdd.eeff, AA:BB:CC:DD:EE:FF) to lower-case
// colon-separated form. Single-digit octets (0:1b:...) are zero padded.
func NormalizeMAC(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{":", "-"} {
		if parts := strings.Split(s, sep); len(parts) == 6 {
			for i, p := range parts {
				if len(p) == 1 {
					parts[i] = "0" + p
				}
			}
			s = strings.Join(parts, ":")
			break
		}
	}
	if strings.Count(s, ".") == 2 && len(s) == 14 {
		s = strings.ReplaceAll(s, ".", "")
	}
	if len(s) == 12 && !strings.ContainsAny(s, ":-") {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		s = b.String()
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("invalid MAC address: %q", s)
	}
	return hw.String(), nil
}
