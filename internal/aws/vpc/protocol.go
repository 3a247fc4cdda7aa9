package vpc

import "strings"

// NormalizeProtocol maps the protocol of a security group rule, numeric or
// named, onto the display name used in logs and rule listings.
func NormalizeProtocol(protocol string) string {
	switch strings.ToLower(protocol) {
	case "-1", "all":
		return "All"
	case "6", "tcp":
		return "TCP"
	case "17", "udp":
		return "UDP"
	case "1", "icmp":
		return "ICMP"
	default:
		return protocol
	}
}
