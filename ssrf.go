package websnap

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// SSRFValidator classifies URLs as safe or unsafe for server-side
// navigation. Validation runs twice per request: a cheap static pass at
// admission, and a DNS-resolving pass immediately before the engine
// navigates, because DNS answers are not stable between the two points
// in time.
type SSRFValidator struct {
	// lookupIP resolves A and AAAA records. Tests substitute a stub;
	// production uses the system resolver.
	lookupIP func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewSSRFValidator creates a validator backed by the system resolver.
func NewSSRFValidator() *SSRFValidator {
	return &SSRFValidator{lookupIP: net.DefaultResolver.LookupIPAddr}
}

// blockedHostnames are rejected by exact match.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
	"kubernetes.default":       true,
	"kubernetes.default.svc":   true,
	"host.docker.internal":     true,
	"gateway.docker.internal":  true,
}

// blockedHostSuffixes are rejected by suffix match.
var blockedHostSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".cluster",
	".cluster.local",
	".svc",
}

// blockedPorts are common internal-service ports user content must not
// reach through the renderer.
var blockedPorts = map[int]string{
	22:    "ssh",
	25:    "smtp",
	445:   "smb",
	1433:  "mssql",
	2181:  "zookeeper",
	2379:  "etcd",
	3306:  "mysql",
	5432:  "postgres",
	5672:  "rabbitmq",
	6379:  "redis",
	8200:  "vault",
	8500:  "consul",
	9000:  "minio",
	9092:  "kafka",
	9200:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
}

// privateRanges is parsed once at init time to avoid repeated
// allocations on every check.
var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		// IPv4 private and special-use ranges
		"0.0.0.0/8",       // "this" network (RFC 1122)
		"10.0.0.0/8",      // private (RFC 1918)
		"100.64.0.0/10",   // carrier-grade NAT (RFC 6598)
		"127.0.0.0/8",     // loopback (RFC 1122)
		"169.254.0.0/16",  // link-local, incl. cloud metadata (RFC 3927)
		"172.16.0.0/12",   // private (RFC 1918)
		"192.0.0.0/24",    // IETF protocol assignments (RFC 6890)
		"192.0.2.0/24",    // documentation TEST-NET-1 (RFC 5737)
		"192.168.0.0/16",  // private (RFC 1918)
		"198.18.0.0/15",   // benchmarking (RFC 2544)
		"198.51.100.0/24", // documentation TEST-NET-2 (RFC 5737)
		"203.0.113.0/24",  // documentation TEST-NET-3 (RFC 5737)
		"224.0.0.0/4",     // multicast (RFC 5771)
		"240.0.0.0/4",     // reserved (RFC 1112)
		// IPv6 private and special-use ranges
		"::/128",      // unspecified
		"::1/128",     // loopback
		"64:ff9b::/96", // NAT64 (can map to private v4)
		"fc00::/7",    // unique local address
		"fe80::/10",   // link-local
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("websnap: invalid blocklist cidr " + cidr)
		}
		privateRanges = append(privateRanges, n)
	}
}

// isBlockedIP reports whether ip falls in a private or special-use range.
func isBlockedIP(ip net.IP) bool {
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname reports whether a lowercase hostname matches the
// hostname blocklist.
func isBlockedHostname(host string) bool {
	if blockedHostnames[host] {
		return true
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// ValidateURL performs the static (non-resolving) safety check: scheme,
// hostname blocklist, literal-IP ranges, and internal-service ports.
func (v *SSRFValidator) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q not allowed", ErrSSRFBlocked, u.Scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("%w: hostname %q", ErrSSRFBlocked, host)
	}

	// Literal IP addresses are checked without DNS. Brackets around
	// IPv6 literals are already stripped by Hostname().
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return fmt.Errorf("%w: address %s", ErrSSRFBlocked, ip)
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrInvalidURL, portStr)
		}
		if svc, blocked := blockedPorts[port]; blocked {
			return fmt.Errorf("%w: port %d (%s)", ErrSSRFBlocked, port, svc)
		}
	}

	return nil
}

// ValidateURLWithDNS performs the static check, then resolves the
// hostname and re-checks every answer against the IP blocklist. This
// closes the rebinding gap where a hostname is publicly routable at
// admission time but points at an internal address by navigation time.
// Resolution failure fails closed.
func (v *SSRFValidator) ValidateURLWithDNS(ctx context.Context, raw string) error {
	if err := v.ValidateURL(raw); err != nil {
		return err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))

	// Literal IPs were already range-checked statically.
	if net.ParseIP(host) != nil {
		return nil
	}

	addrs, err := v.lookupIP(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: dns lookup for %q failed: %v", ErrSSRFBlocked, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %q resolved to no addresses", ErrSSRFBlocked, host)
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return fmt.Errorf("%w: %q resolves to %s", ErrSSRFBlocked, host, addr.IP)
		}
	}
	return nil
}
