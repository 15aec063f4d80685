package ipreputation

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pathlearn/authguard/pkg/types"
)

// IntelligenceProvider produces the classification for one IP. The
// local heuristic provider is the reference implementation; a real
// GeoIP/IP-intelligence service can be substituted without touching
// the orchestrator.
type IntelligenceProvider interface {
	Lookup(ctx context.Context, ip, userAgent string) (*types.IPInfo, error)
}

type ipRange struct {
	start uint32
	end   uint32
}

func mustRange(startIP, endIP string) ipRange {
	start, err := ipToUint32(startIP)
	if err != nil {
		panic(err)
	}
	end, err := ipToUint32(endIP)
	if err != nil {
		panic(err)
	}
	return ipRange{start: start, end: end}
}

func (r ipRange) contains(v uint32) bool {
	return v >= r.start && v <= r.end
}

// Ranges with a documented abuse history. Membership alone is a hard
// signal; the list is short and illustrative, not an intelligence feed.
var torRanges = []ipRange{
	mustRange("185.220.100.0", "185.220.103.255"), // Tor exit cluster
}

var maliciousRanges = []ipRange{
	mustRange("185.220.100.0", "185.220.103.255"),
	mustRange("5.188.206.0", "5.188.211.255"),
	mustRange("194.165.16.0", "194.165.17.255"),
}

// Popular hosting/cloud blocks. Traffic from them is rarely a person
// on a couch; treated as a VPN/proxy-grade signal.
var hostingRanges = []ipRange{
	mustRange("104.131.0.0", "104.131.255.255"), // DigitalOcean
	mustRange("139.59.0.0", "139.59.255.255"),   // DigitalOcean
	mustRange("178.62.0.0", "178.62.255.255"),   // DigitalOcean
	mustRange("45.32.0.0", "45.32.255.255"),     // Vultr
	mustRange("136.243.0.0", "136.243.255.255"), // Hetzner
	mustRange("51.38.0.0", "51.38.255.255"),     // OVH
}

// First octets commonly assigned to hyperscaler clouds.
var cloudFirstOctets = map[int]struct{}{
	3: {}, 13: {}, 18: {}, 34: {}, 35: {}, 52: {}, 54: {},
}

var vpnIndicators = []string{"vpn", "proxy", "tunnel", "anonymizer", "tor"}

// HeuristicProvider classifies IPs with purely local arithmetic. The
// geo fields are coarse octet bucketing and explicitly not
// authoritative.
type HeuristicProvider struct {
	logger *logrus.Logger
}

func NewHeuristicProvider(logger *logrus.Logger) *HeuristicProvider {
	return &HeuristicProvider{logger: logger}
}

func (p *HeuristicProvider) Lookup(_ context.Context, ip, userAgent string) (*types.IPInfo, error) {
	v, err := ipToUint32(ip)
	if err != nil {
		return nil, err
	}

	info := &types.IPInfo{
		IP:          ip,
		ThreatLevel: types.ThreatLevelLow,
		Reputation:  80,
	}

	firstOctet := int(v >> 24)
	private := isPrivate(v)

	switch {
	case inAnyRange(maliciousRanges, v):
		info.ThreatLevel = types.ThreatLevelHigh
		info.Reputation -= 50
		info.Tor = inAnyRange(torRanges, v)
	case private:
		info.ThreatLevel = types.ThreatLevelMedium
	}

	if private {
		info.Reputation -= 20
	}
	if _, ok := cloudFirstOctets[firstOctet]; ok {
		info.Reputation -= 10
		info.ISP = "cloud"
	}

	if hasVPNIndicator(userAgent) || inAnyRange(hostingRanges, v) {
		info.VPN = true
		info.Proxy = inAnyRange(hostingRanges, v)
		info.Reputation -= 20
		if info.ThreatLevel == types.ThreatLevelLow {
			info.ThreatLevel = types.ThreatLevelMedium
		}
		if info.ISP == "" {
			info.ISP = "hosting"
		}
	}

	if info.Reputation < 0 {
		info.Reputation = 0
	}

	info.Country = countryBucket(firstOctet, private)
	return info, nil
}

func hasVPNIndicator(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range vpnIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func inAnyRange(ranges []ipRange, v uint32) bool {
	for _, r := range ranges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

func isPrivate(v uint32) bool {
	first := v >> 24
	second := (v >> 16) & 0xff
	switch {
	case first == 10, first == 127:
		return true
	case first == 172 && second >= 16 && second <= 31:
		return true
	case first == 192 && second == 168:
		return true
	}
	return false
}

// countryBucket maps the first octet onto a coarse region label.
// Best-effort placeholder until a real GeoIP provider is plugged in.
func countryBucket(firstOctet int, private bool) string {
	switch {
	case private:
		return "LOCAL"
	case firstOctet < 64:
		return "US"
	case firstOctet < 128:
		return "EU"
	case firstOctet < 192:
		return "APAC"
	default:
		return "OTHER"
	}
}

func ipToUint32(ip string) (uint32, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return 0, fmt.Errorf("malformed IP address: %q", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", ip)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}

// BreakerProvider wraps an external provider in a circuit breaker so
// a failing intelligence service cannot stall the pipeline.
type BreakerProvider struct {
	inner   IntelligenceProvider
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerProvider(inner IntelligenceProvider, logger *logrus.Logger) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        "ip_intelligence",
		MaxRequests: 5,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("ip intelligence breaker state changed")
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *BreakerProvider) Lookup(ctx context.Context, ip, userAgent string) (*types.IPInfo, error) {
	v, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Lookup(ctx, ip, userAgent)
	})
	if err != nil {
		return nil, fmt.Errorf("breaker (%s): %w", p.breaker.Name(), err)
	}
	info, ok := v.(*types.IPInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected provider result type")
	}
	return info, nil
}
