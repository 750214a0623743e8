package relay

import (
	"net"
	"strconv"
	"time"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
)

// DefaultProbeTimeout bounds one SOCKS reachability check.
const DefaultProbeTimeout = 5 * time.Second

// ProbeSOCKS checks whether a SOCKS daemon is accepting connections at
// host:port within timeout. It opens one TCP connection and closes it; the
// result is not cached, so every caller pays for a fresh check.
func ProbeSOCKS(host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		logger.DebugCF("probe", "SOCKS proxy not reachable", map[string]any{
			"addr":  addr,
			"error": err.Error(),
		})
		return false
	}
	conn.Close()
	return true
}
