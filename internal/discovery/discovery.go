// Package discovery derives a VLAN's /24 subnet from its gateway and
// runs an nmap ARP sweep over it via the Command Executor, never
// treating a timeout or missing binary as fatal to the hop.
package discovery

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/logging"
)

const sweepTimeout = 30 * time.Second

var scanReportRe = regexp.MustCompile(`Nmap scan report for (\S+)`)
var parenIPRe = regexp.MustCompile(`\(([^)]+)\)`)

// GatewayToSubnet derives the /24 network containing gateway.
func GatewayToSubnet(gateway string) (string, error) {
	ip := net.ParseIP(gateway)
	if ip == nil || ip.To4() == nil {
		return "", errors.New("gateway is not a valid IPv4 address")
	}
	_, network, err := net.ParseCIDR(ip.String() + "/24")
	if err != nil {
		return "", err
	}
	return network.String(), nil
}

// Discover runs an ARP sweep of subnet bound to sourceIP on iface and
// returns the live host IPs, excluding sourceIP and every address in
// excluded. It is never fatal: dry-run, timeout, and missing-binary
// all resolve to an empty slice so the hopper falls back to static
// targets.
func Discover(ctx context.Context, exec executor.Executor, subnet, iface, sourceIP string, excluded []string, dryRun bool, logger *logging.Logger) []string {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("discovery")

	excludeSet := map[string]bool{sourceIP: true}
	for _, e := range excluded {
		excludeSet[e] = true
	}

	if dryRun {
		logger.Info("dry run: skipping host discovery", "subnet", subnet, "iface", iface)
		return nil
	}

	argv := []string{"nmap", "-sn", "-PR", "-S", sourceIP, "-e", iface, subnet}
	logger.Info("discovering hosts", "argv", argv)

	res, err := exec.Run(ctx, sweepTimeout, false, argv...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("host discovery timed out")
			return nil
		}
		if isNotFound(err) {
			logger.Error("nmap not found, host discovery unavailable")
			return nil
		}
		logger.Warn("host discovery failed", "error", err)
		return nil
	}

	var hosts []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		m := scanReportRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ip := m[1]
		if pm := parenIPRe.FindStringSubmatch(ip); pm != nil {
			ip = pm[1]
		}
		if !excludeSet[ip] {
			hosts = append(hosts, ip)
		}
	}

	logger.Info("discovery complete", "subnet", subnet, "hosts", len(hosts))
	return hosts
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
