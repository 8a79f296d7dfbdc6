package modules

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Scanner runs nmap scans bound to the hop's source address and
// interface, in randomized target order with 0.5-3.0s jitter between
// targets, grounded on original_source's net_scanner.py.
type Scanner struct{}

func NewScanner() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "net_scanner" }

func (s *Scanner) Run(ctx context.Context, cap *Capability, targets []string) Report {
	intensity := "medium"
	portList := "22,80,443,445,3389,8080,8443"
	if modCfg, ok := cap.Config.Modules[s.Name()]; ok {
		if v, ok := modCfg.Extra["intensity"].(string); ok {
			intensity = v
		}
		if v, ok := modCfg.Extra["port_list"].(string); ok {
			portList = v
		}
	}

	shuffled := shuffleCopy(targets)
	scanType := pickScanType(intensity)
	var details []map[string]any

	for i, target := range shuffled {
		if cap.DryRun {
			details = append(details, map[string]any{"target": target, "scan": scanType, "status": "dry-run"})
			continue
		}

		result := s.runNmap(ctx, cap, target, scanType, portList)
		details = append(details, result)

		if i != len(shuffled)-1 {
			time.Sleep(randDuration(0.5, 3.0))
		}
	}

	return Report{
		Status:  StatusComplete,
		Summary: fmt.Sprintf("%s scan of %d targets", scanType, len(shuffled)),
		Details: details,
	}
}

func pickScanType(intensity string) string {
	switch intensity {
	case "low":
		return "syn"
	case "high":
		return choice([]string{"syn", "service", "aggressive", "arp"})
	default:
		return choice([]string{"syn", "service", "os"})
	}
}

func (s *Scanner) runNmap(ctx context.Context, cap *Capability, target, scanType, portList string) map[string]any {
	argv := []string{"nmap", "-S", cap.SourceIP, "-e", cap.Interface}
	switch scanType {
	case "syn":
		argv = append(argv, "-p", portList, "-sS")
	case "service":
		argv = append(argv, "-p", portList, "-sS", "-sV")
	case "os":
		argv = append(argv, "-p", portList, "-sS", "-sV", "-O")
	case "aggressive":
		argv = append(argv, "-p", portList, "-A")
	case "arp":
		argv = []string{"nmap", "-S", cap.SourceIP, "-e", cap.Interface, "-sn", "-PR"}
	}
	argv = append(argv, target)

	res, err := cap.Executor.Run(ctx, 120*time.Second, false, argv...)
	if err != nil {
		return map[string]any{"target": target, "status": "error", "message": err.Error()}
	}

	hostsUp, openPorts := 0, 0
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "Host is up") {
			hostsUp++
		}
		if strings.Contains(line, "/open/") {
			openPorts++
		}
	}

	return map[string]any{
		"target":     target,
		"scan":       scanType,
		"status":     "complete",
		"hosts_up":   hostsUp,
		"open_ports": openPorts,
		"exit_code":  res.ExitCode,
	}
}

func shuffleCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func choice(opts []string) string {
	return opts[rand.Intn(len(opts))]
}

func randDuration(min, max float64) time.Duration {
	return time.Duration(uniform(min, max) * float64(time.Second))
}
