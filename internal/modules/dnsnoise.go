package modules

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/miekg/dns"
)

// badDomains are known-bad test-category domains commonly flagged by
// threat intel feeds, grounded on original_source's dns_noise.py.
var badDomains = []string{
	"malware.testcategory.com",
	"botnet.testcategory.com",
	"phishing.testcategory.com",
	"coinminer.testcategory.com",
	"ransomware.testcategory.com",
	"exploit.testcategory.com",
	"bad-actor.example.com",
	"c2-callback.example.com",
	"exfil-data.example.com",
	"tor-exit-node.example.com",
}

var dgaTLDs = []string{".com", ".net", ".org", ".info", ".xyz", ".top", ".biz"}

const dgaAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type dnsQuery struct {
	name     string
	qtype    uint16
	category string
}

// DNSNoise generates a mixed set of known-bad, DGA-patterned, and
// encoded-TXT-subdomain queries, shuffled and sent with 0.2-1.5s
// jitter between queries.
type DNSNoise struct{}

func NewDNSNoise() *DNSNoise { return &DNSNoise{} }

func (d *DNSNoise) Name() string { return "dns_noise" }

func (d *DNSNoise) Run(ctx context.Context, cap *Capability, targets []string) Report {
	resolver := "10.10.10.2"
	queryCount := 10
	if modCfg, ok := cap.Config.Modules[d.Name()]; ok {
		if v, ok := modCfg.Extra["resolver"].(string); ok {
			resolver = v
		}
		if v, ok := modCfg.Extra["query_count"].(int); ok {
			queryCount = v
		}
	}

	queries := buildQueryList(queryCount)
	var details []map[string]any

	for i, q := range queries {
		if cap.DryRun {
			details = append(details, map[string]any{
				"query": q.name, "type": dns.TypeToString[q.qtype], "category": q.category, "status": "dry-run",
			})
			continue
		}

		details = append(details, sendQuery(resolver, q, cap.SourceIP))

		if i != len(queries)-1 {
			time.Sleep(randDuration(0.2, 1.5))
		}
	}

	return Report{
		Status:  StatusComplete,
		Summary: fmt.Sprintf("sent %d DNS queries", len(queries)),
		Details: details,
	}
}

func buildQueryList(count int) []dnsQuery {
	var queries []dnsQuery

	badCount := count / 3
	if badCount > len(badDomains) {
		badCount = len(badDomains)
	}
	sampled := shuffleCopy(badDomains)[:badCount]
	for _, domain := range sampled {
		queries = append(queries, dnsQuery{domain, dns.TypeA, "known_bad"})
	}

	dgaCount := count / 3
	for i := 0; i < dgaCount; i++ {
		length := 8 + rand.Intn(17)
		label := randomLabel(length)
		tld := dgaTLDs[rand.Intn(len(dgaTLDs))]
		queries = append(queries, dnsQuery{label + tld, dns.TypeA, "dga"})
	}

	txtCount := count - len(queries)
	for i := 0; i < txtCount; i++ {
		payload := randomLabel(16)
		domain := payload + ".beacon.example.com"
		queries = append(queries, dnsQuery{domain, dns.TypeTXT, "c2_txt"})
	}

	rand.Shuffle(len(queries), func(i, j int) { queries[i], queries[j] = queries[j], queries[i] })
	return queries
}

func randomLabel(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = dgaAlphabet[rand.Intn(len(dgaAlphabet))]
	}
	return string(b)
}

func sendQuery(resolver string, q dnsQuery, sourceIP string) map[string]any {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(q.name), q.qtype)

	client := new(dns.Client)
	client.Timeout = 5 * time.Second
	if ip := net.ParseIP(sourceIP); ip != nil {
		client.Dialer = &net.Dialer{LocalAddr: &net.UDPAddr{IP: ip}}
	}

	resp, _, err := client.Exchange(msg, resolver+":53")
	if err != nil {
		return map[string]any{"query": q.name, "type": dns.TypeToString[q.qtype], "category": q.category, "status": "error", "message": err.Error()}
	}

	return map[string]any{
		"query":    q.name,
		"type":     dns.TypeToString[q.qtype],
		"category": q.category,
		"rcode":    dns.RcodeToString[resp.Rcode],
		"answers":  len(resp.Answer),
		"status":   "complete",
	}
}
