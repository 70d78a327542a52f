package intel

import "fmt"

// Decision verdicts.
const (
	VerdictAllow = "allow"
	VerdictFlag  = "flag"
	VerdictDeny  = "deny"
)

// Risk thresholds.
const (
	DenyThreshold = 0.6
	FlagThreshold = 0.3
)

// VTSignal is the VirusTotal reputation of an address.
type VTSignal struct {
	Malicious int    `json:"malicious"`
	Harmless  int    `json:"harmless"`
	Error     string `json:"error,omitempty"`
}

// ShodanSignal is the exposure of an address as seen by Shodan.
type ShodanSignal struct {
	OpenPorts []int  `json:"open_ports"`
	VulnCount int    `json:"vuln_count"`
	Error     string `json:"error,omitempty"`
}

// AbuseSignal is the abuse reputation of an address.
type AbuseSignal struct {
	Confidence int    `json:"abuse_confidence"`
	Reports    int    `json:"total_reports"`
	Error      string `json:"error,omitempty"`
}

// Signals bundles the per-provider lookups for one address.
type Signals struct {
	VirusTotal VTSignal     `json:"virustotal"`
	Shodan     ShodanSignal `json:"shodan"`
	AbuseIPDB  AbuseSignal  `json:"abuseipdb"`
}

// Decision is the outcome of scoring an address.
type Decision struct {
	IP       string   `json:"ip"`
	Risk     float64  `json:"risk_score"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons"`
	Signals  Signals  `json:"signals"`
	Cached   bool     `json:"cached"`
}

// Decide combines provider signals into a weighted risk score and verdict.
// Providers that failed contribute zero.
func Decide(sig Signals) Decision {
	var reasons []string

	vt := 0.0
	if sig.VirusTotal.Error == "" {
		total := sig.VirusTotal.Malicious + sig.VirusTotal.Harmless
		vt = float64(sig.VirusTotal.Malicious) / float64(max(1, total))
		if sig.VirusTotal.Malicious > 0 {
			reasons = append(reasons, fmt.Sprintf("virustotal: %d engines flag this address", sig.VirusTotal.Malicious))
		}
	}

	sh := 0.0
	if sig.Shodan.Error == "" {
		for _, p := range sig.Shodan.OpenPorts {
			if p == 445 {
				sh += 0.5
				reasons = append(reasons, "shodan: SMB port 445 exposed")
				break
			}
		}
		if sig.Shodan.VulnCount > 0 {
			sh += min(0.5, 0.1*float64(sig.Shodan.VulnCount))
			reasons = append(reasons, fmt.Sprintf("shodan: %d known vulnerabilities", sig.Shodan.VulnCount))
		}
	}

	ab := 0.0
	if sig.AbuseIPDB.Error == "" {
		ab = float64(min(max(sig.AbuseIPDB.Confidence, 0), 100)) / 100
		if sig.AbuseIPDB.Confidence > 0 {
			reasons = append(reasons, fmt.Sprintf("abuseipdb: confidence %d%% across %d reports",
				sig.AbuseIPDB.Confidence, sig.AbuseIPDB.Reports))
		}
	}

	risk := min(1, 0.5*vt+0.3*sh+0.2*ab)

	verdict := VerdictAllow
	switch {
	case risk >= DenyThreshold:
		verdict = VerdictDeny
	case risk >= FlagThreshold:
		verdict = VerdictFlag
	}

	if reasons == nil {
		reasons = []string{}
	}
	return Decision{
		Risk:     risk,
		Decision: verdict,
		Reasons:  reasons,
		Signals:  sig,
	}
}
