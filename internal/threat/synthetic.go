package threat

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/QuantumAegis/internal/rng"
)

// archetype is a pre-defined illustrative threat used to pad thin feeds.
type archetype struct {
	title      string
	source     Source
	category   Category
	status     Status
	engines    int
	confidence int
}

var archetypes = []archetype{
	{"Ransomware.Win32.Lockbit Detected", SourceMultipleEngines, CategoryRansomware, StatusBlocked, 24, 98},
	{"Trojan.GenKrypter.BDVQ Detected", SourceBehavioral, CategoryTrojan, StatusQuarantined, 18, 94},
	{"Phishing Campaign: PDF Exploit", SourceDocumentAnalysis, CategoryDocumentThreat, StatusInvestigating, 12, 87},
	{"Cryptominer.Win64.Malxmr.A", SourceSandbox, CategoryCryptominer, StatusBlocked, 21, 96},
	{"Advanced Persistent Threat Activity", SourceThreatIntelligence, CategoryAPT, StatusInvestigating, 8, 89},
	{"Backdoor.Win32.Remote Access", SourceNetworkBehavior, CategoryBackdoor, StatusMitigated, 15, 92},
}

func archetypeSeverity(engines int) Severity {
	switch {
	case engines > 15:
		return SeverityCritical
	case engines > 10:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// pad appends archetypes until out holds padTarget items or the pool runs out.
// Archetype IDs are reserved in seen alongside the record IDs.
func pad(out []Summary, ref time.Time, src rng.Source, seen map[string]struct{}) []Summary {
	need := min(padTarget-len(out), len(archetypes))
	for i := 0; i < need; i++ {
		a := archetypes[i]
		out = append(out, Summary{
			ID:              uniqueID(fmt.Sprintf("sim_%d_%d", ref.UnixMilli(), i), seen),
			Title:           a.title,
			Source:          a.source,
			Category:        a.category,
			Status:          a.status,
			Severity:        archetypeSeverity(a.engines),
			Confidence:      a.confidence,
			Timestamp:       within(ref, time.Hour, src),
			EnginesDetected: a.engines,
			FileSize:        int64(src.IntN(largeFileBytes)),
			FileType:        "PE Executable",
			SHA256:          randomHex(src, 64),
		})
	}
	return out
}

var syntheticTitles = []string{
	"Advanced Malware Detection",
	"Suspicious Email Campaign",
	"Unusual Network Traffic",
	"Potential Data Exfiltration",
	"Unauthorized Access Attempt",
	"Crypto Mining Activity",
	"Phishing Domain Blocked",
	"Lateral Movement Detected",
	"Credential Stuffing Attack",
	"Zero-Day Exploit Attempt",
	"Backdoor Communication",
	"Suspicious File Execution",
	"Anomalous User Behavior",
	"Command & Control Traffic",
	"Privilege Escalation Attempt",
}

var syntheticSources = []Source{
	SourceEmailGateway, SourceNetworkPerimeter, SourceEndpointDetection, SourceWebFilter,
	SourceDNSMonitor, SourceBehavioral, SourceThreatIntelligence, SourceFileScanner,
	SourceNetworkTraffic, SourceUserActivity, SourceCloudSecurity, SourceMobileSecurity,
}

var syntheticCategories = []Category{
	CategoryMalware, CategoryPhishing, CategoryRansomware, CategoryDDoS, CategoryIntrusion,
	CategoryBotnet, CategoryCredentialTheft, CategoryDataExfiltration, CategoryZeroDay, CategorySQLInjection,
}

// synthesize builds 5..8 summaries purely from the vocabularies above.
func synthesize(ref time.Time, src rng.Source) []Summary {
	n := 5 + src.IntN(4)
	out := make([]Summary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Summary{
			ID:         fmt.Sprintf("threat_%d_%d", ref.UnixMilli(), i),
			Title:      rng.Pick(src, syntheticTitles),
			Source:     rng.Pick(src, syntheticSources),
			Category:   rng.Pick(src, syntheticCategories),
			Status:     rng.Pick(src, allStatuses),
			Severity:   syntheticSeverity(src),
			Confidence: confidenceOf(src),
			Timestamp:  within(ref, time.Hour, src),
		})
	}
	return out
}

func syntheticSeverity(src rng.Source) Severity {
	switch {
	case src.Float64() > 0.7:
		return SeverityHigh
	case src.Float64() > 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Fallback returns the fixed two-item list served when classification fails.
func Fallback(ref time.Time) []Summary {
	return []Summary{
		{
			ID:              "fallback_1",
			Title:           "Advanced Malware Detection",
			Source:          SourceBehavioral,
			Category:        CategoryMalware,
			Status:          StatusBlocked,
			Severity:        SeverityHigh,
			Confidence:      94,
			Timestamp:       ref.Add(-10 * time.Minute),
			EnginesDetected: 16,
		},
		{
			ID:              "fallback_2",
			Title:           "Suspicious Network Activity",
			Source:          SourceNetworkMonitor,
			Category:        CategoryIntrusion,
			Status:          StatusInvestigating,
			Severity:        SeverityMedium,
			Confidence:      87,
			Timestamp:       ref.Add(-20 * time.Minute),
			EnginesDetected: 8,
		},
	}
}

// within returns a uniformly chosen instant in (ref-window, ref].
func within(ref time.Time, window time.Duration, src rng.Source) time.Time {
	return ref.Add(-time.Duration(src.Float64() * float64(window))).UTC()
}

func randomHex(src rng.Source, n int) string {
	const digits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(digits[src.IntN(len(digits))])
	}
	return b.String()
}
