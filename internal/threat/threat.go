// Package threat classifies provider scan records into dashboard threat
// summaries. Classification is a fixed set of threshold and keyword rules;
// when no records are available the package synthesises plausible content
// from closed vocabularies so the feed is never empty.
package threat

import (
	"fmt"
	"strings"
	"time"
)

// Severity is an ordered risk ranking. The zero value is invalid.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is
// case-insensitive.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Status is the lifecycle state shown for a threat.
type Status string

const (
	StatusBlocked       Status = "BLOCKED"
	StatusQuarantined   Status = "QUARANTINED"
	StatusMitigated     Status = "MITIGATED"
	StatusInvestigating Status = "INVESTIGATING"
)

var allStatuses = []Status{StatusBlocked, StatusQuarantined, StatusMitigated, StatusInvestigating}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Category is the threat type vocabulary.
type Category string

const (
	CategoryMalware          Category = "malware"
	CategoryTrojan           Category = "trojan"
	CategoryPackedMalware    Category = "packed_malware"
	CategoryDocumentThreat   Category = "document_threat"
	CategoryArchiveThreat    Category = "archive_threat"
	CategoryAdware           Category = "adware"
	CategoryPUP              Category = "pup"
	CategoryRansomware       Category = "ransomware"
	CategoryBackdoor         Category = "backdoor"
	CategoryCryptominer      Category = "cryptominer"
	CategoryAPT              Category = "apt"
	CategoryPhishing         Category = "phishing"
	CategoryDDoS             Category = "ddos"
	CategoryIntrusion        Category = "intrusion"
	CategoryBotnet           Category = "botnet"
	CategoryCredentialTheft  Category = "credential_theft"
	CategoryDataExfiltration Category = "data_exfiltration"
	CategoryZeroDay          Category = "zero_day"
	CategorySQLInjection     Category = "sql_injection"
)

var allCategories = []Category{
	CategoryMalware, CategoryTrojan, CategoryPackedMalware, CategoryDocumentThreat,
	CategoryArchiveThreat, CategoryAdware, CategoryPUP, CategoryRansomware,
	CategoryBackdoor, CategoryCryptominer, CategoryAPT, CategoryPhishing,
	CategoryDDoS, CategoryIntrusion, CategoryBotnet, CategoryCredentialTheft,
	CategoryDataExfiltration, CategoryZeroDay, CategorySQLInjection,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range allCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Source names the detection pipeline credited with a threat.
type Source string

const (
	SourceMultipleEngines    Source = "Multiple AV Engines"
	SourceBehavioral         Source = "Behavioral Analysis"
	SourceHeuristic          Source = "Heuristic Detection"
	SourceDeepInspection     Source = "Deep File Inspection"
	SourceVTIntelligence     Source = "VirusTotal Intelligence"
	SourceThreatDatabase     Source = "Threat Database Lookup"
	SourceSignature          Source = "Signature Analysis"
	SourceStaticAnalysis     Source = "Static Analysis Engine"
	SourceSandbox            Source = "Dynamic Analysis Sandbox"
	SourceCommunity          Source = "Community Reports"
	SourceDocumentAnalysis   Source = "Document Analysis"
	SourceThreatIntelligence Source = "Threat Intelligence"
	SourceNetworkBehavior    Source = "Network Behavior Analysis"
	SourceNetworkMonitor     Source = "Network Monitor"
	SourceEmailGateway       Source = "Email Gateway"
	SourceNetworkPerimeter   Source = "Network Perimeter"
	SourceEndpointDetection  Source = "Endpoint Detection"
	SourceWebFilter          Source = "Web Filter"
	SourceDNSMonitor         Source = "DNS Monitor"
	SourceFileScanner        Source = "File Scanner"
	SourceNetworkTraffic     Source = "Network Traffic"
	SourceUserActivity       Source = "User Activity"
	SourceCloudSecurity      Source = "Cloud Security"
	SourceMobileSecurity     Source = "Mobile Security"
)

// Summary is one item of the threat feed.
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     Source    `json:"source"`
	Category   Category  `json:"type"`
	Status     Status    `json:"status"`
	Severity   Severity  `json:"severity"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`

	EnginesDetected int    `json:"engines_detected,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	FileType        string `json:"file_type,omitempty"`
	SHA256          string `json:"sha256,omitempty"`
	ReferenceURL    string `json:"reference_url,omitempty"`
}

// severityLabel maps a detection score to a severity.
//
//	> 0.30 → critical
//	> 0.15 → high
//	> 0.05 → medium
//	else   → low
func severityLabel(score float64) Severity {
	switch {
	case score > 0.30:
		return SeverityCritical
	case score > 0.15:
		return SeverityHigh
	case score > 0.05:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
