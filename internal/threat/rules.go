package threat

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/scan"
)

// largeFileBytes marks files big enough to be credited to deep inspection.
const largeFileBytes = 10_000_000

// maxNameRunes bounds the file name shown in a title.
const maxNameRunes = 30

// Per-record rules. Each takes the record and returns one label; the first
// matching threshold wins and unmatched records draw from a fixed pool.

func severityOf(r scan.Record) Severity {
	st := r.Stats
	total := st.Engines()
	if total == 0 {
		return SeverityMedium
	}
	score := float64(2*st.Malicious+st.Suspicious) / float64(max(1, total))
	return severityLabel(score)
}

func titleOf(r scan.Record) string {
	st := r.Stats
	switch {
	case st.Malicious > 10:
		return fmt.Sprintf("High-Risk Malware Detection (%d/%d engines)", st.Malicious, st.Malicious+st.Undetected)
	case st.Malicious > 5:
		return fmt.Sprintf("Potential Malware Detected (%d engines flagged)", st.Malicious)
	case st.Suspicious > 5:
		return "Suspicious File Behavior Detected"
	case r.FirstName() != "":
		return "File Analysis: " + truncateRunes(r.FirstName(), maxNameRunes)
	default:
		return "Advanced Threat Analysis Complete"
	}
}

// fallbackSources are credited when no detection threshold applies.
var fallbackSources = []Source{
	SourceVTIntelligence,
	SourceThreatDatabase,
	SourceSignature,
	SourceStaticAnalysis,
	SourceSandbox,
	SourceCommunity,
}

func sourceOf(r scan.Record, src rng.Source) Source {
	st := r.Stats
	switch {
	case st.Malicious > 20:
		return SourceMultipleEngines
	case st.Malicious > 10:
		return SourceBehavioral
	case st.Suspicious > 5:
		return SourceHeuristic
	case r.Size > largeFileBytes:
		return SourceDeepInspection
	default:
		return rng.Pick(src, fallbackSources)
	}
}

type keywordRule struct {
	keyword  string
	category Category
}

// typeKeywords match against the provider's file type description.
var typeKeywords = []keywordRule{
	{"executable", CategoryMalware},
	{"script", CategoryTrojan},
	{"archive", CategoryPackedMalware},
	{"document", CategoryDocumentThreat},
}

// nameKeywords match against the first declared file name.
var nameKeywords = []keywordRule{
	{".exe", CategoryMalware},
	{".dll", CategoryMalware},
	{".pdf", CategoryDocumentThreat},
	{".doc", CategoryDocumentThreat},
	{".zip", CategoryArchiveThreat},
	{".rar", CategoryArchiveThreat},
}

var fallbackCategories = []Category{
	CategoryMalware, CategoryTrojan, CategoryAdware, CategoryPUP, CategoryRansomware, CategoryBackdoor,
}

func categoryOf(r scan.Record, src rng.Source) Category {
	if c, ok := matchKeyword(r.TypeDescription, typeKeywords); ok {
		return c
	}
	if c, ok := matchKeyword(r.FirstName(), nameKeywords); ok {
		return c
	}
	return rng.Pick(src, fallbackCategories)
}

func matchKeyword(s string, rules []keywordRule) (Category, bool) {
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	for _, kr := range rules {
		if strings.Contains(lower, kr.keyword) {
			return kr.category, true
		}
	}
	return "", false
}

func statusOf(r scan.Record, src rng.Source) Status {
	m := r.Stats.Malicious
	switch {
	case m > 15:
		return StatusBlocked
	case m > 8:
		return StatusQuarantined
	case m > 3:
		return StatusInvestigating
	default:
		return rng.Pick(src, allStatuses)
	}
}

// confidenceOf draws a confidence in [85, 100].
func confidenceOf(src rng.Source) int {
	return 85 + src.IntN(16)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
