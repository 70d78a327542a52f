package threat

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/scan"
)

const (
	// DefaultMaxResults is used when the caller asks for zero or fewer items.
	DefaultMaxResults = 7

	// MinResults is the feed length below which archetypes are mixed in.
	MinResults = 5

	// padTarget is how many items a padded feed is topped up to.
	padTarget = 6

	// recordWindow bounds how far back a classified record is dated.
	recordWindow = 2 * time.Hour
)

const referenceURLBase = "https://www.virustotal.com/gui/file/"

// idNamespace scopes the UUIDs minted for records that arrive without an ID.
var idNamespace = uuid.MustParse("3b0f9c1e-6f1a-4c55-9d2e-8a7c1f4e2b90")

// Classify turns a batch of scan records into a feed of at most maxResults
// summaries, sorted by severity then confidence, both descending. It always
// returns a non-empty list.
func Classify(batch []scan.Record, ref time.Time, maxResults int, src rng.Source) []Summary {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	out, err := classify(batch, ref, src)
	if err != nil {
		out = Fallback(ref)
	}
	Sort(out)
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func classify(batch []scan.Record, ref time.Time, src rng.Source) ([]Summary, error) {
	var out []Summary
	if len(batch) == 0 {
		out = synthesize(ref, src)
	} else {
		out = make([]Summary, 0, max(len(batch), padTarget))
		seen := make(map[string]struct{}, len(batch))
		for i, r := range batch {
			s := classifyRecord(r, ref, src)
			s.ID = uniqueID(recordID(r, ref, i), seen)
			out = append(out, s)
		}
		if len(out) < MinResults {
			out = pad(out, ref, src, seen)
		}
	}

	if err := validate(out, ref); err != nil {
		return nil, err
	}
	return out, nil
}

func classifyRecord(r scan.Record, ref time.Time, src rng.Source) Summary {
	fileType := r.TypeDescription
	if fileType == "" {
		fileType = "Unknown"
	}

	s := Summary{
		Title:           titleOf(r),
		Source:          sourceOf(r, src),
		Category:        categoryOf(r, src),
		Status:          statusOf(r, src),
		Severity:        severityOf(r),
		Confidence:      confidenceOf(src),
		Timestamp:       within(ref, recordWindow, src),
		EnginesDetected: r.Stats.Malicious,
		FileSize:        r.Size,
		FileType:        fileType,
		SHA256:          r.Hash(),
	}
	if r.ID != "" {
		s.ReferenceURL = referenceURLBase + r.ID
	}
	return s
}

func recordID(r scan.Record, ref time.Time, idx int) string {
	if r.ID != "" {
		return r.ID
	}
	name := fmt.Sprintf("%d/%d", ref.UnixNano(), idx)
	return "vt_" + uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// uniqueID suffixes repeated IDs so every item in a response is distinct.
func uniqueID(id string, seen map[string]struct{}) string {
	candidate := id
	for n := 1; ; n++ {
		if _, taken := seen[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	seen[candidate] = struct{}{}
	return candidate
}

// Sort orders summaries by severity, then confidence, both descending.
// Items that compare equal keep their relative order.
func Sort(s []Summary) {
	slices.SortStableFunc(s, func(a, b Summary) int {
		if a.Severity != b.Severity {
			return int(b.Severity) - int(a.Severity)
		}
		return b.Confidence - a.Confidence
	})
}

var errEmptyFeed = errors.New("classified feed is empty")

// validate checks the output invariants of a feed built at ref.
func validate(out []Summary, ref time.Time) error {
	if len(out) == 0 {
		return errEmptyFeed
	}
	oldest := ref.Add(-recordWindow)
	ids := make(map[string]struct{}, len(out))
	for i, s := range out {
		switch {
		case s.ID == "":
			return fmt.Errorf("item %d: empty id", i)
		case !s.Severity.Valid():
			return fmt.Errorf("item %d: invalid severity %d", i, int(s.Severity))
		case s.Confidence < 0 || s.Confidence > 100:
			return fmt.Errorf("item %d: confidence %d out of range", i, s.Confidence)
		case !s.Category.Valid():
			return fmt.Errorf("item %d: unknown category %q", i, s.Category)
		case !s.Status.Valid():
			return fmt.Errorf("item %d: unknown status %q", i, s.Status)
		case s.Timestamp.After(ref) || s.Timestamp.Before(oldest):
			return fmt.Errorf("item %d: timestamp %s outside window", i, s.Timestamp)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("item %d: duplicate id %q", i, s.ID)
		}
		ids[s.ID] = struct{}{}
	}
	return nil
}
