// Package scan defines the scan records consumed from the external
// intelligence provider and decodes them from the VirusTotal v3 wire format.
package scan

import (
	"encoding/json"
	"fmt"
	"math"
)

// Stats holds per-engine verdict counts for a single analysis.
type Stats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Undetected int `json:"undetected"`
	Harmless   int `json:"harmless"`
}

// Engines returns the number of engines that returned a verdict relevant to
// threat scoring (malicious + suspicious + undetected).
func (s Stats) Engines() int {
	return s.Malicious + s.Suspicious + s.Undetected
}

// Record is one provider analysis result for a single file. Every field is
// optional; the zero value is a valid record with no detections.
type Record struct {
	ID              string   `json:"id,omitempty"`
	Stats           Stats    `json:"stats"`
	Size            int64    `json:"size,omitempty"`
	TypeDescription string   `json:"type_description,omitempty"`
	Names           []string `json:"names,omitempty"`
	SHA256          string   `json:"sha256,omitempty"`
}

// FirstName returns the first declared file name, or "".
func (r Record) FirstName() string {
	if len(r.Names) == 0 {
		return ""
	}
	return r.Names[0]
}

// Hash returns the content hash, falling back to the record ID.
func (r Record) Hash() string {
	if r.SHA256 != "" {
		return r.SHA256
	}
	return r.ID
}

// wireObject mirrors a VirusTotal v3 file object. Attribute fields of the
// wrong JSON type decode as zero instead of failing the whole object.
type wireObject struct {
	ID         json.RawMessage `json:"id"`
	Attributes wireAttributes  `json:"attributes"`
}

type wireAttributes struct {
	LastAnalysisStats Stats
	Size              int64
	TypeDescription   string
	Names             []string
	SHA256            string
}

func (a *wireAttributes) UnmarshalJSON(b []byte) error {
	fields := objectField(b)
	stats := objectField(fields["last_analysis_stats"])
	*a = wireAttributes{
		LastAnalysisStats: Stats{
			Malicious:  int(intField(stats["malicious"])),
			Suspicious: int(intField(stats["suspicious"])),
			Undetected: int(intField(stats["undetected"])),
			Harmless:   int(intField(stats["harmless"])),
		},
		Size:            intField(fields["size"]),
		TypeDescription: stringField(fields["type_description"]),
		Names:           stringsField(fields["names"]),
		SHA256:          stringField(fields["sha256"]),
	}
	return nil
}

type wireCollection struct {
	Data []json.RawMessage `json:"data"`
}

// DecodeCollection parses a provider collection response ({"data": [...]}).
// Items that are not JSON objects are skipped and counted in skipped; an
// error is returned only when the envelope itself is malformed.
func DecodeCollection(body []byte) (records []Record, skipped int, err error) {
	var coll wireCollection
	if err := json.Unmarshal(body, &coll); err != nil {
		return nil, 0, fmt.Errorf("decode collection: %w", err)
	}

	records = make([]Record, 0, len(coll.Data))
	for _, raw := range coll.Data {
		if objectField(raw) == nil {
			skipped++
			continue
		}
		var obj wireObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			skipped++
			continue
		}
		records = append(records, fromWire(obj))
	}
	return records, skipped, nil
}

func fromWire(obj wireObject) Record {
	a := obj.Attributes
	return Record{
		ID: stringField(obj.ID),
		Stats: Stats{
			Malicious:  nonNegative(a.LastAnalysisStats.Malicious),
			Suspicious: nonNegative(a.LastAnalysisStats.Suspicious),
			Undetected: nonNegative(a.LastAnalysisStats.Undetected),
			Harmless:   nonNegative(a.LastAnalysisStats.Harmless),
		},
		Size:            max(a.Size, 0),
		TypeDescription: a.TypeDescription,
		Names:           a.Names,
		SHA256:          a.SHA256,
	}
}

// objectField returns the members of a JSON object, or nil when raw is
// absent or not an object.
func objectField(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// intField returns an integral JSON number, or 0 for anything else.
func intField(raw json.RawMessage) int64 {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return 0
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0
	}
	return int64(f)
}

func stringField(raw json.RawMessage) string {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// stringsField keeps the string elements of a JSON array.
func stringsField(raw json.RawMessage) []string {
	var items []any
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNegative(n int) int {
	return max(n, 0)
}
