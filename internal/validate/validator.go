package validate

import (
	"encoding/json"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Result is the outcome of scanning one peer response
type Result struct {
	Null           bool                // Peer sent nothing
	Items          []model.FetchedItem // Every batch element in order, zero-valued when undecodable
	IDs            []string            // Non-empty ids in batch order, repeats kept
	Faults         []Fault
	Format         bool
	Fake           bool
	Length         int
	AverageAge     float64 // Mean age in seconds over items with a readable timestamp
	RelevancyRatio float64
}

// Empty reports whether the peer contributed no items
func (r Result) Empty() bool {
	return r.Length == 0
}

// Validator scans peer responses for one platform
type Validator struct {
	rules Rules
	Now   func() time.Time // Injectable clock for tests
}

// NewValidator creates a validator with the given platform rules
func NewValidator(rules Rules) *Validator {
	return &Validator{rules: rules, Now: time.Now}
}

// Rules returns the rules the validator applies
func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate decodes and checks one peer response in a single pass.
// Content problems are reported as faults and flags, never as errors.
func (v *Validator) Validate(raw json.RawMessage, tag string) Result {
	decoded := ParseBatch(raw, v.rules)
	now := v.Now().UTC()

	res := Result{
		Null:   decoded.Null,
		Items:  make([]model.FetchedItem, 0, len(decoded.Items)),
		Faults: append([]Fault(nil), decoded.Faults...),
		Length: len(decoded.Items),
	}

	seen := make(map[string]bool, len(decoded.Items))
	var ageSum float64
	var aged, relevant int

	for i, p := range decoded.Items {
		item := p.Item
		res.Items = append(res.Items, item)
		res.Faults = append(res.Faults, p.Faults...)

		if item.ID != "" {
			if seen[item.ID] {
				res.Faults = append(res.Faults, Fault{Index: i, Kind: FaultDuplicateID, Field: "id", Detail: item.ID})
			}
			seen[item.ID] = true
			res.IDs = append(res.IDs, item.ID)
		}

		if v.rules.CheckURLIdentity {
			if ok, detail := checkURLIdentity(item.ID, item.URL); !ok {
				res.Faults = append(res.Faults, Fault{Index: i, Kind: FaultURLIdentity, Field: "url", Detail: detail})
			}
		}

		if item.Timestamp != "" {
			ts, err := v.rules.ParseTimestamp(item.Timestamp)
			if err != nil {
				res.Faults = append(res.Faults, Fault{Index: i, Kind: FaultBadTimestamp, Field: "timestamp", Detail: err.Error()})
			} else {
				age := now.Sub(ts).Seconds()
				if age < 0 {
					res.Faults = append(res.Faults, Fault{Index: i, Kind: FaultFutureTimestamp, Field: "timestamp", Detail: item.Timestamp})
					age = 0
				}
				ageSum += age
				aged++
			}
		}

		if v.rules.Relevant(item, tag) {
			relevant++
		}
	}

	for _, f := range res.Faults {
		if f.Kind.IsFormat() {
			res.Format = true
		}
		if f.Kind.IsFake() {
			res.Fake = true
		}
	}

	if aged > 0 {
		res.AverageAge = ageSum / float64(aged)
	}
	if res.Length > 0 {
		res.RelevancyRatio = float64(relevant) / float64(res.Length)
	}

	return res
}
