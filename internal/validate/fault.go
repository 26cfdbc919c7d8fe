package validate

import "fmt"

// FaultKind classifies a problem found in a peer response
type FaultKind string

const (
	// Structural faults set the format flag
	FaultNullResponse FaultKind = "null_response"
	FaultMalformed    FaultKind = "malformed"
	FaultMissingField FaultKind = "missing_field"
	FaultBadTimestamp FaultKind = "bad_timestamp"

	// Authenticity faults set the fake flag
	FaultDuplicateID     FaultKind = "duplicate_id"
	FaultURLIdentity     FaultKind = "url_identity"
	FaultFutureTimestamp FaultKind = "future_timestamp"
)

// IsFormat reports whether the fault is structural
func (k FaultKind) IsFormat() bool {
	switch k {
	case FaultNullResponse, FaultMalformed, FaultMissingField, FaultBadTimestamp:
		return true
	}
	return false
}

// IsFake reports whether the fault marks fabricated or tampered data
func (k FaultKind) IsFake() bool {
	switch k {
	case FaultDuplicateID, FaultURLIdentity, FaultFutureTimestamp:
		return true
	}
	return false
}

// Fault is one problem found while scanning a response.
// Index is the item position in the batch, or -1 for batch-level faults.
type Fault struct {
	Index  int       `json:"index"`
	Kind   FaultKind `json:"kind"`
	Field  string    `json:"field,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func (f Fault) String() string {
	s := string(f.Kind)
	if f.Index >= 0 {
		s = fmt.Sprintf("item %d: %s", f.Index, s)
	}
	if f.Field != "" {
		s += " (" + f.Field + ")"
	}
	if f.Detail != "" {
		s += ": " + f.Detail
	}
	return s
}
