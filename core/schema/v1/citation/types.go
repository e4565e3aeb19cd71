// Package citation defines the one-line-per-citation record consumed from
// citations.jsonl. Validation of the source itself happens outside the core;
// only the recorded status matters here.
package citation

// Citation statuses. Only valid and paywalled count toward the validated pool.
const (
	StatusValid     = "valid"
	StatusPaywalled = "paywalled"
	StatusInvalid   = "invalid"
	StatusUnchecked = "unchecked"
)

type Record struct {
	CID    string `json:"cid"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Validated reports whether the record belongs to the validated pool.
func (r Record) Validated() bool {
	return r.Status == StatusValid || r.Status == StatusPaywalled
}
