// Package watch contains the core domain types for the listing notification service.
package watch

import "encoding/json"

// DefaultInterval is the polling interval, in minutes, assigned to a tenant
// on first contact. Intervals below 1 are rejected at the command boundary,
// so the scheduler never runs a tight loop.
const DefaultInterval = 10

// Listing is the newest item extracted from a monitored page.
type Listing struct {
	Title string
	Link  string
}

// Tenant is one monitored subscriber, keyed in the tenant document by its
// messaging-platform user id.
type Tenant struct {
	URL       string `json:"url,omitempty"`        // Monitored page, may be unset
	Interval  int    `json:"interval"`             // Minutes between polls
	LastTitle string `json:"last_title,omitempty"` // Newest listing title last notified
	Active    bool   `json:"active"`               // Whether a polling loop should run

	// extra holds fields written by other versions of the service so a
	// load/save round-trip never drops them.
	extra map[string]json.RawMessage
}

var knownTenantFields = []string{"url", "interval", "last_title", "active"}

// UnmarshalJSON decodes the known fields and keeps everything else aside for
// the next save.
func (t *Tenant) UnmarshalJSON(data []byte) error {
	type alias Tenant
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownTenantFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*t = Tenant(a)
	t.extra = raw
	return nil
}

// MarshalJSON re-emits any unknown fields captured at load time alongside
// the known ones.
func (t Tenant) MarshalJSON() ([]byte, error) {
	type alias Tenant
	data, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Outcome is the result of comparing an extracted listing against a
// tenant's last seen title.
type Outcome int

const (
	// Unchanged means the newest listing still matches the last seen title.
	Unchanged Outcome = iota
	// Changed means a listing was extracted and its title differs from the
	// last seen title. The first observation ever counts as changed.
	Changed
	// Indeterminate means extraction found nothing to compare; state is
	// left untouched this cycle.
	Indeterminate
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Detect compares the newest extracted listing against the last seen title.
// A nil listing means the page had nothing to extract this cycle.
func Detect(l *Listing, lastTitle string) Outcome {
	switch {
	case l == nil || l.Title == "":
		return Indeterminate
	case l.Title != lastTitle:
		return Changed
	default:
		return Unchanged
	}
}
