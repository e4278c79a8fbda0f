package workers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/taskq"
)

// ErrMalformedPayload marks a task whose payload cannot be decoded.
// Such tasks are failed permanently: retrying a deterministic decode
// error only burns the retry budget.
var ErrMalformedPayload = errors.New("workers: malformed task payload")

// SearchPayload drives one paginated query call.
type SearchPayload struct {
	Mission string `json:"mission"`
	Tactic  string `json:"tactic"`
	Query   string `json:"query"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Sort    string `json:"sort,omitempty"`
	Order   string `json:"order,omitempty"`
	CycleID string `json:"cycle_id"`
}

// DiscoveryPayload drives one probe of a date window. Start and End are
// inclusive dates in 2006-01-02 form. DateField names the qualifier the
// window slices on ("created" or "pushed"); empty means "created".
type DiscoveryPayload struct {
	Mission   string `json:"mission"`
	Tactic    string `json:"tactic"`
	Query     string `json:"query"` // base query without the date qualifier
	DateField string `json:"date_field,omitempty"`
	Start     string `json:"start"`
	End       string `json:"end"`
	PerPage   int    `json:"per_page"`
	CycleID   string `json:"cycle_id"`
}

// FetchPayload names one repository whose documentation should be
// retrieved.
type FetchPayload struct {
	Mission string      `json:"mission"`
	Tactic  string      `json:"tactic"`
	Repo    github.Repo `json:"repo"`
	CycleID string      `json:"cycle_id"`
}

// AnalyzePayload carries a repository plus its retrieved documentation
// to the processor.
type AnalyzePayload struct {
	Mission string      `json:"mission"`
	Tactic  string      `json:"tactic"`
	Repo    github.Repo `json:"repo"`
	Doc     string      `json:"doc"`
	CycleID string      `json:"cycle_id"`
}

// decodePayload turns a claimed task into its typed payload. The switch
// is exhaustive over the four task kinds; anything else is malformed.
func decodePayload(t *taskq.Task) (any, error) {
	var (
		dst any
		err error
	)
	switch t.Type {
	case taskq.TypeSearch:
		var p SearchPayload
		err = json.Unmarshal(t.Payload, &p)
		dst = p
	case taskq.TypeDiscovery:
		var p DiscoveryPayload
		err = json.Unmarshal(t.Payload, &p)
		dst = p
	case taskq.TypeFetchReadme:
		var p FetchPayload
		err = json.Unmarshal(t.Payload, &p)
		dst = p
	case taskq.TypeAnalyze:
		var p AnalyzePayload
		err = json.Unmarshal(t.Payload, &p)
		dst = p
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedPayload, t.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return dst, nil
}
