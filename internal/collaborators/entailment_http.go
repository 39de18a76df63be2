package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/taipm/hdrp-go/internal/herrors"
)

// HTTPEntailment is the Entailment collaborator that calls the NLI
// model server over HTTP: POST /relation with X-Model-Variant
// (spec.md §6).
type HTTPEntailment struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPEntailment builds an HTTPEntailment pointed at endpoint with a
// client timeout matching the fixed NLI call budget.
func NewHTTPEntailment(endpoint string) *HTTPEntailment {
	return &HTTPEntailment{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: CallTimeout(KindEntailment)},
	}
}

type relationRequest struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

func (e *HTTPEntailment) Relate(ctx context.Context, premise, hypothesis, variant string) (*Relation, error) {
	body, err := json.Marshal(relationRequest{Premise: premise, Hypothesis: hypothesis})
	if err != nil {
		return nil, herrors.Wrap(herrors.Internal, "marshal relation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, herrors.Wrap(herrors.Internal, "build relation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Model-Variant", variant)

	resp, err := e.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, herrors.Wrap(herrors.Timeout, "entailment call deadline exceeded", err)
		}
		return nil, herrors.Wrap(herrors.ExternalUnavailable, "entailment call failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, herrors.New(herrors.InvalidArgument, "entailment server rejected variant "+variant)
	case resp.StatusCode >= 500:
		return nil, herrors.New(herrors.ExternalUnavailable, fmt.Sprintf("entailment server returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, herrors.New(herrors.ExternalUnavailable, fmt.Sprintf("entailment server returned %d", resp.StatusCode))
	}

	var rel Relation
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, herrors.Wrap(herrors.Parse, "decode relation response", err)
	}
	return &rel, nil
}
