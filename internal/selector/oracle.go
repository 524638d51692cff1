package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// RandomnessOracle produces a verifiable random draw in [0, totalWeight)
// together with a proof blob (epoch plus verifiable-random value) that is
// stored on the winner record for auditability.
type RandomnessOracle interface {
	Draw(ctx context.Context, totalWeight int64) (int64, string, error)
}

// HTTPOracle implements RandomnessOracle against a verifiable-randomness
// service over HTTP.
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOracle creates an oracle client from configuration.
func NewHTTPOracle(cfg *config.SelectorConfig) *HTTPOracle {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPOracle{
		baseURL:    cfg.OracleURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type oracleRequest struct {
	Max int64 `json:"max"`
}

type oracleResponse struct {
	Value int64  `json:"value"`
	Epoch uint64 `json:"epoch"`
	Proof string `json:"proof"`
}

// Draw requests one random value below totalWeight.
func (o *HTTPOracle) Draw(ctx context.Context, totalWeight int64) (int64, string, error) {
	body, err := json.Marshal(oracleRequest{Max: totalWeight})
	if err != nil {
		return 0, "", utils.NewAppError(utils.ErrCodeInternal, "Failed to encode oracle request", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", utils.NewAppError(utils.ErrCodeInternal, "Failed to build oracle request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, "", utils.NewAppError(utils.ErrCodeConnection, "Oracle request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", utils.NewAppError(utils.ErrCodeConnection,
			"Oracle returned non-OK status", resp.Status)
	}

	var result oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, "", utils.NewAppError(utils.ErrCodeInternal, "Failed to decode oracle response", err.Error())
	}

	if result.Value < 0 || result.Value >= totalWeight {
		return 0, "", utils.NewAppError(utils.ErrCodeValidation,
			"Oracle value out of range", fmt.Sprintf("value=%d max=%d", result.Value, totalWeight))
	}

	proof := result.Proof
	if result.Epoch != 0 {
		proof = fmt.Sprintf("epoch=%d;%s", result.Epoch, result.Proof)
	}
	return result.Value, proof, nil
}
