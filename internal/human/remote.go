package human

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/ghostreplay/engine/internal/apperr"
)

// eloBins mirrors the model's named strength buckets; a request is
// served by whichever bin is numerically closest to the (clamped)
// target Elo. Grounded on the original Maia-family client's ELO_BINS.
var eloBins = []int{600, 800, 1000, 1200, 1400, 1600, 1800, 2000, 2200, 2400, 2600}

func nearestBin(elo int) int {
	best := eloBins[0]
	bestDist := abs(elo - best)
	for _, b := range eloBins[1:] {
		if d := abs(elo - b); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func modelName(elo int) string {
	return fmt.Sprintf("maia_kdd_%d", nearestBin(elo))
}

// RemoteConfig configures the remote human-move provider.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	TopK    int
	MinProb float64
}

// RemoteProvider calls an external human-move model over HTTP, using a
// retrying client so transient failures don't immediately surface as
// permanent unavailability.
type RemoteProvider struct {
	cfg    RemoteConfig
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewRemoteProvider builds a RemoteProvider. Defaults are applied for
// zero-valued TopK/MinProb.
func NewRemoteProvider(cfg RemoteConfig, logger *zap.Logger) *RemoteProvider {
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinProb == 0 {
		cfg.MinProb = DefaultMinProb
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil // avoid leaking request bodies into default stdlib logging
	client.HTTPClient.Timeout = cfg.Timeout

	return &RemoteProvider{cfg: cfg, client: client, logger: logger}
}

type moveRequest struct {
	Moves        []string `json:"moves"`
	MaiaName     string   `json:"maia_name"`
	InitialClock int      `json:"initial_clock"`
	CurrentClock int      `json:"current_clock"`
	MaiaVersion  string   `json:"maia_version"`
}

type moveResponse struct {
	Candidates []struct {
		UCI string  `json:"uci"`
		SAN string  `json:"san"`
		P   float64 `json:"p"`
	} `json:"candidates"`
}

// Candidates fetches human-plausible moves for fen at the given target
// Elo (clamped to EloFloor), sorted by descending probability and
// filtered to the configured top-k/min-probability window.
func (r *RemoteProvider) Candidates(ctx context.Context, fen string, elo int) ([]Candidate, error) {
	clamped := clampElo(elo)
	name := modelName(clamped)

	body, err := json.Marshal(moveRequest{
		Moves:        []string{fen},
		MaiaName:     name,
		InitialClock: 0,
		CurrentClock: 0,
		MaiaVersion:  "maia3",
	})
	if err != nil {
		return nil, apperr.Internal("encode human-move request", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("build human-move request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("human-move request failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		}
		return nil, apperr.ServiceUnavailable("human-move provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.ServiceUnavailable(fmt.Sprintf("human-move provider returned status %d", resp.StatusCode), nil)
	}

	var parsed moveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.ServiceUnavailable("human-move provider returned unparseable response", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, apperr.ServiceUnavailable("human-move provider returned no candidates", nil)
	}

	out := make([]Candidate, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		out = append(out, Candidate{UCI: c.UCI, SAN: c.SAN, P: c.P})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].P > out[j].P })

	if r.logger != nil {
		r.logger.Debug("human-move response",
			zap.String("model", name), zap.Int("count", len(out)), zap.Duration("elapsed", elapsed))
	}

	return filterTopK(out, r.cfg.TopK, r.cfg.MinProb), nil
}
