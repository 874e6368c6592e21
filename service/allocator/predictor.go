// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// PredictorDefaultTargetIndex is the sentinel target index used for any
// peer the predictor response omits (spec §6). It assumes at least 6
// layers; rlApply clamps it to IdealIndex for sources with fewer.
const PredictorDefaultTargetIndex = 5

// predictorClient performs the optional C8 delegation: POST a stats
// snapshot to a remote predictor and parse its per-peer target-index
// response. It never wraps outbound HTTP in a library, the same way
// service/api only wraps the inbound http.Server.
type predictorClient struct {
	cfg     PredictorConfig
	client  *http.Client
	log     mlog.LoggerIFace
	metrics *Metrics
}

func newPredictorClient(cfg PredictorConfig, log mlog.LoggerIFace, metrics *Metrics) *predictorClient {
	return &predictorClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		log:     log,
		metrics: metrics,
	}
}

// predict returns the per-peer target index map and true when the
// predictor opted in (useRL == 1) and the round trip succeeded;
// otherwise it returns (nil, false) and the caller falls back to the
// greedy algorithm. Every failure mode is swallowed here per spec §7.
func (p *predictorClient) predict(ctx context.Context, doc map[string]map[string]interface{}) (map[string]int, bool) {
	if !p.cfg.Enable {
		return nil, false
	}

	body, err := json.Marshal(doc)
	if err != nil {
		p.log.Warn("allocator: failed to marshal predictor request", mlog.Err(err))
		p.metrics.IncPredictorFallback("marshal")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		p.log.Warn("allocator: failed to build predictor request", mlog.Err(err))
		p.metrics.IncPredictorFallback("marshal")
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("allocator: predictor request failed, falling back", mlog.Err(err))
		p.metrics.IncPredictorFallback("network")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Debug("allocator: predictor returned non-200, falling back", mlog.Int("status", resp.StatusCode))
		p.metrics.IncPredictorFallback("network")
		return nil, false
	}

	var raw map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		p.log.Info("allocator: failed to decode predictor response, falling back", mlog.Err(err))
		p.metrics.IncPredictorFallback("parse")
		return nil, false
	}

	useRL, ok := raw["useRL"]
	if !ok {
		p.log.Info("allocator: predictor response missing useRL, falling back")
		p.metrics.IncPredictorFallback("parse")
		return nil, false
	}
	if useRL.String() != "1" {
		p.metrics.IncPredictorFallback("disabled")
		return nil, false
	}

	targets := make(map[string]int, len(raw))
	for peerID, idx := range raw {
		if peerID == "useRL" {
			continue
		}
		n, err := idx.Int64()
		if err != nil {
			p.log.Info("allocator: predictor response has non-integer target, skipping peer", mlog.String("peerID", peerID), mlog.Err(err))
			continue
		}
		targets[peerID] = int(n)
	}

	return targets, true
}
