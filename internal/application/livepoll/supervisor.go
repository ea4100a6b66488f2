// Package livepoll runs the per-live-widget poll loop: a cheap
// pseudo-subscription for widgets whose source store does not support
// push. Grounded on other_examples' cdc-processor.go for the
// cenkalti/backoff retry idiom (NewExponentialBackOff + WithMaxElapsedTime)
// and the teacher's internal/application/executor/retry.go for the
// supervised-worker-per-unit shape, generalized here from per-node retry
// to a long-lived per-widget polling goroutine.
package livepoll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vizflow/vizflow/internal/domain/cacheexec"
	"github.com/vizflow/vizflow/internal/domain/livehub"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// MaxBackoff caps the exponential backoff applied to consecutive poll
// failures (spec.md §4.5 "Poll failures back off exponentially to a cap").
const MaxBackoff = 2 * time.Minute

// WidgetSource resolves a live widget's current graph so the supervisor
// can re-run its query every tick.
type WidgetSource interface {
	GraphForWidget(ctx context.Context, tenantID string, widget models.Widget) (models.Graph, error)
}

// Supervisor owns one goroutine per live-mode widget, polling its source
// query on an interval and publishing a live_data frame only when the
// result's content hash changes (spec.md §4.5 "Publishers").
type Supervisor struct {
	cacheExec *cacheexec.Executor
	hub       *livehub.Hub
	source    WidgetSource
	namespace string
	log       *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Supervisor.
func New(ce *cacheexec.Executor, hub *livehub.Hub, source WidgetSource, namespace string, log *logger.Logger) *Supervisor {
	return &Supervisor{
		cacheExec: ce,
		hub:       hub,
		source:    source,
		namespace: namespace,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start begins polling widget on the given interval if it is not already
// running. Safe to call repeatedly; a second Start for the same widget id
// is a no-op until Stop is called.
func (s *Supervisor) Start(tenantID string, widget models.Widget, interval time.Duration) {
	s.mu.Lock()
	if _, running := s.cancels[widget.ID]; running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[widget.ID] = cancel
	s.mu.Unlock()

	go s.loop(ctx, tenantID, widget, interval)
}

// Stop cancels an in-flight poll loop for widgetID, if any.
func (s *Supervisor) Stop(widgetID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[widgetID]
	delete(s.cancels, widgetID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Supervisor) loop(ctx context.Context, tenantID string, widget models.Widget, interval time.Duration) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, widget.ID)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastHash string
	var consecutiveFailures int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hash, err := s.pollOnce(ctx, tenantID, widget, lastHash)
		if err != nil {
			consecutiveFailures++
			wait := backoffDelay(consecutiveFailures)
			s.log.WarnContext(ctx, "live widget poll failed, backing off", "widget_id", widget.ID, "error", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		consecutiveFailures = 0
		if hash != "" {
			lastHash = hash
		}
	}
}

// pollOnce runs the widget's query once through the cache layer and
// publishes a live_data frame if the result's content hash changed. It
// returns the new hash (or "" on unchanged/empty-skip) and any error.
func (s *Supervisor) pollOnce(ctx context.Context, tenantID string, widget models.Widget, lastHash string) (string, error) {
	graph, err := s.source.GraphForWidget(ctx, tenantID, widget)
	if err != nil {
		return "", err
	}

	resp, err := s.cacheExec.Execute(ctx, cacheexec.Request{
		Path:            cacheexec.PathWidget,
		TenantID:        tenantID,
		Graph:           graph,
		TargetNodeID:    widget.SourceNodeID,
		ConfigOverrides: widget.ConfigOverrides,
	})
	if err != nil {
		return "", err
	}

	hash, err := contentHash(resp)
	if err != nil {
		return "", err
	}
	if hash == lastHash {
		return "", nil
	}

	channel := livehub.ChannelName(s.namespace, tenantID, livehub.KindWidget, widget.ID)
	frame := livehub.LiveDataFrame{Type: "live_data", WidgetID: widget.ID, Data: resp}
	if err := s.hub.Publish(ctx, channel, frame); err != nil {
		s.log.WarnContext(ctx, "live_data publish failed", "widget_id", widget.ID, "error", err)
	}
	return hash, nil
}

func contentHash(resp cacheexec.Response) (string, error) {
	raw, err := json.Marshal(resp.Rows)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// backoffDelay returns the exponential delay for the nth consecutive
// failure, capped at MaxBackoff.
func backoffDelay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = MaxBackoff
	b.MaxElapsedTime = 0

	var d time.Duration
	for i := 0; i < failures; i++ {
		d = b.NextBackOff()
	}
	if d <= 0 || d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}
