package stbtester

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/model"
)

// Store is the subset of the database layer needed by the syncer.
type Store interface {
	EnsureSTBNode(ctx context.Context, nodeID string) error
	ActiveNodeConfig(ctx context.Context, nodeID string) (model.STBNodeConfig, error)
	ReplaceNodeConfig(ctx context.Context, nodeID, natco string) (model.STBNodeConfig, error)
	ScriptNames(ctx context.Context) (map[string]int64, error)
	LatestResultStart(ctx context.Context, scriptID int64) (time.Time, error)
	InsertResults(ctx context.Context, results []model.STBResult) (int, error)
}

// API is the part of Client the syncer calls.
type API interface {
	Workgroup(ctx context.Context) ([]WorkgroupNode, error)
	Results(ctx context.Context, script string, since time.Time) ([]Result, error)
}

// Syncer periodically mirrors node configs and run results into a Store.
type Syncer struct {
	client API
	store  Store
	logger *slog.Logger
}

func NewSyncer(client API, store Store, logger *slog.Logger) *Syncer {
	return &Syncer{client: client, store: store, logger: logger}
}

// Run performs an immediate sync and then repeats every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	s.SyncOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping")
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce syncs node configs, then results.
func (s *Syncer) SyncOnce(ctx context.Context) {
	s.syncNodes(ctx)
	s.syncResults(ctx)
}

// syncNodes records the natco each node serves. A node whose friendly
// name changed gets its active config replaced.
func (s *Syncer) syncNodes(ctx context.Context) {
	nodes, err := s.client.Workgroup(ctx)
	if err != nil {
		s.logger.Error("get workgroup", "error", err)
		return
	}
	changed := 0
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if err := s.store.EnsureSTBNode(ctx, n.ID); err != nil {
			s.logger.Error("ensure node", "node", n.ID, "error", err)
			continue
		}
		cfg, err := s.store.ActiveNodeConfig(ctx, n.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("get node config", "node", n.ID, "error", err)
			continue
		}
		if err == nil && cfg.NatCo == n.FriendlyName {
			continue
		}
		if _, err := s.store.ReplaceNodeConfig(ctx, n.ID, n.FriendlyName); err != nil {
			s.logger.Error("replace node config", "node", n.ID, "error", err)
			continue
		}
		s.logger.Info("node config updated", "node", n.ID, "natco", n.FriendlyName, "previous", cfg.NatCo)
		changed++
	}
	s.logger.Info("synced nodes", "count", len(nodes), "changed", changed)
}

// syncResults fetches results per distinct script name since the newest
// stored result. Results of a name are attached to the newest script
// carrying it.
func (s *Syncer) syncResults(ctx context.Context) {
	scripts, err := s.store.ScriptNames(ctx)
	if err != nil {
		s.logger.Error("list script names", "error", err)
		return
	}
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		scriptID := scripts[name]
		since, err := s.store.LatestResultStart(ctx, scriptID)
		if err != nil {
			s.logger.Error("latest result", "script", name, "error", err)
			continue
		}
		results, err := s.client.Results(ctx, name, since)
		if err != nil {
			s.logger.Error("fetch results", "script", name, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		records := make([]model.STBResult, 0, len(results))
		for _, r := range results {
			records = append(records, model.STBResult{
				ResultID:      r.ResultID,
				JobUID:        r.JobUID,
				ResultURL:     r.ResultURL,
				TriageURL:     r.TriageURL,
				StartTime:     r.StartTime,
				EndTime:       r.EndTime,
				ScriptID:      scriptID,
				Result:        model.ResultOutcome(r.Result),
				FailureReason: r.FailureReason,
			})
		}
		n, err := s.store.InsertResults(ctx, records)
		if err != nil {
			s.logger.Error("store results", "script", name, "error", err)
			continue
		}
		total += n
	}
	s.logger.Info("synced results", "scripts", len(names), "inserted", total)
}
