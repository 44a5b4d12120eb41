// Package service orchestrates one chat turn end to end and backs the
// history and user-identity operations. Both transports (D-Bus and local
// HTTP) dispatch here, so behavior cannot drift between them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cmdline-assistant/clad/internal/cache"
	"github.com/cmdline-assistant/clad/internal/domain"
	"github.com/cmdline-assistant/clad/internal/history"
	"github.com/cmdline-assistant/clad/internal/metrics"
	"github.com/cmdline-assistant/clad/internal/session"
	"github.com/cmdline-assistant/clad/internal/sysinfo"
	"github.com/cmdline-assistant/clad/internal/telemetry"
	"github.com/cmdline-assistant/clad/internal/translate"
)

// Backend issues one physical call per Send.
type Backend interface {
	Send(ctx context.Context, query domain.BackendQuery) (*domain.BackendAnswer, error)
}

type Config struct {
	Backend  Backend
	Enricher *sysinfo.Enricher
	Sessions *session.Manager

	// Store may be nil when the history store could not be opened;
	// chat still works, history operations fail with
	// domain.ErrHistoryDisabled.
	Store history.Store

	// Cache is optional.
	Cache    cache.Cache
	CacheTTL time.Duration
}

type Service struct {
	backend  Backend
	enricher *sysinfo.Enricher
	sessions *session.Manager
	store    history.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

func New(cfg Config) *Service {
	return &Service{
		backend:  cfg.Backend,
		enricher: cfg.Enricher,
		sessions: cfg.Sessions,
		store:    cfg.Store,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
	}
}

// AskResult is one completed turn, before any transport-specific shaping.
type AskResult struct {
	Answer     domain.BackendAnswer
	Question   string
	ResponseID string
	CacheHit   bool
}

// Ask runs the full chat pipeline: translate, call the backend, record the
// turn. Translation failures short-circuit before any backend call. A
// failed backend call writes nothing to history; a history failure never
// fails the chat call that already succeeded.
func (s *Service) Ask(ctx context.Context, sessionID string, req domain.ChatRequest, terminalHint string) (*AskResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Ask")
	defer span.End()

	query, err := translate.ToBackendQuery(req, s.enricher.Build(terminalHint))
	if err != nil {
		return nil, err
	}

	result := &AskResult{
		Question:   query.Question,
		ResponseID: translate.NewResponseID(),
	}

	cacheKey := cache.Key(req.Model, query.Question)
	if s.cache != nil {
		if answer, ok := s.cache.Get(ctx, cacheKey); ok {
			metrics.CacheHits.Inc()
			result.Answer = *answer
			result.CacheHit = true
			s.record(ctx, sessionID, result)
			return result, nil
		}
		metrics.CacheMisses.Inc()
	}

	answer, err := s.backend.Send(ctx, query)
	if err != nil {
		var berr *domain.BackendError
		if errors.As(err, &berr) {
			metrics.RecordBackendError(berr.Kind.String())
		}
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}
	result.Answer = *answer

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, answer, s.cacheTTL); err != nil {
			slog.Warn("failed to cache answer", "error", err)
		}
	}

	s.record(ctx, sessionID, result)

	return result, nil
}

// record appends the turn to history. It is skipped when the caller has
// already disconnected, so no orphaned turns get written, and it degrades
// to a log entry when the store is absent or failing.
func (s *Service) record(ctx context.Context, sessionID string, result *AskResult) {
	if ctx.Err() != nil {
		slog.Debug("caller gone, discarding result", "session_id", sessionID)
		return
	}
	if s.store == nil {
		slog.Debug("history store not configured, turn not recorded")
		return
	}

	// the turn is already complete; give the append its own deadline
	// instead of inheriting a nearly-exhausted request context
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := s.store.Append(appendCtx, sessionID, result.Question, result.Answer.Text); err != nil {
		metrics.RecordHistoryAppend("error")
		slog.Error("failed to record turn", "session_id", sessionID, "error", err)
		return
	}
	metrics.RecordHistoryAppend("ok")
}

// History returns a session's turns, most recent first.
func (s *Service) History(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error) {
	if s.store == nil {
		return nil, domain.ErrHistoryDisabled
	}
	return s.store.List(ctx, sessionID, limit, offset)
}

// PurgeHistory removes a whole session.
func (s *Service) PurgeHistory(ctx context.Context, sessionID string) error {
	if s.store == nil {
		return domain.ErrHistoryDisabled
	}
	return s.store.Purge(ctx, sessionID)
}

// UserID resolves the stable identity for an effective uid.
func (s *Service) UserID(uid uint32) string {
	return s.sessions.UserID(uid)
}
