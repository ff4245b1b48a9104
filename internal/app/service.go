// Package service provides the reconciliation engine that keeps the
// exercise library's task linkage and per-exercise counters consistent
// with the feedback subsystem and the remote catalog.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/drillbook/internal/adapters/catalog"
	feedbackbus "github.com/okian/drillbook/internal/adapters/mq/bus"
	"github.com/okian/drillbook/internal/domain/identity"
	"github.com/okian/drillbook/internal/domain/linkage"
	"github.com/okian/drillbook/internal/domain/model"
	"github.com/okian/drillbook/internal/domain/overlay"
	"github.com/okian/drillbook/internal/domain/types"
	"github.com/okian/drillbook/pkg/logger"
	"github.com/okian/drillbook/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultIdentityCacheSize = 50000
	defaultRefreshDebounce   = 250 * time.Millisecond
	refreshTimeout           = 10 * time.Second
)

// pendingSave is the snapshot taken right before an optimistic counter
// apply, kept until the save is confirmed or reported failed.
type pendingSave struct {
	exerciseID  string
	prev        model.Counters // state restored on rollback
	hadOverride bool           // false means rollback clears the override
	applied     model.Counters // state this save produced
	incremented bool
	key         identity.Key
	hasKey      bool
}

// Service owns the linkage registry, counter overlay, execution identity
// tracker and pending-rollback map. No other component mutates them.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	source catalog.Source
	bus    feedbackbus.Bus

	// Core state
	registry *linkage.Registry
	overlay  *overlay.Store
	tracker  identity.Tracker

	pending       map[string]pendingSave // optimistic id -> snapshot
	latestPending map[string]string      // exercise id -> newest pending optimistic id
	confirmed     map[string]bool        // optimistic ids already incorporated

	// Last full fetch
	exercises []model.Exercise
	byID      map[string]model.Exercise

	// Configuration
	scope             catalog.Scope
	identityCacheSize int
	refreshDebounce   time.Duration

	// Lifecycle
	started    bool
	generation uint64 // bumped on stop; stale fetch results are discarded
	sub        *feedbackbus.Subscription
	dispatched chan struct{}

	// Debounced refetch
	refreshMu    sync.Mutex
	refreshTimer *time.Timer

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the exercise/task data source.
func WithSource(source catalog.Source) Option {
	return func(s *Service) {
		if source != nil {
			s.source = source
		}
	}
}

// WithBus sets the feedback event bus to subscribe to.
func WithBus(b feedbackbus.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithScope sets the catalog scope fetched on refresh.
func WithScope(scope catalog.Scope) Option {
	return func(s *Service) {
		s.scope = scope
	}
}

// WithIdentityCacheSize bounds the execution identity cache.
func WithIdentityCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.identityCacheSize = size
		}
	}
}

// WithRefreshDebounce sets the delay before an event-triggered refetch.
func WithRefreshDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshDebounce = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		identityCacheSize: defaultIdentityCacheSize,
		refreshDebounce:   defaultRefreshDebounce,
		pending:           make(map[string]pendingSave),
		latestPending:     make(map[string]string),
		confirmed:         make(map[string]bool),
		byID:              make(map[string]model.Exercise),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes state, performs the initial catalog load and begins
// consuming feedback events. A failed initial load leaves the service
// running with an empty catalog; the caller may Refresh again.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.source == nil {
		s.source = catalog.NewMemorySource()
	}
	if s.bus == nil {
		s.bus = feedbackbus.NewInMemoryBus()
	}

	s.registry = linkage.NewRegistry()
	s.overlay = overlay.NewStore()
	s.tracker = identity.NewInMemoryTracker(identity.WithMaxSize(s.identityCacheSize))
	s.started = true
	s.mu.Unlock()

	s.logger.Info(ctx, "starting library reconciliation service",
		logger.String("scope", string(s.scope)),
		logger.Int("identityCacheSize", s.identityCacheSize),
	)

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "initial catalog load failed; will retry on demand", logger.Error(err))
	}

	sub := s.bus.Subscribe(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.sub = sub
	s.dispatched = done
	s.mu.Unlock()

	go s.dispatch(sub, done)

	return nil
}

// dispatch drains the subscription on a single goroutine, preserving
// delivery order across events for the same exercise.
func (s *Service) dispatch(sub *feedbackbus.Subscription, done chan struct{}) {
	defer close(done)
	ctx := context.Background()
	for e := range sub.C() {
		switch ev := e.(type) {
		case model.FeedbackSaved:
			s.HandleFeedbackSaved(ctx, ev)
		case model.FeedbackSaveFailed:
			s.HandleFeedbackSaveFailed(ctx, ev)
		default:
			s.logger.Warn(ctx, "unknown feedback event type", logger.Any("event", e))
		}
	}
}

// Stop cancels the bus subscription, waits for the dispatch loop to
// drain and discards in-flight fetch results. No handler runs after
// Stop returns.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	sub := s.sub
	done := s.dispatched
	s.sub = nil
	s.dispatched = nil
	s.started = false
	s.generation++
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if done != nil {
		<-done
	}

	s.refreshMu.Lock()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.refreshMu.Unlock()

	s.logger.Info(context.Background(), "library reconciliation service stopped")
}

// Refresh refetches exercises, link records and tasks, rebuilds the
// linkage map, reconciles the added flags against the live task list and
// confirms pending saves that predate the fetch. Safe to invoke
// redundantly; a result arriving after Stop is discarded.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return ErrNotStarted
	}
	gen := s.generation
	scope := s.scope
	confirmable := make([]string, 0, len(s.pending))
	for optimisticID := range s.pending {
		confirmable = append(confirmable, optimisticID)
	}
	s.mu.RUnlock()

	exercises, err := s.source.FetchExercises(ctx, scope)
	if err != nil {
		metrics.RecordRefreshError()
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	links, err := s.source.FetchExplicitLinks(ctx)
	if err != nil {
		metrics.RecordRefreshError()
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	tasks, err := s.source.FetchTasks(ctx)
	if err != nil {
		metrics.RecordRefreshError()
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || gen != s.generation {
		// The owning scope went away while the fetch was in flight.
		return nil
	}

	resolved := linkage.Resolve(exercises, tasks, links, s.registry.Links())
	s.registry.Adopt(resolved)

	liveIDs := make([]string, len(tasks))
	for i, t := range tasks {
		liveIDs[i] = t.ID
	}
	if cleared := s.registry.Reconcile(liveIDs); len(cleared) > 0 {
		s.logger.Info(ctx, "cleared linkage for externally deleted tasks",
			logger.Int("count", len(cleared)),
		)
	}

	s.exercises = exercises
	s.byID = make(map[string]model.Exercise, len(exercises))
	for _, ex := range exercises {
		s.byID[ex.ID] = ex
	}

	// Saves applied before this fetch are now incorporated server-side;
	// their snapshots are spent.
	for _, optimisticID := range confirmable {
		p, ok := s.pending[optimisticID]
		if !ok {
			continue
		}
		delete(s.pending, optimisticID)
		s.confirmed[optimisticID] = true
		if s.latestPending[p.exerciseID] == optimisticID {
			delete(s.latestPending, p.exerciseID)
		}
	}

	metrics.RecordRefresh()
	metrics.UpdateExercisesTotal(len(exercises))
	metrics.UpdatePendingRollbacks(len(s.pending))
	metrics.UpdateOverlaySize(s.overlay.Len())

	return nil
}

// Exercises returns the read model: every exercise with overlay-merged
// counters and its added flag.
func (s *Service) Exercises(_ context.Context) ([]types.ExerciseView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	views := make([]types.ExerciseView, len(s.exercises))
	for i, ex := range s.exercises {
		merged := s.overlay.Merge(ex)
		count := 0
		if merged.ExecutionCount != nil {
			count = *merged.ExecutionCount
		}
		views[i] = types.ExerciseView{
			ID:             merged.ID,
			Title:          merged.Title,
			Description:    merged.Description,
			VideoIdentity:  merged.VideoIdentity,
			LastScore:      merged.LastScore,
			ExecutionCount: count,
			Added:          s.registry.IsAdded(merged.ID),
		}
	}
	return views, nil
}

// AddTask converts an exercise into a recurring task. On success the
// added flag and the linkage entry are recorded together; on failure
// neither is touched and the caller may retry.
func (s *Service) AddTask(ctx context.Context, exerciseID string) (model.Task, error) {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return model.Task{}, ErrNotStarted
	}
	gen := s.generation
	ex, known := s.byID[exerciseID]
	s.mu.RUnlock()

	if !known {
		return model.Task{}, fmt.Errorf("%w: %s", ErrUnknownExercise, exerciseID)
	}

	task, err := s.source.CreateTask(ctx, ex)
	if err != nil {
		metrics.RecordTaskCreateFailure()
		return model.Task{}, fmt.Errorf("%w: %w", ErrCreateTask, err)
	}

	s.mu.Lock()
	if !s.started || gen != s.generation {
		s.mu.Unlock()
		return task, nil
	}
	s.registry.MarkAdded(ex.ID, task.ID)
	s.mu.Unlock()

	metrics.RecordTaskCreated()
	s.logger.Info(ctx, "exercise converted to task",
		logger.String("exerciseID", ex.ID),
		logger.String("taskID", task.ID),
	)

	s.scheduleRefresh()
	return task, nil
}

// HandleFeedbackSaved applies one feedback-saved notification to the
// exercise counters. Counter mutation is skipped for duplicate
// deliveries and for events that cannot be attributed to an exercise;
// in every case an eventual refetch is scheduled.
func (s *Service) HandleFeedbackSaved(ctx context.Context, ev model.FeedbackSaved) {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()
		return
	}

	// Duplicate delivery of an already applied save.
	if ev.OptimisticID != "" {
		_, stillPending := s.pending[ev.OptimisticID]
		if stillPending || s.confirmed[ev.OptimisticID] {
			s.mu.Unlock()
			metrics.RecordEventDuplicate()
			s.scheduleRefresh()
			return
		}
	}

	exerciseID, resolved := s.registry.ExerciseFor(ev.TemplateID)
	if ev.TemplateID == "" || !resolved {
		s.mu.Unlock()
		metrics.RecordEventUnresolved()
		s.logger.Warn(ctx, "feedback event references unlinked template; skipping counters",
			logger.String("templateID", ev.TemplateID),
			logger.String("optimisticID", ev.OptimisticID),
		)
		s.scheduleRefresh()
		return
	}

	// Baseline execution count: newest pending snapshot for this
	// exercise, else the current override, else the fetched value.
	prev, hadOverride := s.overlay.Get(exerciseID)
	base := 0
	switch {
	case s.latestPending[exerciseID] != "":
		if p, ok := s.pending[s.latestPending[exerciseID]]; ok && p.applied.ExecutionCount != nil {
			base = *p.applied.ExecutionCount
		}
	case hadOverride:
		if prev.ExecutionCount != nil {
			base = *prev.ExecutionCount
		}
	default:
		if fetched, ok := s.byID[exerciseID]; ok && fetched.ExecutionCount != nil {
			base = *fetched.ExecutionCount
		}
	}

	taskRef := ev.TaskInstanceID
	if taskRef == "" {
		taskRef = ev.TemplateID
	}
	key, identifiable := identity.NewKey(exerciseID, ev.ActivityID, taskRef)
	increment := 0
	if identifiable {
		if !s.tracker.SeenAndRecord(ctx, key) {
			increment = 1
		}
	} else {
		metrics.RecordEventNonIdentifiable()
	}

	applied := model.Counters{
		LastScore:      ev.Rating,
		ExecutionCount: model.Count(max(0, base+increment)),
	}
	s.overlay.Set(exerciseID, applied)

	if ev.OptimisticID != "" {
		s.pending[ev.OptimisticID] = pendingSave{
			exerciseID:  exerciseID,
			prev:        prev,
			hadOverride: hadOverride,
			applied:     applied,
			incremented: increment == 1,
			key:         key,
			hasKey:      identifiable,
		}
		s.latestPending[exerciseID] = ev.OptimisticID
	}

	metrics.RecordEventApplied()
	metrics.UpdateOverlaySize(s.overlay.Len())
	metrics.UpdatePendingRollbacks(len(s.pending))
	metrics.UpdateIdentitySize(s.tracker.Size())

	s.mu.Unlock()

	// Event-driven counters bridge until server truth lands.
	s.scheduleRefresh()
}

// HandleFeedbackSaveFailed reverses the counter change of the matching
// optimistic save, exactly. Without a matching pending snapshot there is
// nothing to undo.
func (s *Service) HandleFeedbackSaveFailed(ctx context.Context, ev model.FeedbackSaveFailed) {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()
		return
	}

	p, ok := s.pending[ev.OptimisticID]
	if !ok {
		s.mu.Unlock()
		metrics.RecordRollbackOrphaned()
		s.logger.Debug(ctx, "save-failed without pending snapshot; nothing to undo",
			logger.String("optimisticID", ev.OptimisticID),
		)
		return
	}

	if p.hadOverride {
		s.overlay.Set(p.exerciseID, p.prev)
	} else {
		s.overlay.Clear(p.exerciseID)
	}
	if p.incremented && p.hasKey {
		// The increment never happened; let a corrected retry count again.
		s.tracker.Forget(ctx, p.key)
	}
	delete(s.pending, ev.OptimisticID)
	if s.latestPending[p.exerciseID] == ev.OptimisticID {
		delete(s.latestPending, p.exerciseID)
	}

	metrics.RecordRollbackApplied()
	metrics.UpdateOverlaySize(s.overlay.Len())
	metrics.UpdatePendingRollbacks(len(s.pending))
	metrics.UpdateIdentitySize(s.tracker.Size())

	s.mu.Unlock()

	s.logger.Info(ctx, "rolled back optimistic counters",
		logger.String("exerciseID", p.exerciseID),
		logger.String("optimisticID", ev.OptimisticID),
	)
}

// scheduleRefresh arms a one-shot debounced refetch. Failures are logged
// and never touch already-applied overlay state.
func (s *Service) scheduleRefresh() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		return
	}
	s.refreshTimer = time.AfterFunc(s.refreshDebounce, func() {
		s.refreshMu.Lock()
		s.refreshTimer = nil
		s.refreshMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn(ctx, "event-triggered refetch failed", logger.Error(err))
		}
	})
}

// Publish forwards a feedback event onto the bus, for inbound adapters.
func (s *Service) Publish(ctx context.Context, e feedbackbus.Event) bool {
	s.mu.RLock()
	b := s.bus
	started := s.started
	s.mu.RUnlock()
	if !started || b == nil {
		return false
	}
	return b.Publish(ctx, e)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"scope":     string(s.scope),
		"exercises": len(s.exercises),
	}
	if s.started {
		stats["overrides"] = s.overlay.Len()
		stats["pendingRollbacks"] = len(s.pending)
		stats["linkedExercises"] = s.registry.Len()
		stats["trackedIdentities"] = s.tracker.Size()
	}
	return stats
}
