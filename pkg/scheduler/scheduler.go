package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/health"
	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/metrics"
	"github.com/edusync/idnsync/pkg/reconciler"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/state"
	"github.com/edusync/idnsync/pkg/types"
)

// SourceOpener opens a database connection for one tenant. The scheduler
// opens at the start of a tenant's turn and closes when the turn is over,
// so idle tenants hold no connections between rounds.
type SourceOpener func(ctx context.Context, tenant types.Tenant) (source.Gateway, error)

// Config wires the scheduler to everything one round needs.
type Config struct {
	// Tenants in round order. The first tenant marked Shared receives
	// the cross-tenant fan-out.
	Tenants []types.Tenant

	Directory  directory.Gateway
	Cipher     *cipher.Cipher
	OpenSource SourceOpener

	// Queue carries cross-tenant work between the tenant passes and the
	// shared drain. Nil disables fan-out.
	Queue *fanout.Queue

	// State persists read-only tenant watermarks across restarts. Nil
	// keeps them in memory only, which re-reads history after a restart
	// but never changes what gets applied.
	State *state.Store

	// Marker is the liveness file, touched at the start of every round.
	Marker *health.Marker

	// Rebind re-establishes the directory connection after it was lost,
	// typically Client.Rebind. Nil disables reconnect handling.
	Rebind func(ctx context.Context) error

	// RootDN and SharedBase are passed through to each tenant's
	// reconciler.
	RootDN     string
	SharedBase string

	// MaxRecords caps how many events one tenant may process per round.
	MaxRecords int

	// Sleep is the pause after a round in which no tenant hit
	// MaxRecords. A round where some tenant did is followed immediately
	// by the next one, so backlogs drain at full speed.
	Sleep time.Duration

	// FixedIV overrides the random password IV. Regression tests only.
	FixedIV []byte

	// Now is the clock used for timestamps. Nil means time.Now.
	Now func() time.Time
}

// Scheduler runs the endless round-robin over tenants. It is
// single-threaded: one tenant at a time, one event at a time, then the
// shared drain, then sleep.
type Scheduler struct {
	cfg    Config
	log    zerolog.Logger
	shared *types.Tenant

	// marks caches read-only watermarks so the state file is read once
	// per tenant per process lifetime.
	marks map[string]time.Time
}

// New creates a scheduler. When no tenant is marked shared the fan-out
// queue is dropped, so reconcilers never record work nobody will drain.
func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		cfg:   cfg,
		log:   log.WithComponent("scheduler"),
		marks: make(map[string]time.Time),
	}
	for i := range cfg.Tenants {
		if cfg.Tenants[i].Shared {
			s.shared = &cfg.Tenants[i]
			break
		}
	}
	if s.shared == nil && cfg.Queue != nil {
		s.log.Warn().Msg("no shared tenant configured, cross-tenant fan-out disabled")
		s.cfg.Queue = nil
	}
	return s
}

// Run loops rounds until ctx is cancelled and returns ctx's error. Per
// tenant failures never end the loop; they are logged and the tenant is
// retried next round.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Int("tenants", len(s.cfg.Tenants)).Int("max_records", s.cfg.MaxRecords).
		Dur("sleep", s.cfg.Sleep).Msg("starting sync loop")

	for {
		drainFast, err := s.Round(ctx)
		if err != nil {
			return err
		}
		if drainFast {
			s.log.Debug().Msg("a tenant hit the record limit, skipping sleep")
			continue
		}
		if err := sleep(ctx, s.cfg.Sleep); err != nil {
			return err
		}
	}
}

// Round runs one pass over all tenants followed by the shared drain. It
// reports whether any tenant hit MaxRecords, which tells Run to skip the
// sleep. The only returned error is ctx's.
func (s *Scheduler) Round(ctx context.Context) (bool, error) {
	// Tenant turns interleave in the logs; the round id ties one pass's
	// lines back together.
	rlog := s.log.With().Str("round", uuid.NewString()).Logger()

	if s.cfg.Marker != nil {
		if err := s.cfg.Marker.Touch(); err != nil {
			rlog.Warn().Err(err).Msg("liveness touch failed")
		}
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RoundDuration)

	drainFast := false
	for _, tenant := range s.cfg.Tenants {
		if err := ctx.Err(); err != nil {
			return drainFast, err
		}
		if s.tenantRound(ctx, rlog, tenant) {
			drainFast = true
		}
	}

	s.drainShared(ctx, rlog)
	metrics.RoundsTotal.Inc()
	return drainFast, ctx.Err()
}

// tenantRound processes one tenant's turn and reports whether it hit the
// record limit. All failures are contained here: events left unprocessed
// or unwritten stay pending and come back next round.
func (s *Scheduler) tenantRound(ctx context.Context, rlog zerolog.Logger, tenant types.Tenant) bool {
	tlog := rlog.With().Str("tenant", tenant.Database).Logger()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.TenantRoundDuration, tenant.Database)

	src, err := s.cfg.OpenSource(ctx, tenant)
	if err != nil {
		tlog.Error().Err(err).Msg("source unavailable, tenant skipped this round")
		return false
	}
	defer src.Close()

	var events []types.Event
	if tenant.ReadOnly {
		events, err = src.EventsSince(ctx, s.watermark(tenant.Database), s.cfg.MaxRecords)
	} else {
		events, err = src.PendingEvents(ctx, s.cfg.MaxRecords)
	}
	if err != nil {
		tlog.Error().Err(err).Msg("event query failed, tenant skipped this round")
		return false
	}
	metrics.EventsPendingGauge.WithLabelValues(tenant.Database).Set(float64(len(events)))
	if len(events) == 0 {
		tlog.Debug().Msg("no pending events")
		return false
	}
	tlog.Info().Int("events", len(events)).Msg("processing events")

	rec := reconciler.New(reconciler.Config{
		Tenant:     tenant,
		Source:     src,
		Directory:  s.cfg.Directory,
		Cipher:     s.cfg.Cipher,
		Queue:      s.cfg.Queue,
		RootDN:     s.cfg.RootDN,
		SharedBase: s.cfg.SharedBase,
		FixedIV:    s.cfg.FixedIV,
		Now:        s.cfg.Now,
	})

	updates := make([]source.EventUpdate, 0, len(events))
	var latest time.Time
	for _, ev := range events {
		// Stop between events on shutdown. Finished updates are still
		// written back below so their events are not reprocessed.
		if ctx.Err() != nil {
			break
		}
		upd := rec.ProcessEvent(ctx, ev)
		updates = append(updates, upd)
		metrics.EventsProcessedTotal.WithLabelValues(tenant.Database, string(upd.Status)).Inc()
		if ev.Time.After(latest) {
			latest = ev.Time
		}
	}

	if tenant.ReadOnly {
		s.advanceWatermark(tenant.Database, latest)
	} else if err := src.WriteBack(ctx, updates); err != nil {
		tlog.Error().Err(err).Msg("writeback failed, events stay pending")
	}

	if hasTransient(updates) {
		s.recoverDirectory(ctx)
	}
	return len(events) >= s.cfg.MaxRecords
}

// drainShared applies queued cross-tenant work to the shared tenant. The
// queue is only emptied once its source connection is up, so a down
// shared tenant keeps the work queued for the next round.
func (s *Scheduler) drainShared(ctx context.Context, rlog zerolog.Logger) {
	q := s.cfg.Queue
	if q == nil {
		return
	}
	metrics.FanoutQueueDepth.Set(float64(q.Len()))
	if q.Len() == 0 {
		return
	}
	defer func() { metrics.FanoutQueueDepth.Set(float64(q.Len())) }()

	src, err := s.cfg.OpenSource(ctx, *s.shared)
	if err != nil {
		rlog.Error().Err(err).Str("tenant", s.shared.Database).
			Msg("shared tenant source unavailable, fan-out stays queued")
		return
	}
	defer src.Close()

	rec := reconciler.New(reconciler.Config{
		Tenant:     *s.shared,
		Source:     src,
		Directory:  s.cfg.Directory,
		Cipher:     s.cfg.Cipher,
		RootDN:     s.cfg.RootDN,
		SharedBase: s.cfg.SharedBase,
		FixedIV:    s.cfg.FixedIV,
		Now:        s.cfg.Now,
	})
	if err := rec.DrainFanout(ctx, q); err != nil {
		rlog.Error().Err(err).Msg("fan-out drain interrupted")
	}
}

// watermark returns the read-only cursor for a tenant, loading it from
// the state store on first use. Missing state means the epoch, which
// re-reads the whole event history; the reconciler is idempotent so that
// is slow, not wrong.
func (s *Scheduler) watermark(tenant string) time.Time {
	if mark, ok := s.marks[tenant]; ok {
		return mark
	}

	mark := state.Epoch
	if s.cfg.State != nil {
		stored, err := s.cfg.State.Watermark(tenant)
		if err != nil {
			s.log.Warn().Err(err).Str("tenant", tenant).
				Msg("stored watermark unreadable, starting from the epoch")
		} else {
			mark = stored
		}
	}
	s.marks[tenant] = mark
	metrics.ReadOnlyWatermark.WithLabelValues(tenant).Set(float64(mark.Unix()))
	return mark
}

// advanceWatermark moves a read-only tenant's cursor to the newest event
// time seen, never backwards. Persistence failures are logged and the
// in-memory mark still advances; the next restart just re-reads.
func (s *Scheduler) advanceWatermark(tenant string, mark time.Time) {
	if mark.IsZero() || !mark.After(s.marks[tenant]) {
		return
	}
	s.marks[tenant] = mark
	metrics.ReadOnlyWatermark.WithLabelValues(tenant).Set(float64(mark.Unix()))

	if s.cfg.State == nil {
		return
	}
	if err := s.cfg.State.AdvanceWatermark(tenant, mark); err != nil {
		s.log.Error().Err(err).Str("tenant", tenant).Msg("watermark not persisted")
	}
}

// recoverDirectory probes the directory after transient event failures
// and rebinds when the connection is gone. Other transient causes are
// left to the per-event retry mechanism.
func (s *Scheduler) recoverDirectory(ctx context.Context) {
	if s.cfg.Rebind == nil {
		return
	}
	_, err := s.cfg.Directory.GetEntry(s.cfg.RootDN, []string{"objectClass"})
	if err == nil || !directory.IsUnavailable(err) {
		return
	}
	s.log.Warn().Err(err).Msg("directory connection lost, rebinding")
	if err := s.cfg.Rebind(ctx); err != nil {
		s.log.Error().Err(err).Msg("rebind failed")
	}
}

func hasTransient(updates []source.EventUpdate) bool {
	for _, upd := range updates {
		if upd.Status == types.StatusError {
			return true
		}
	}
	return false
}

// sleep pauses between rounds, returning early with ctx's error on
// shutdown.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
