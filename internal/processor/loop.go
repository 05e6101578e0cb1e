// Package processor runs the mail-to-answer pipeline: poll the mailbox,
// pick requests, extract their documents, ask the AI, and mail the
// answer back.
package processor

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailai/internal/email"
	"github.com/nhle/mailai/internal/extract"
	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/prompt"
)

// recordTimeout bounds writing one cycle to the journal.
const recordTimeout = 10 * time.Second

// Mailbox is the source of candidate messages.
type Mailbox interface {
	Poll(ctx context.Context, h email.Handler, opts email.PollOptions) (email.PollStats, error)
}

// Answerer produces an answer for a prompt.
type Answerer interface {
	Query(ctx context.Context, prompt, provider, model string) (model.Answer, error)
}

// Sender delivers a composed reply.
type Sender interface {
	Send(ctx context.Context, reply model.OutboundReply) error
}

// Recorder persists finished cycle reports.
type Recorder interface {
	RecordCycle(ctx context.Context, report *model.CycleReport) error
}

// Deps are the loop's collaborators. Recorder may be nil.
type Deps struct {
	Mailbox  Mailbox
	Answerer Answerer
	Sender   Sender
	Recorder Recorder
}

// Options tune one ProcessOnce or Monitor call.
type Options struct {
	// Provider is tried first when set.
	Provider string

	// Model overrides the model of Provider.
	Model string

	// MaxMessages caps the messages handled per cycle. Zero uses the
	// configured default; a negative value means no cap.
	MaxMessages int

	// Interval is the Monitor period. Zero uses the configured default.
	Interval time.Duration

	// OnCycle, when set, is called with every finished report.
	OnCycle func(*model.CycleReport)
}

// State is the loop's current activity.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Status is a snapshot of the loop for display.
type Status struct {
	State      State
	Cycles     int
	LastCycle  time.Time
	LastCounts model.CycleCounts
	LastError  error
}

// Loop is the single sequential worker that processes requests.
type Loop struct {
	deps      Deps
	filter    *email.Filter
	extractor *extract.Extractor
	prompts   *prompt.Builder
	composer  *email.Composer

	interval     time.Duration
	maxMessages  int
	cycleTimeout time.Duration

	log zerolog.Logger

	mu     gosync.Mutex
	status Status
}

// New builds a loop from configuration and collaborators.
func New(cfg *model.AppConfig, deps Deps, log zerolog.Logger) *Loop {
	from := cfg.SMTP.From
	if from == "" {
		from = cfg.IMAP.Username
	}
	return &Loop{
		deps:         deps,
		filter:       email.NewFilter(cfg.Filter.Keywords),
		extractor:    extract.New(cfg.Extract),
		prompts:      prompt.NewBuilder(cfg.Prompt),
		composer:     email.NewComposer(from),
		interval:     cfg.Loop.Interval,
		maxMessages:  cfg.Loop.MaxMessages,
		cycleTimeout: cfg.Loop.CycleTimeout,
		log:          log.With().Str("component", "processor").Logger(),
	}
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loop) setState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = state
}

// ProcessOnce runs a single cycle. Cancelling ctx stops the cycle before
// the next message; the message in flight is finished.
func (l *Loop) ProcessOnce(ctx context.Context, opts Options) *model.CycleReport {
	report := l.runCycle(ctx, model.ModeOnce, opts)
	l.setState(StateIdle)
	return report
}

// Monitor runs a cycle immediately and then once per interval until ctx
// is cancelled. It returns nil after a clean stop.
func (l *Loop) Monitor(ctx context.Context, opts Options) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = l.interval
	}
	if interval <= 0 {
		return failure.Configuration("monitor interval must be positive")
	}

	l.log.Info().Dur("interval", interval).Msg("monitoring mailbox")
	defer l.setState(StateStopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.runCycle(ctx, model.ModeMonitor, opts)
	l.setState(StateIdle)

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("monitor stopped")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			l.runCycle(ctx, model.ModeMonitor, opts)
			l.setState(StateIdle)
		}
	}
}

// runCycle polls once and handles every selected message. The cycle's
// own context outlives ctx so that a cancelled caller never interrupts a
// message half way; ctx only stops the cycle between messages.
func (l *Loop) runCycle(ctx context.Context, mode model.CycleMode, opts Options) *model.CycleReport {
	report := model.NewCycleReport(mode)
	log := l.log.With().Str("cycle", report.ID.String()).Str("mode", string(mode)).Logger()

	l.setState(StateRunning)

	cycleCtx, cancel := l.cycleContext(ctx)
	defer cancel()

	limit := opts.MaxMessages
	if limit == 0 {
		limit = l.maxMessages
	}
	if limit < 0 {
		limit = 0
	}

	h := &cycleHandler{loop: l, opts: opts, report: report, log: log}
	stats, err := l.deps.Mailbox.Poll(cycleCtx, h, email.PollOptions{
		Limit: limit,
		Stop:  ctx.Done(),
	})
	report.Err = err
	report.FinishedAt = time.Now()

	counts := report.Counts()
	event := log.Info()
	if err != nil {
		event = log.Error().Err(err).Str("kind", string(failure.KindOf(err)))
	}
	event.
		Int("unseen", stats.Unseen).
		Int("matched", stats.Matched).
		Int("delivered", counts.Delivered).
		Int("skipped", counts.Skipped).
		Int("failed", counts.Failed).
		Bool("stopped", stats.Stopped).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle finished")

	l.record(ctx, report, log)

	l.mu.Lock()
	l.status.Cycles++
	l.status.LastCycle = report.FinishedAt
	l.status.LastCounts = counts
	l.status.LastError = err
	l.mu.Unlock()

	if opts.OnCycle != nil {
		opts.OnCycle(report)
	}
	return report
}

func (l *Loop) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if l.cycleTimeout > 0 {
		return context.WithTimeout(detached, l.cycleTimeout)
	}
	return context.WithCancel(detached)
}

func (l *Loop) record(ctx context.Context, report *model.CycleReport, log zerolog.Logger) {
	if l.deps.Recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := l.deps.Recorder.RecordCycle(rctx, report); err != nil {
		log.Warn().Err(err).Msg("recording cycle")
	}
}

// handle runs the pipeline for one message. Every outcome is reported in
// the result; the error is non-nil only for failures that abort the
// cycle.
func (l *Loop) handle(
	ctx context.Context, msg *model.InboundMessage, opts Options, log zerolog.Logger,
) (model.ProcessingResult, error) {
	res := model.ProcessingResult{
		UID:     msg.UID,
		From:    msg.From.String(),
		Subject: msg.Subject,
	}

	manifest := l.extractor.ExtractAll(msg.Attachments)
	for _, r := range manifest {
		ev := log.Debug()
		if !r.Used() {
			ev = log.Info().Str("reason", r.Reason)
		}
		ev.Str("attachment", r.Filename).
			Str("outcome", string(r.Outcome)).
			Bool("truncated", r.Truncated).
			Msg("attachment processed")
	}

	p, ok := l.prompts.Build(msg, manifest)
	if !ok {
		res.Status = model.StatusSkipped
		res.Stage = failure.StageExtract
		res.Reason = "empty request"
		return res, nil
	}
	log.Debug().Str("template", p.Template).Int("prompt_chars", len(p.Text)).Msg("prompt built")

	answer, err := l.deps.Answerer.Query(ctx, p.Text, opts.Provider, opts.Model)
	if err != nil {
		fail(&res, failure.StageQuery, failure.KindProviderQuery, err)
		if failure.Is(err, failure.KindConfiguration) {
			return res, err
		}
		return res, nil
	}
	res.Provider = answer.Provider
	res.Model = answer.Model

	reply := l.composer.Compose(msg, answer, manifest)
	if err := l.deps.Sender.Send(ctx, reply); err != nil {
		fail(&res, failure.StageSend, failure.KindDelivery, err)
		return res, nil
	}

	res.Status = model.StatusDelivered
	return res, nil
}

// fail marks res failed. def is used when err carries no kind.
func fail(res *model.ProcessingResult, stage failure.Stage, def failure.Kind, err error) {
	res.Status = model.StatusFailed
	res.Stage = stage
	res.Kind = failure.KindOf(err)
	if res.Kind == failure.KindNone {
		res.Kind = def
	}
	res.Reason = err.Error()
}

// cycleHandler adapts a Loop to email.Handler for one cycle.
type cycleHandler struct {
	loop   *Loop
	opts   Options
	report *model.CycleReport
	log    zerolog.Logger
}

func (h *cycleHandler) Match(env model.Envelope) bool {
	return h.loop.filter.Matches(env.Subject)
}

func (h *cycleHandler) Process(
	ctx context.Context, msg *model.InboundMessage,
) (model.ProcessingResult, error) {
	log := h.log.With().Uint32("uid", msg.UID).Str("subject", msg.Subject).Logger()
	log.Info().Str("from", msg.From.Email).Int("attachments", len(msg.Attachments)).Msg("processing request")

	res, err := h.loop.handle(ctx, msg, h.opts, log)
	h.report.Add(res)

	ev := log.Info()
	if res.Status == model.StatusFailed {
		ev = log.Warn().Str("stage", string(res.Stage)).Str("kind", string(res.Kind))
	}
	ev.Str("status", string(res.Status)).
		Str("provider", res.Provider).
		Str("reason", res.Reason).
		Msg("request handled")

	if err != nil {
		return res, fmt.Errorf("aborting cycle: %w", err)
	}
	return res, nil
}

func (h *cycleHandler) Reject(env model.Envelope, err error) {
	res := model.ProcessingResult{
		UID:     env.UID,
		From:    env.From,
		Subject: env.Subject,
	}
	fail(&res, failure.StageOf(err), failure.KindConnection, err)
	if res.Stage == "" {
		res.Stage = failure.StageFetch
	}
	h.report.Add(res)
	h.log.Warn().Err(err).Uint32("uid", env.UID).Msg("request rejected")
}
