package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// ErrNoProviders is returned when no candidate provider is available.
var ErrNoProviders = errors.New("no AI provider is available")

const (
	defaultQueryTimeout = 2 * time.Minute
	defaultProbeTimeout = 5 * time.Second
)

// Options controls candidate ordering and per-call limits.
type Options struct {
	Default      string
	Fallback     bool
	Order        []string
	QueryTimeout time.Duration
	ProbeTimeout time.Duration

	// BreakerFailures is the number of consecutive failures that opens a
	// provider's circuit. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// OptionsFromConfig maps the ai config section onto registry options.
func OptionsFromConfig(cfg model.AIConfig) Options {
	return Options{
		Default:         cfg.DefaultProvider,
		Fallback:        cfg.Fallback,
		Order:           cfg.Order,
		QueryTimeout:    cfg.QueryTimeout,
		ProbeTimeout:    cfg.ProbeTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}
}

// Registry holds the configured providers and queries them in priority
// order, falling back to the next on failure.
type Registry struct {
	providers map[string]Provider
	order     []string
	opts      Options
	breakers  map[string]*gobreaker.CircuitBreaker
	log       zerolog.Logger
}

// NewRegistry creates a registry over providers. Providers not named in
// opts.Order are appended in registration order.
func NewRegistry(opts Options, log zerolog.Logger, providers ...Provider) *Registry {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		opts:      opts,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		log:       log.With().Str("component", "ai").Logger(),
	}

	var registered []string
	for _, p := range providers {
		name := p.Name()
		if _, dup := r.providers[name]; dup {
			continue
		}
		r.providers[name] = p
		registered = append(registered, name)
		if opts.BreakerFailures > 0 {
			r.breakers[name] = r.newBreaker(name)
		}
	}

	seen := make(map[string]bool)
	for _, name := range append(append([]string{}, opts.Order...), registered...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := r.providers[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		r.order = append(r.order, name)
	}

	return r
}

func (r *Registry) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := r.opts.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit changed state")
		},
	})
}

// Provider returns the registered provider with the given name.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names lists registered providers in priority order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// candidates returns the de-duplicated walk order: requested, default,
// then the priority order. Unknown names are kept so they can be
// recorded as unavailable.
func (r *Registry) candidates(requested string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	add(requested)
	add(r.opts.Default)
	for _, name := range r.order {
		add(name)
	}
	return out
}

// probe reports why name cannot be queried right now, or nil.
func (r *Registry) probe(ctx context.Context, name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if cb := r.breakers[name]; cb != nil && cb.State() == gobreaker.StateOpen {
		return p, gobreaker.ErrOpenState
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()
	return p, p.Available(probeCtx)
}

// ResolveOrder returns the providers Query would try for requested, in
// order, filtered to those currently available.
func (r *Registry) ResolveOrder(ctx context.Context, requested string) []Provider {
	var out []Provider
	for _, name := range r.candidates(requested) {
		p, err := r.probe(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Query asks each candidate in turn and returns the first non-empty
// answer. modelOverride applies only to the requested provider.
//
// When no candidate is available the error is a configuration failure.
// When every available candidate failed it is a *QueryError listing each
// attempt.
func (r *Registry) Query(ctx context.Context, prompt, requested, modelOverride string) (model.Answer, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))

	var attempts []Attempt
	tried := 0

	for _, name := range r.candidates(requested) {
		if err := ctx.Err(); err != nil {
			return model.Answer{}, fmt.Errorf("querying providers: %w", err)
		}
		if tried > 0 && !r.opts.Fallback {
			break
		}

		p, err := r.probe(ctx, name)
		if err != nil {
			a := Attempt{Provider: name, Class: ClassUnavailable, Err: err}
			if errors.Is(err, gobreaker.ErrOpenState) {
				a.Class = ClassCircuitOpen
			}
			if p != nil {
				a.Model = p.DefaultModel()
			}
			attempts = append(attempts, a)
			r.log.Debug().Str("provider", name).Err(err).Msg("provider skipped")
			continue
		}

		modelName := p.DefaultModel()
		if modelOverride != "" && name == requested {
			modelName = modelOverride
		}

		tried++
		start := time.Now()
		text, err := r.queryOne(ctx, p, prompt, modelName)
		if err != nil {
			a := Attempt{Provider: name, Model: modelName, Class: Classify(err), Err: err}
			attempts = append(attempts, a)
			r.log.Warn().
				Str("provider", name).
				Str("model", modelName).
				Str("class", string(a.Class)).
				Dur("elapsed", time.Since(start)).
				Err(err).
				Msg("provider query failed")
			continue
		}

		r.log.Info().
			Str("provider", name).
			Str("model", modelName).
			Dur("elapsed", time.Since(start)).
			Msg("provider answered")

		answer := model.Answer{
			Text:     text,
			Provider: name,
			Label:    p.Label(),
			Model:    modelName,
		}
		for _, a := range attempts {
			answer.Attempts = append(answer.Attempts, a.String())
		}
		return answer, nil
	}

	qe := &QueryError{Attempts: attempts}
	if tried == 0 {
		return model.Answer{}, &failure.Error{
			Kind:   failure.KindConfiguration,
			Stage:  failure.StageQuery,
			Reason: ErrNoProviders.Error(),
			Err:    qe,
		}
	}
	return model.Answer{}, qe
}

func (r *Registry) queryOne(ctx context.Context, p Provider, prompt, modelName string) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	call := func() (string, error) {
		text, err := p.Query(qctx, prompt, modelName)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	}

	cb := r.breakers[p.Name()]
	if cb == nil {
		return call()
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// Info describes one provider for diagnostics.
type Info struct {
	Name      string
	Label     string
	Model     string
	Available bool
	Reason    string
	Breaker   string
}

// Describe probes every registered provider in priority order.
func (r *Registry) Describe(ctx context.Context) []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		p := r.providers[name]
		info := Info{
			Name:  name,
			Label: p.Label(),
			Model: p.DefaultModel(),
		}
		if _, err := r.probe(ctx, name); err != nil {
			info.Reason = err.Error()
		} else {
			info.Available = true
		}
		if cb := r.breakers[name]; cb != nil {
			info.Breaker = cb.State().String()
		}
		out = append(out, info)
	}
	return out
}
