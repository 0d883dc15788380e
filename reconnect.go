package gqlexec

import (
	"context"
	"time"

	log "github.com/jensneuse/abstractlogger"
	"go.opentelemetry.io/otel/trace"
)

// ReconnectPolicy decides whether a failed attempt is retried.
// The zero value runs a single attempt.
type ReconnectPolicy struct {
	interval time.Duration
	retry    bool
}

// NoReconnect runs the operation once.
func NoReconnect() ReconnectPolicy {
	return ReconnectPolicy{}
}

// ReconnectEvery retries a failed attempt after interval, indefinitely.
func ReconnectEvery(interval time.Duration) ReconnectPolicy {
	return ReconnectPolicy{interval: interval, retry: true}
}

// Interval returns the pause between attempts and whether retrying is enabled.
func (p ReconnectPolicy) Interval() (time.Duration, bool) {
	return p.interval, p.retry
}

// SleepFunc pauses for d, returning early with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reconnector drives an executor through repeated attempts.
type Reconnector struct {
	executor  Executor
	transport Transport
	policy    ReconnectPolicy
	sleep     SleepFunc
	logger    log.Logger
	tracer    trace.Tracer
}

// NewReconnector drives executor for the given transport. Only the logger,
// sleep and tracer options apply.
func NewReconnector(executor Executor, transport Transport, policy ReconnectPolicy, opts ...ClientOption) *Reconnector {
	client := &GraphQLClient{}
	for _, opt := range opts {
		opt(client)
	}
	client.setDefaults()
	return client.newReconnector(executor, transport, policy)
}

func (client *GraphQLClient) newReconnector(executor Executor, transport Transport, policy ReconnectPolicy) *Reconnector {
	return &Reconnector{
		executor:  executor,
		transport: transport,
		policy:    policy,
		sleep:     client.sleep,
		logger:    client.logger,
		tracer:    client.tracer,
	}
}

// Run executes attempts until one succeeds. A failed attempt is logged, not
// returned: without a reconnect interval Run returns nil after the first
// attempt whatever its outcome. Run only returns an error when ctx is done.
func (r *Reconnector) Run(ctx context.Context, req *Request, sink Sink) error {
	for attempt := 1; ; attempt++ {
		err := r.attempt(ctx, attempt, req.Clone(), sink)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Error("attempt failed",
			log.Int("attempt", attempt),
			log.String("endpoint", req.Endpoint),
			log.Error(err),
		)

		interval, retry := r.policy.Interval()
		if !retry {
			return nil
		}
		if err := r.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (r *Reconnector) attempt(ctx context.Context, attempt int, req *Request, sink Sink) error {
	ctx, span := startAttemptSpan(ctx, r.tracer, attempt, r.transport, req)
	defer span.End()

	err := r.executor.Execute(ctx, req, sink)
	endAttemptSpan(span, err)
	return err
}
