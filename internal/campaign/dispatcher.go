package campaign

import (
	"context"
	"strconv"
	"time"

	"github.com/k3a/html2text"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/model"
)

// DefaultPacing is the pause after each successful send.
const DefaultPacing = 300 * time.Millisecond

// Campaign is one dispatch request. Candidates is materialized once, before
// the run starts.
type Campaign struct {
	Subject    string
	HTML       string
	Candidates []string
	DailyCap   int
}

// Report counts campaign outcomes. Skipped counts candidates never
// attempted because the cap was reached or the run stopped.
type Report struct {
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Suppressed int `json:"suppressed"`
	Skipped    int `json:"skipped"`
}

// SuppressionChecker reports whether an address has opted out.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// CandidateSource lists the addresses eligible for a campaign.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]string, error)
}

// LoadCandidates materializes the recipient list: every stored lead email
// not on the suppression list, in insertion order.
func LoadCandidates(ctx context.Context, src CandidateSource) ([]string, error) {
	c, err := src.Candidates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: load candidates")
	}
	return c, nil
}

// Outcome describes one send attempt, for metrics.
type Outcome struct {
	To     string
	Status int
	Err    error
}

// Dispatcher sends campaigns through a Transport.
type Dispatcher struct {
	transport  Transport
	from       Address
	replyTo    string
	pacing     time.Duration
	suppressed SuppressionChecker
	observe    func(Outcome)
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithReplyTo sets the Reply-To address on every message.
func WithReplyTo(addr string) Option {
	return func(d *Dispatcher) {
		d.replyTo = addr
	}
}

// WithPacing overrides DefaultPacing. Zero disables pacing.
func WithPacing(p time.Duration) Option {
	return func(d *Dispatcher) {
		d.pacing = p
	}
}

// WithSuppressionRecheck checks each recipient against the live suppression
// list right before sending, catching opt-outs recorded mid-campaign.
func WithSuppressionRecheck(c SuppressionChecker) Option {
	return func(d *Dispatcher) {
		d.suppressed = c
	}
}

// WithObserver registers a callback invoked after every send attempt.
func WithObserver(fn func(Outcome)) Option {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// NewDispatcher creates a Dispatcher sending as from.
func NewDispatcher(t Transport, from Address, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		from:      from,
		pacing:    DefaultPacing,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run sends c.HTML to each candidate in order until the list is exhausted
// or c.DailyCap messages have been accepted. A failed recipient is logged
// and skipped. A configuration error (such as a missing credential) would
// fail every recipient, so it stops the run and is returned. Context
// cancellation also stops the run; the partial report is still returned.
func (d *Dispatcher) Run(ctx context.Context, c Campaign) (Report, error) {
	var r Report
	if c.DailyCap <= 0 {
		return r, &model.InputError{Field: "daily_cap", Value: strconv.Itoa(c.DailyCap), Msg: "must be positive"}
	}

	plain := html2text.HTML2Text(c.HTML)
	log := zap.L().With(zap.String("subject", c.Subject), zap.Int("daily_cap", c.DailyCap))
	log.Info("campaign: starting", zap.Int("candidates", len(c.Candidates)))

	for i, to := range c.Candidates {
		if r.Sent >= c.DailyCap {
			r.Skipped = len(c.Candidates) - i
			break
		}
		if err := ctx.Err(); err != nil {
			r.Skipped = len(c.Candidates) - i
			return r, eris.Wrap(err, "campaign: run interrupted")
		}

		if d.suppressed != nil {
			ok, err := d.suppressed.IsSuppressed(ctx, to)
			if err != nil {
				log.Warn("campaign: suppression check failed", zap.String("to", to), zap.Error(err))
			}
			if ok {
				r.Suppressed++
				continue
			}
		}

		status, err := d.transport.Send(ctx, d.message(to, c.Subject, c.HTML, plain))
		if d.observe != nil {
			d.observe(Outcome{To: to, Status: status, Err: err})
		}
		if err != nil {
			if model.IsConfigurationError(err) {
				r.Skipped = len(c.Candidates) - i
				return r, err
			}
			r.Failed++
			log.Warn("campaign: send failed", zap.String("to", to), zap.Int("status", status), zap.Error(err))
			continue
		}

		r.Sent++
		log.Debug("campaign: sent", zap.String("to", to), zap.Int("status", status))

		if d.pacing > 0 {
			if err := d.sleep(ctx, d.pacing); err != nil {
				r.Skipped = len(c.Candidates) - i - 1
				return r, eris.Wrap(err, "campaign: run interrupted")
			}
		}
	}

	log.Info("campaign: finished",
		zap.Int("sent", r.Sent),
		zap.Int("failed", r.Failed),
		zap.Int("suppressed", r.Suppressed),
		zap.Int("skipped", r.Skipped),
	)
	return r, nil
}

// Preview sends exactly one message to a single address, ignoring the cap
// and pacing. With a suppression recheck configured, suppressed addresses
// are refused. Errors are returned, not absorbed.
func (d *Dispatcher) Preview(ctx context.Context, subject, html, to string) (int, error) {
	if !model.ValidEmail(to) {
		return 0, &model.InputError{Field: "to", Value: to, Msg: "not a valid email address"}
	}
	if d.suppressed != nil {
		ok, err := d.suppressed.IsSuppressed(ctx, to)
		if err != nil {
			return 0, eris.Wrap(err, "campaign: preview suppression check")
		}
		if ok {
			return 0, &model.InputError{Field: "to", Value: to, Msg: "address is suppressed"}
		}
	}
	status, err := d.transport.Send(ctx, d.message(to, subject, html, html2text.HTML2Text(html)))
	if d.observe != nil {
		d.observe(Outcome{To: to, Status: status, Err: err})
	}
	if err != nil {
		return status, eris.Wrap(err, "campaign: preview")
	}
	return status, nil
}

func (d *Dispatcher) message(to, subject, html, plain string) Message {
	return Message{
		From:      d.from,
		To:        []string{to},
		ReplyTo:   d.replyTo,
		Subject:   subject,
		HTMLBody:  html,
		PlainBody: plain,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
