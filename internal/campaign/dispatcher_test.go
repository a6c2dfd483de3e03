package campaign

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/model"
)

type sendFunc func(ctx context.Context, msg Message) (int, error)

func (f sendFunc) Send(ctx context.Context, msg Message) (int, error) { return f(ctx, msg) }

// recorder captures every message and fails the addresses in fail.
type recorder struct {
	sent []Message
	fail map[string]error
}

func (r *recorder) Send(_ context.Context, msg Message) (int, error) {
	r.sent = append(r.sent, msg)
	if err := r.fail[msg.To[0]]; err != nil {
		return http.StatusBadRequest, err
	}
	return http.StatusAccepted, nil
}

func (r *recorder) recipients() []string {
	var out []string
	for _, m := range r.sent {
		out = append(out, m.To...)
	}
	return out
}

var sender = Address{Email: "info@miamimasterflooring.com", Name: "Miami Master Flooring"}

func newTestDispatcher(t Transport, opts ...Option) (*Dispatcher, *[]time.Duration) {
	var sleeps []time.Duration
	d := NewDispatcher(t, sender, opts...)
	d.sleep = func(_ context.Context, p time.Duration) error {
		sleeps = append(sleeps, p)
		return nil
	}
	return d, &sleeps
}

func TestRun_SendsInOrderWithPacing(t *testing.T) {
	rec := &recorder{}
	d, sleeps := newTestDispatcher(rec, WithReplyTo("reply@miamimasterflooring.com"))

	rep, err := d.Run(context.Background(), Campaign{
		Subject:    "Premium Flooring",
		HTML:       "<p>Hello <b>there</b></p>",
		Candidates: []string{"a@x.com", "b@y.com", "c@z.com"},
		DailyCap:   150,
	})
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 3}, rep)
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, rec.recipients())
	assert.Equal(t, []time.Duration{DefaultPacing, DefaultPacing, DefaultPacing}, *sleeps)

	msg := rec.sent[0]
	assert.Equal(t, sender, msg.From)
	assert.Equal(t, "reply@miamimasterflooring.com", msg.ReplyTo)
	assert.Equal(t, "Premium Flooring", msg.Subject)
	assert.Equal(t, "<p>Hello <b>there</b></p>", msg.HTMLBody)
	assert.Contains(t, msg.PlainBody, "Hello")
	assert.NotContains(t, msg.PlainBody, "<p>")
}

func TestRun_StopsAtDailyCap(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec)

	candidates := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"}
	rep, err := d.Run(context.Background(), Campaign{Subject: "s", HTML: "<p>h</p>", Candidates: candidates, DailyCap: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, rec.recipients())
}

func TestRun_FailureSkipsAndContinues(t *testing.T) {
	rec := &recorder{fail: map[string]error{"b@x.com": errors.New("status 400")}}
	d, sleeps := newTestDispatcher(rec)

	rep, err := d.Run(context.Background(), Campaign{
		Subject:    "s",
		HTML:       "<p>h</p>",
		Candidates: []string{"a@x.com", "b@x.com", "c@x.com"},
		DailyCap:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 2, Failed: 1}, rep)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, rec.recipients())
	// Failures are not paced.
	assert.Len(t, *sleeps, 2)
}

func TestRun_ConfigurationErrorAborts(t *testing.T) {
	calls := 0
	tr := sendFunc(func(context.Context, Message) (int, error) {
		calls++
		return 0, &model.ConfigurationError{Msg: "api key missing"}
	})
	d, _ := newTestDispatcher(tr)

	rep, err := d.Run(context.Background(), Campaign{Subject: "s", HTML: "h", Candidates: []string{"a@x.com", "b@x.com"}, DailyCap: 10})
	require.Error(t, err)
	assert.True(t, model.IsConfigurationError(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, Report{Skipped: 2}, rep)
}

func TestRun_InvalidCap(t *testing.T) {
	d, _ := newTestDispatcher(&recorder{})
	for _, c := range []int{0, -1} {
		_, err := d.Run(context.Background(), Campaign{Candidates: []string{"a@x.com"}, DailyCap: c})
		require.Error(t, err)
		var ie *model.InputError
		assert.ErrorAs(t, err, &ie)
	}
}

func TestRun_EmptyCandidates(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec)
	rep, err := d.Run(context.Background(), Campaign{Subject: "s", HTML: "h", DailyCap: 10})
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
	assert.Empty(t, rec.sent)
}

func TestRun_CanceledReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := sendFunc(func(context.Context, Message) (int, error) {
		cancel()
		return http.StatusAccepted, nil
	})
	d := NewDispatcher(tr, sender, WithPacing(0))

	rep, err := d.Run(ctx, Campaign{Subject: "s", HTML: "h", Candidates: []string{"a@x.com", "b@x.com", "c@x.com"}, DailyCap: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Report{Sent: 1, Skipped: 2}, rep)
}

func TestRun_CanceledDuringPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	d := NewDispatcher(rec, sender, WithPacing(time.Hour))
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	rep, err := d.Run(ctx, Campaign{Subject: "s", HTML: "h", Candidates: []string{"a@x.com", "b@x.com"}, DailyCap: 10})
	require.Error(t, err)
	assert.Equal(t, Report{Sent: 1, Skipped: 1}, rep)
}

type suppressedSet map[string]bool

func (s suppressedSet) IsSuppressed(_ context.Context, email string) (bool, error) {
	return s[email], nil
}

func TestRun_SuppressionRecheck(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec, WithSuppressionRecheck(suppressedSet{"b@x.com": true}))

	rep, err := d.Run(context.Background(), Campaign{Subject: "s", HTML: "h", Candidates: []string{"a@x.com", "b@x.com", "c@x.com"}, DailyCap: 10})
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 2, Suppressed: 1}, rep)
	assert.Equal(t, []string{"a@x.com", "c@x.com"}, rec.recipients())
}

func TestRun_Observer(t *testing.T) {
	rec := &recorder{fail: map[string]error{"b@x.com": errors.New("boom")}}
	var outcomes []Outcome
	d, _ := newTestDispatcher(rec, WithObserver(func(o Outcome) { outcomes = append(outcomes, o) }))

	_, err := d.Run(context.Background(), Campaign{Subject: "s", HTML: "h", Candidates: []string{"a@x.com", "b@x.com"}, DailyCap: 10})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, http.StatusAccepted, outcomes[0].Status)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
}

func TestPreview_SendsOnce(t *testing.T) {
	rec := &recorder{}
	d, sleeps := newTestDispatcher(rec)

	status, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, []string{"me@example.com"}, rec.recipients())
	assert.Empty(t, *sleeps)
}

func TestPreview_InvalidAddress(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec)

	_, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "not-an-email")
	require.Error(t, err)
	assert.True(t, model.IsConfigurationError(err))
	assert.Empty(t, rec.sent)
}

func TestPreview_RefusesSuppressed(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec, WithSuppressionRecheck(suppressedSet{"x@y.com": true}))

	_, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "x@y.com")
	require.Error(t, err)
	var ie *model.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "to", ie.Field)
	assert.Empty(t, rec.recipients())

	status, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "ok@y.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, []string{"ok@y.com"}, rec.recipients())
}

func TestPreview_SuppressionLookupError(t *testing.T) {
	rec := &recorder{}
	d, _ := newTestDispatcher(rec, WithSuppressionRecheck(failingSuppression{}))

	_, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "x@y.com")
	require.Error(t, err)
	assert.False(t, model.IsConfigurationError(err))
	assert.Empty(t, rec.recipients())
}

type failingSuppression struct{}

func (failingSuppression) IsSuppressed(context.Context, string) (bool, error) {
	return false, errors.New("db locked")
}

func TestPreview_ReturnsSendError(t *testing.T) {
	rec := &recorder{fail: map[string]error{"me@example.com": errors.New("status 401")}}
	d, _ := newTestDispatcher(rec)

	status, err := d.Preview(context.Background(), "Preview", "<p>hi</p>", "me@example.com")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

type candidateFunc func(ctx context.Context) ([]string, error)

func (f candidateFunc) Candidates(ctx context.Context) ([]string, error) { return f(ctx) }

func TestLoadCandidates(t *testing.T) {
	got, err := LoadCandidates(context.Background(), candidateFunc(func(context.Context) ([]string, error) {
		return []string{"a@x.com"}, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, got)

	_, err = LoadCandidates(context.Background(), candidateFunc(func(context.Context) ([]string, error) {
		return nil, errors.New("db locked")
	}))
	require.Error(t, err)
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestDefaultBody(t *testing.T) {
	body := DefaultBody(Address{Email: "info@miamimasterflooring.com", Name: "Miami Master Flooring"})
	assert.Contains(t, body, "<p>Dear Team,</p>")
	assert.Contains(t, body, "Miami Master Flooring<br>info@miamimasterflooring.com")

	escaped := DefaultBody(Address{Email: "a@b.com", Name: "Tom & Jerry"})
	assert.Contains(t, escaped, "Tom &amp; Jerry")
}
