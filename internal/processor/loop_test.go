package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/email"
	"github.com/nhle/mailai/internal/extract/extracttest"
	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// fakeMailbox mimics the IMAP poller: seen messages are never handed out
// twice.
type fakeMailbox struct {
	mu       sync.Mutex
	messages []*model.InboundMessage
	seen     map[uint32]bool
	polls    int
	err      error
}

func newFakeMailbox(msgs ...*model.InboundMessage) *fakeMailbox {
	return &fakeMailbox{messages: msgs, seen: make(map[uint32]bool)}
}

func (m *fakeMailbox) Poll(
	ctx context.Context, h email.Handler, opts email.PollOptions,
) (email.PollStats, error) {
	m.mu.Lock()
	m.polls++
	m.mu.Unlock()

	var stats email.PollStats
	if m.err != nil {
		return stats, m.err
	}

	var selected []*model.InboundMessage
	for _, msg := range m.messages {
		if m.seen[msg.UID] {
			continue
		}
		stats.Unseen++
		if h.Match(model.Envelope{UID: msg.UID, Subject: msg.Subject, From: msg.From.String()}) {
			selected = append(selected, msg)
		}
	}
	stats.Matched = len(selected)
	if opts.Limit > 0 && len(selected) > opts.Limit {
		selected = selected[:opts.Limit]
	}

	for _, msg := range selected {
		select {
		case <-opts.Stop:
			stats.Stopped = true
			return stats, nil
		default:
		}
		m.seen[msg.UID] = true
		if _, err := h.Process(ctx, msg); err != nil {
			return stats, err
		}
		stats.Handled++
	}
	return stats, nil
}

func (m *fakeMailbox) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

type fakeAnswerer struct {
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string) (model.Answer, error)
}

func (a *fakeAnswerer) Query(_ context.Context, prompt, _, _ string) (model.Answer, error) {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.mu.Unlock()
	return a.answer(prompt)
}

func arithmetic(prompt string) (model.Answer, error) {
	text := "I could not work that out."
	if strings.Contains(prompt, "2+2") {
		text = "2+2 = 4"
	}
	return model.Answer{Text: text, Provider: "chatgpt", Label: "ChatGPT (OpenAI)", Model: "gpt-test"}, nil
}

type fakeSender struct {
	mu      sync.Mutex
	replies []model.OutboundReply
	err     error
}

func (s *fakeSender) Send(_ context.Context, reply model.OutboundReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replies = append(s.replies, reply)
	return nil
}

type memRecorder struct {
	reports []*model.CycleReport
}

func (r *memRecorder) RecordCycle(_ context.Context, report *model.CycleReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func testConfig() *model.AppConfig {
	cfg := model.DefaultAppConfig()
	cfg.IMAP.Username = "assistant@example.com"
	cfg.SMTP.From = "assistant@example.com"
	cfg.Extract.MaxAttachmentBytes = 1024
	return cfg
}

func request(uid uint32, subject, body string) *model.InboundMessage {
	return &model.InboundMessage{
		UID:        uid,
		From:       model.Address{Name: "Alice", Email: "alice@example.com"},
		Subject:    subject,
		Body:       body,
		MessageID:  "req-" + subject + "@example.com",
		References: []string{"root@example.com"},
		Date:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessOnce_AnswersAndThreads(t *testing.T) {
	msg := request(1, "AI: what is 2+2?", "Please compute 2+2.")
	mailbox := newFakeMailbox(msg, request(2, "Lunch on Friday?", "Are you free?"))
	sender := &fakeSender{}
	recorder := &memRecorder{}

	loop := New(testConfig(), Deps{
		Mailbox:  mailbox,
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   sender,
		Recorder: recorder,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.NoError(t, report.Err)
	require.Equal(t, model.CycleCounts{Delivered: 1}, report.Counts())
	require.Len(t, recorder.reports, 1)

	require.Len(t, sender.replies, 1)
	reply := sender.replies[0]
	require.Equal(t, "Re: AI: what is 2+2?", reply.Subject)
	require.Equal(t, "alice@example.com", reply.To.Email)
	require.Equal(t, "assistant@example.com", reply.From)
	require.Contains(t, reply.Body, "4")
	require.Contains(t, reply.Body, "ChatGPT (OpenAI)")
	require.Equal(t, msg.MessageID, reply.InReplyTo)
	require.Equal(t, []string{"root@example.com", msg.MessageID}, reply.References)

	res := report.Results[0]
	require.Equal(t, model.StatusDelivered, res.Status)
	require.Equal(t, "chatgpt", res.Provider)
	require.Equal(t, "gpt-test", res.Model)

	// A second pass finds nothing new.
	report = loop.ProcessOnce(context.Background(), Options{})
	require.Empty(t, report.Results)
	require.Len(t, sender.replies, 1)

	status := loop.Status()
	require.Equal(t, StateIdle, status.State)
	require.Equal(t, 2, status.Cycles)
}

func TestProcessOnce_AttachmentManifest(t *testing.T) {
	pdf := extracttest.PDF("Quarterly revenue grew ten percent")

	msg := request(1, "AI summarize", "Summarize the attached report.")
	msg.Attachments = []model.Attachment{
		{Filename: "huge.pdf", MediaType: "application/pdf", Size: 4096, Oversize: true},
		{Filename: "report.pdf", MediaType: "application/pdf", Size: int64(len(pdf)), Data: pdf},
	}

	sender := &fakeSender{}
	answerer := &fakeAnswerer{answer: arithmetic}
	cfg := testConfig()
	cfg.Extract.MaxAttachmentBytes = int64(len(pdf)) + 1
	loop := New(cfg, Deps{
		Mailbox:  newFakeMailbox(msg),
		Answerer: answerer,
		Sender:   sender,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.Equal(t, model.CycleCounts{Delivered: 1}, report.Counts())

	require.Len(t, answerer.prompts, 1)
	prompt := answerer.prompts[0]
	require.Contains(t, prompt, "Summarize the attached report.")
	require.Contains(t, prompt, "--- report.pdf ---\nQuarterly revenue grew ten percent")
	require.Contains(t, prompt, "--- huge.pdf (not read: too-large")

	body := sender.replies[0].Body
	require.Contains(t, body, "- huge.pdf: skipped: too-large")
	require.Contains(t, body, "- report.pdf: text used")
}

func TestProcessOnce_EmptyRequestIsSkipped(t *testing.T) {
	sender := &fakeSender{}
	answerer := &fakeAnswerer{answer: arithmetic}
	loop := New(testConfig(), Deps{
		Mailbox:  newFakeMailbox(request(1, "AI", "   ")),
		Answerer: answerer,
		Sender:   sender,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.Equal(t, model.CycleCounts{Skipped: 1}, report.Counts())
	require.Equal(t, "empty request", report.Results[0].Reason)
	require.Empty(t, answerer.prompts)
	require.Empty(t, sender.replies)
}

func TestProcessOnce_ProviderFailureDoesNotAbortCycle(t *testing.T) {
	calls := 0
	answerer := &fakeAnswerer{answer: func(p string) (model.Answer, error) {
		calls++
		if calls == 1 {
			return model.Answer{}, errors.New("all AI providers failed")
		}
		return arithmetic(p)
	}}
	sender := &fakeSender{}

	loop := New(testConfig(), Deps{
		Mailbox:  newFakeMailbox(request(1, "AI one", "first"), request(2, "AI two", "second 2+2")),
		Answerer: answerer,
		Sender:   sender,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.NoError(t, report.Err)
	require.Equal(t, model.CycleCounts{Delivered: 1, Failed: 1}, report.Counts())

	failed := report.Results[0]
	require.Equal(t, model.StatusFailed, failed.Status)
	require.Equal(t, failure.StageQuery, failed.Stage)
	require.Equal(t, failure.KindProviderQuery, failed.Kind)
	require.Contains(t, failed.Reason, "all AI providers failed")
}

func TestProcessOnce_ConfigurationFailureAbortsCycle(t *testing.T) {
	answerer := &fakeAnswerer{answer: func(string) (model.Answer, error) {
		return model.Answer{}, failure.Configuration("no AI provider is available")
	}}
	loop := New(testConfig(), Deps{
		Mailbox:  newFakeMailbox(request(1, "AI one", "first"), request(2, "AI two", "second")),
		Answerer: answerer,
		Sender:   &fakeSender{},
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.True(t, report.Aborted())
	require.True(t, failure.Is(report.Err, failure.KindConfiguration))
	require.Len(t, report.Results, 1)
	require.Equal(t, failure.KindConfiguration, report.Results[0].Kind)
}

func TestProcessOnce_DeliveryFailureRecorded(t *testing.T) {
	sender := &fakeSender{err: failure.Wrap(failure.KindDelivery, failure.StageSend, errors.New("550 mailbox unavailable"))}
	loop := New(testConfig(), Deps{
		Mailbox:  newFakeMailbox(request(1, "AI ping", "2+2")),
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   sender,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	res := report.Results[0]
	require.Equal(t, model.StatusFailed, res.Status)
	require.Equal(t, failure.StageSend, res.Stage)
	require.Equal(t, failure.KindDelivery, res.Kind)
	require.Equal(t, "chatgpt", res.Provider)
}

func TestProcessOnce_ConnectionFailureAbortsCycle(t *testing.T) {
	mailbox := newFakeMailbox()
	mailbox.err = failure.Connection(failure.StageFetch, errors.New("dial tcp: connection refused"))

	loop := New(testConfig(), Deps{
		Mailbox:  mailbox,
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   &fakeSender{},
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{})
	require.True(t, failure.Is(report.Err, failure.KindConnection))
	require.Empty(t, report.Results)
}

func TestProcessOnce_RespectsMaxMessages(t *testing.T) {
	sender := &fakeSender{}
	loop := New(testConfig(), Deps{
		Mailbox: newFakeMailbox(
			request(1, "AI a", "2+2"), request(2, "AI b", "2+2"), request(3, "AI c", "2+2"),
		),
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   sender,
	}, zerolog.Nop())

	report := loop.ProcessOnce(context.Background(), Options{MaxMessages: 2})
	require.Len(t, report.Results, 2)

	report = loop.ProcessOnce(context.Background(), Options{MaxMessages: 2})
	require.Len(t, report.Results, 1)
	require.Len(t, sender.replies, 3)
}

func TestProcessOnce_CancelledBeforeStartHandlesNothing(t *testing.T) {
	sender := &fakeSender{}
	loop := New(testConfig(), Deps{
		Mailbox:  newFakeMailbox(request(1, "AI a", "2+2")),
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   sender,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := loop.ProcessOnce(ctx, Options{})
	require.Empty(t, report.Results)
	require.Empty(t, sender.replies)
}

func TestMonitor_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	mailbox := newFakeMailbox(request(1, "AI now", "2+2"))
	sender := &fakeSender{}
	loop := New(testConfig(), Deps{
		Mailbox:  mailbox,
		Answerer: &fakeAnswerer{answer: arithmetic},
		Sender:   sender,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cycles := make(chan *model.CycleReport, 16)
	done := make(chan error, 1)
	go func() {
		done <- loop.Monitor(ctx, Options{
			Interval: 10 * time.Millisecond,
			OnCycle:  func(r *model.CycleReport) { cycles <- r },
		})
	}()

	first := <-cycles
	require.Equal(t, model.ModeMonitor, first.Mode)
	require.Equal(t, model.CycleCounts{Delivered: 1}, first.Counts())

	// Wait for at least one tick.
	<-cycles
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	require.GreaterOrEqual(t, mailbox.pollCount(), 2)
	require.Len(t, sender.replies, 1)
	require.Equal(t, StateStopped, loop.Status().State)
}

func TestMonitor_RejectsNonPositiveInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.Interval = 0
	loop := New(cfg, Deps{Mailbox: newFakeMailbox()}, zerolog.Nop())

	err := loop.Monitor(context.Background(), Options{})
	require.True(t, failure.Is(err, failure.KindConfiguration))
}

func TestReject_RecordsFailedResult(t *testing.T) {
	report := model.NewCycleReport(model.ModeOnce)
	h := &cycleHandler{report: report, log: zerolog.Nop()}

	h.Reject(model.Envelope{UID: 7, Subject: "AI broken", From: "bob@example.com"},
		failure.New(failure.KindConnection, failure.StageMark, "store failed"))

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.Equal(t, model.StatusFailed, res.Status)
	require.Equal(t, failure.StageMark, res.Stage)
	require.Equal(t, uint32(7), res.UID)
}
