package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/session"
)

func newTestRelay(opts session.Options, client *fakeClient, provider *fakeProvider, store *fakeStore) *session.Relay {
	conv := &conversation.Conversation{ID: 1, PublicID: "conv-relay", UserID: "user-1"}
	tr := session.NewTranslator(client, provider, store, conv, session.NewSequencer(nil), 1.0, testLogger())
	return session.NewRelay(opts, client, provider, store, conv, tr, testLogger())
}

func runRelay(r *session.Relay) <-chan session.Result {
	out := make(chan session.Result, 1)
	go func() {
		out <- r.Run(context.Background())
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan session.Result) session.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
		return session.Result{}
	}
}

func defaultOpts() session.Options {
	return session.Options{
		MaxDuration:       time.Minute,
		KeepaliveInterval: time.Minute,
	}
}

func TestRelay_SendsConnectionStatusFirst(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	relay := newTestRelay(defaultOpts(), client, provider, store)

	done := runRelay(relay)
	close(client.msgs)
	waitResult(t, done)

	sent := client.jsonMessages()
	if len(sent) == 0 {
		t.Fatal("nothing sent to client")
	}
	status, ok := sent[0].(session.StatusMessage)
	if !ok {
		t.Fatalf("first message = %T, want StatusMessage", sent[0])
	}
	if status.Status != "connected" || status.ConversationID != "conv-relay" {
		t.Fatalf("status = %+v", status)
	}
}

func TestRelay_ClientDisconnectLogsUsageOnce(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{usageResult: 90}
	relay := newTestRelay(defaultOpts(), client, provider, store)

	done := runRelay(relay)
	close(client.msgs)
	res := waitResult(t, done)

	if res.Reason != session.ReasonClientDisconnected {
		t.Fatalf("reason = %q", res.Reason)
	}
	if !res.Interrupted {
		t.Fatal("abrupt disconnect not marked interrupted")
	}
	if got := store.usageLogCalls(); got != 1 {
		t.Fatalf("usage logged %d times, want 1", got)
	}
	if res.DurationSeconds != 90 {
		t.Fatalf("duration = %d, want 90", res.DurationSeconds)
	}

	provider.mu.Lock()
	closed := provider.closed
	provider.mu.Unlock()
	if !closed {
		t.Fatal("provider channel left open")
	}
}

func TestRelay_ProviderDisconnectClosesClient(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	relay := newTestRelay(defaultOpts(), client, provider, store)

	done := runRelay(relay)
	close(provider.events)
	res := waitResult(t, done)

	if res.Reason != session.ReasonProviderDisconnected {
		t.Fatalf("reason = %q", res.Reason)
	}
	if got := store.usageLogCalls(); got != 1 {
		t.Fatalf("usage logged %d times, want 1", got)
	}

	client.mu.Lock()
	closed := client.closed
	client.mu.Unlock()
	if !closed {
		t.Fatal("client channel left open")
	}

	// The client hears a structured close reason before the socket drops.
	var closeMsg *session.ClosedMessage
	for _, v := range client.jsonMessages() {
		if c, ok := v.(session.ClosedMessage); ok {
			closeMsg = &c
		}
	}
	if closeMsg == nil {
		t.Fatal("no connection.closed sent")
	}
	if closeMsg.Reason != session.ReasonProviderDisconnected || closeMsg.Message == "" {
		t.Fatalf("close message = %+v", closeMsg)
	}
}

func TestRelay_DurationTimerWins(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{usageResult: 1}
	opts := session.Options{
		MaxDuration:       30 * time.Millisecond,
		KeepaliveInterval: time.Minute,
	}
	relay := newTestRelay(opts, client, provider, store)

	done := runRelay(relay)
	res := waitResult(t, done)

	if res.Reason != session.ReasonTimeLimit {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Interrupted {
		t.Fatal("timer fire marked interrupted")
	}
	if got := store.usageLogCalls(); got != 1 {
		t.Fatalf("usage logged %d times, want 1", got)
	}

	var sawLimit bool
	var limitIdx, closedIdx int
	for i, v := range client.jsonMessages() {
		switch v.(type) {
		case session.LimitReachedMessage:
			sawLimit = true
			limitIdx = i
		case session.ClosedMessage:
			closedIdx = i
		}
	}
	if !sawLimit {
		t.Fatal("no session.limit_reached sent")
	}
	if limitIdx > closedIdx {
		t.Fatal("limit notice sent after close notice")
	}
}

func TestRelay_TimerWinsOverInflightTraffic(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	opts := session.Options{
		MaxDuration:       40 * time.Millisecond,
		KeepaliveInterval: time.Minute,
	}
	relay := newTestRelay(opts, client, provider, store)

	done := runRelay(relay)

	// Keep partial transcript text flowing; none of it may be persisted
	// when the timer cuts the session off mid-turn.
	ev, _ := session.ParseProviderEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"partial "}`))
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case res := <-done:
			if res.Reason != session.ReasonTimeLimit {
				t.Fatalf("reason = %q", res.Reason)
			}
			break loop
		case <-ticker.C:
			select {
			case provider.events <- ev:
			default:
			}
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not finish")
		}
	}

	if got := len(store.appendedMessages()); got != 0 {
		t.Fatalf("persisted %d partial turns, want 0", got)
	}
	if got := store.usageLogCalls(); got != 1 {
		t.Fatalf("usage logged %d times, want 1", got)
	}
}

func TestRelay_KeepalivesFlow(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	opts := session.Options{
		MaxDuration:       time.Minute,
		KeepaliveInterval: 10 * time.Millisecond,
	}
	relay := newTestRelay(opts, client, provider, store)

	done := runRelay(relay)
	time.Sleep(50 * time.Millisecond)
	close(client.msgs)
	waitResult(t, done)

	var keepalives int
	for _, v := range client.jsonMessages() {
		if _, ok := v.(session.KeepaliveMessage); ok {
			keepalives++
		}
	}
	if keepalives == 0 {
		t.Fatal("no client keepalives sent")
	}

	provider.mu.Lock()
	pings := provider.pings
	provider.mu.Unlock()
	if pings == 0 {
		t.Fatal("no provider pings sent")
	}
}

func TestRelay_ContextCancelShutsDown(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	conv := &conversation.Conversation{ID: 1, PublicID: "conv-relay", UserID: "user-1"}
	tr := session.NewTranslator(client, provider, store, conv, session.NewSequencer(nil), 1.0, testLogger())
	relay := session.NewRelay(defaultOpts(), client, provider, store, conv, tr, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan session.Result, 1)
	go func() {
		out <- relay.Run(ctx)
	}()
	cancel()
	res := waitResult(t, out)

	if res.Reason != session.ReasonServerShutdown {
		t.Fatalf("reason = %q", res.Reason)
	}
	// The usage write must survive the canceled parent context.
	if got := store.usageLogCalls(); got != 1 {
		t.Fatalf("usage logged %d times, want 1", got)
	}
}

func TestRelay_RecoverableFaultKeepsSessionAlive(t *testing.T) {
	client := newFakeClient()
	provider := newFakeProvider()
	store := &fakeStore{}
	store.appendErr = errTest
	relay := newTestRelay(defaultOpts(), client, provider, store)

	done := runRelay(relay)

	// A store failure on flush is a notice, not a teardown.
	ev, _ := session.ParseProviderEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"hello"}`))
	provider.events <- ev

	// Session is still alive: a later event still flows to the client.
	ev2, _ := session.ParseProviderEvent([]byte(`{"type":"response.audio.delta","delta":"AAAA"}`))
	provider.events <- ev2

	deadline := time.After(2 * time.Second)
	for {
		raw := client.rawMessages()
		if len(raw) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session stopped processing after recoverable fault")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(client.msgs)
	res := waitResult(t, done)
	if res.Reason != session.ReasonClientDisconnected {
		t.Fatalf("reason = %q", res.Reason)
	}

	var sawNotice bool
	for _, v := range client.jsonMessages() {
		if e, ok := v.(session.ErrorMessage); ok && !e.Fatal {
			sawNotice = true
		}
	}
	if !sawNotice {
		t.Fatal("no non-fatal notice for recoverable fault")
	}
}

var errTest = errors.New("store unavailable")
