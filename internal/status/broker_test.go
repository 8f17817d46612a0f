package status

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestBrokerPublishAndUnsubscribe(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d; want 1", got)
	}

	b.Publish(Event{ContextID: "tab1"})
	select {
	case evt := <-ch:
		if evt.ContextID != "tab1" {
			t.Fatalf("ContextID = %q; want tab1", evt.ContextID)
		}
	default:
		t.Fatal("expected buffered event")
	}

	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	b.Unsubscribe(id)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()
	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(Event{ContextID: "tab1"})
	}
	if got := len(ch); got != subscriberBufSize {
		t.Fatalf("buffered = %d; want %d", got, subscriberBufSize)
	}
	b.Close()
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() after Close = %d", got)
	}
}

type fakeSource struct {
	states   map[capture.ContextID]*capture.CaptureState
	selected capture.ContextID
}

func (f *fakeSource) State(id capture.ContextID) (*capture.CaptureState, error) {
	st, ok := f.states[id]
	if !ok {
		return nil, &capture.CodedError{Code: capture.CodeNoActiveContext, Message: "closed"}
	}
	return st, nil
}

func (f *fakeSource) Selected() (capture.ContextID, bool) { return f.selected, f.selected != "" }

func TestPublisherBuildsViewFromSource(t *testing.T) {
	src := &fakeSource{
		states: map[capture.ContextID]*capture.CaptureState{
			"tab1": {SaveEnabled: true},
		},
		selected: "tab1",
	}
	b := NewBroker()
	_, ch := b.Subscribe()
	p := NewPublisher(src, b)

	p.NotifyStatusChanged("tab1")
	evt := <-ch
	if evt.View.Affordance != "generic" || !evt.View.Selected {
		t.Fatalf("view = %+v; want selected generic", evt.View)
	}

	p.NotifyStatusChanged("gone")
	evt = <-ch
	if !evt.View.Closed || evt.View.Affordance != "disabled" {
		t.Fatalf("view = %+v; want closed disabled", evt.View)
	}
}

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?contexts=tab2", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if got, want := resp.Header.Get("Content-Type"), "text/event-stream"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}

	waitForClients(t, b, 1)
	b.Publish(Event{ContextID: "tab1", View: BuildView("tab1", nil, false)})
	b.Publish(Event{ContextID: "tab2", View: BuildView("tab2", &capture.CaptureState{SaveEnabled: true}, false)})

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var v View
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &v); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		if v.ContextID != "tab2" {
			t.Fatalf("received event for %q; want only tab2", v.ContextID)
		}
		if v.Affordance != "generic" {
			t.Fatalf("affordance = %q; want generic", v.Affordance)
		}
		return
	}
	t.Fatalf("stream ended without data: %v", sc.Err())
}

func TestWebSocketHandlerStreamsEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(WebSocketHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("ws.Dial() error = %v", err)
	}
	defer conn.Close()

	waitForClients(t, b, 1)
	b.Publish(Event{ContextID: "tab1", View: BuildView("tab1", nil, true)})

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("ReadServerText() error = %v", err)
	}
	var v View
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.ContextID != "tab1" || !v.Selected {
		t.Fatalf("view = %+v; want selected tab1", v)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after client close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
