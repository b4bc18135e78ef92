package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const commsTestPrefix = "events:comms_publisher_test"

// startTestServer starts an in-process NATS server on a random port.
func startTestServer(t *testing.T) *comms.Conn {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsTestPrefix)
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func subscribe(t *testing.T, nc *comms.Conn, subject string) chan *CallEvent {
	t.Helper()
	ch := make(chan *CallEvent, 4)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var ev CallEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", commsTestPrefix, err)
			return
		}
		ch <- &ev
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe to %s: %v", commsTestPrefix, subject, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return ch
}

func receive(t *testing.T, ch chan *CallEvent, subject string) *CallEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("%s - no event on %s", commsTestPrefix, subject)
		return nil
	}
}

func TestCommsPublisher_PublishesBothSubjects(t *testing.T) {
	nc := startTestServer(t)
	granular := subscribe(t, nc, "connectors.called.Avatar.Get")
	global := subscribe(t, nc, "connectors.called")
	wildcard := subscribe(t, nc, "connectors.called.Avatar.*")
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - flush: %v", commsTestPrefix, err)
	}

	event := &CallEvent{
		Connector:  "Avatar",
		Method:     "Get",
		Session:    "sess-1",
		Outcome:    OK,
		DurationMs: 12,
		Timestamp:  "2026-01-01T00:00:00Z",
	}
	if err := NewCommsPublisher(nc, nil).PublishCalled(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishCalled failed: %v", commsTestPrefix, err)
	}

	got := receive(t, granular, "granular")
	if *got != *event {
		t.Errorf("%s - granular event = %+v, want %+v", commsTestPrefix, got, event)
	}
	if got := receive(t, global, "global"); got.Method != "Get" || got.Session != "sess-1" {
		t.Errorf("%s - global event = %+v", commsTestPrefix, got)
	}
	receive(t, wildcard, "wildcard")
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc := startTestServer(t)
	custom := subscribe(t, nc, "audit.calls")
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - flush: %v", commsTestPrefix, err)
	}

	pub := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: "audit.calls"})
	if err := pub.PublishCalled(context.Background(), &CallEvent{Method: "Ping", Outcome: "METHOD_NOT_FOUND"}); err != nil {
		t.Fatalf("%s - PublishCalled failed: %v", commsTestPrefix, err)
	}
	if got := receive(t, custom, "audit.calls"); got.Outcome != "METHOD_NOT_FOUND" {
		t.Errorf("%s - outcome = %q", commsTestPrefix, got.Outcome)
	}
}

func TestNewCommsPublisher_Defaults(t *testing.T) {
	for _, opts := range []*CommsPublisherOpts{nil, {}} {
		pub := NewCommsPublisher(nil, opts)
		if pub.globalSubject != "connectors.called" {
			t.Errorf("%s - global subject = %q", commsTestPrefix, pub.globalSubject)
		}
	}
}
