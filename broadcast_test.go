package main

import (
	"context"
	"testing"
	"time"
)

func testStatic() *staticData {
	return &staticData{
		paths:       []Path{{From: 1, To: 2, Type: "rail"}},
		cityDetails: map[string]CityDetails{"1": {NPC: []string{"TW"}}},
	}
}

func testHub(store *Store) *Hub {
	return newHub(&Config{}, store, testStatic())
}

func recvMessage(t *testing.T, c *wsClient) wsMessage {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a message")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return wsMessage{}
}

func TestSnapshotSequenceFullStore(t *testing.T) {
	store := newStore()
	store.SetCities([]City{testCity(1, 10)})
	store.SetUnions([]Union{{ID: 10, Name: "Union"}})
	store.SetNations([]Nation{{ID: 1, Name: "Nation"}})

	msgs := testHub(store).snapshotSequence()

	want := []string{msgInitialCities, msgInitialNations, msgInitialUnions, msgInitialPaths, msgInitialCityDetails}
	if len(msgs) != len(want) {
		t.Fatalf("message count = %d, want %d", len(msgs), len(want))
	}
	for i, msg := range msgs {
		if msg.Type != want[i] {
			t.Errorf("message %d type = %q, want %q", i, msg.Type, want[i])
		}
	}
}

func TestSnapshotSequenceBeforeInitialPull(t *testing.T) {
	msgs := testHub(newStore()).snapshotSequence()

	want := []string{msgInitialPaths, msgInitialCityDetails}
	if len(msgs) != len(want) {
		t.Fatalf("message count = %d, want %d", len(msgs), len(want))
	}
	for i, msg := range msgs {
		if msg.Type != want[i] {
			t.Errorf("message %d type = %q, want %q", i, msg.Type, want[i])
		}
	}
}

func TestHubSendsSnapshotOnRegister(t *testing.T) {
	store := newStore()
	store.SetCities([]City{testCity(1, 10)})

	hub := testHub(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.run(ctx)

	client := &wsClient{send: make(chan wsMessage, 32)}
	hub.register <- client

	want := []string{msgInitialCities, msgInitialPaths, msgInitialCityDetails}
	for _, wantType := range want {
		if msg := recvMessage(t, client); msg.Type != wantType {
			t.Errorf("snapshot message type = %q, want %q", msg.Type, wantType)
		}
	}
}

func TestHubStopsDeliveringAfterUnregister(t *testing.T) {
	hub := testHub(newStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.run(ctx)

	client := &wsClient{send: make(chan wsMessage, 32)}
	hub.register <- client
	recvMessage(t, client) // paths
	recvMessage(t, client) // city details

	hub.unregister <- client
	hub.broadcast(wsMessage{Type: msgDeltaUpdate, Payload: StateUpdate{}})

	select {
	case msg, ok := <-client.send:
		if ok {
			t.Fatalf("received %q after unregister", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed after unregister")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := testHub(newStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.run(ctx)

	// Room for one message only; the two-message snapshot overflows it.
	client := &wsClient{send: make(chan wsMessage, 1)}
	hub.register <- client

	if msg := recvMessage(t, client); msg.Type != msgInitialPaths {
		t.Errorf("first message type = %q, want %q", msg.Type, msgInitialPaths)
	}
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected the channel to be closed after the drop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed for the slow client")
	}
}

func TestHubFansOutDeltas(t *testing.T) {
	hub := testHub(newStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.run(ctx)

	first := &wsClient{send: make(chan wsMessage, 32)}
	second := &wsClient{send: make(chan wsMessage, 32)}
	for _, c := range []*wsClient{first, second} {
		hub.register <- c
		recvMessage(t, c)
		recvMessage(t, c)
	}

	hub.broadcast(wsMessage{Type: msgDeltaUpdate, Payload: StateUpdate{}})

	for _, c := range []*wsClient{first, second} {
		if msg := recvMessage(t, c); msg.Type != msgDeltaUpdate {
			t.Errorf("delta message type = %q, want %q", msg.Type, msgDeltaUpdate)
		}
	}
}
