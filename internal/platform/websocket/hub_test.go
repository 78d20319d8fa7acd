package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func expectEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
		return Event{}
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Send:
		t.Fatalf("client %s should not have received event", c.ID)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", changefeed.TableBeds)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(changefeed.TableBeds) != 1 {
		t.Fatalf("expected 1 client on beds, got %d/%d", hub.ClientCount(), hub.TopicCount(changefeed.TableBeds))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(changefeed.TableBeds) != 0 {
		t.Fatal("expected client to be removed")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}

	// Second unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	beds := newClient("beds", changefeed.TableBeds)
	amb := newClient("amb", changefeed.TableAmbulance)
	hub.Register(beds)
	hub.Register(amb)

	hub.OnChange(changefeed.Change{Table: changefeed.TableBeds, Op: changefeed.OpUpdate, ID: "bed-1", At: time.Now()})

	ev := expectEvent(t, beds)
	if ev.Type != "change" || ev.Topic != changefeed.TableBeds || ev.ID != "bed-1" || ev.Op != "UPDATE" {
		t.Errorf("unexpected event %+v", ev)
	}
	expectNothing(t, amb)
}

func TestHub_WildcardReceivesOnce(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("all", TopicAll, changefeed.TablePatients)
	hub.Register(c)

	hub.Broadcast(Event{Type: "change", Topic: changefeed.TablePatients})

	expectEvent(t, c)
	expectNothing(t, c)
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{TopicAll}, Send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast(Event{Topic: changefeed.TableBeds})
	hub.Broadcast(Event{Topic: changefeed.TableBeds})

	if hub.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", hub.Dropped())
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{changefeed.TableBeds, changefeed.TableBeds, changefeed.TableAmbulance}})
	if len(c.Topics) != 2 {
		t.Fatalf("expected duplicate topics to be ignored, got %v", c.Topics)
	}
	if hub.TopicCount(changefeed.TableBeds) != 1 {
		t.Fatal("expected subscription on beds")
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{changefeed.TableBeds}})
	if hub.TopicCount(changefeed.TableBeds) != 0 || hub.TopicCount(changefeed.TableAmbulance) != 1 {
		t.Fatal("expected only beds to be removed")
	}
	if len(c.Topics) != 1 || c.Topics[0] != changefeed.TableAmbulance {
		t.Errorf("unexpected remaining topics %v", c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Error("unknown action must not subscribe")
	}
}

func TestHub_SubscribeUnregisteredIgnored(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("ghost")
	hub.Subscribe(c, []string{changefeed.TableBeds})
	if hub.TopicCount(changefeed.TableBeds) != 0 {
		t.Error("unregistered client must not be subscribed")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", changefeed.TableBeds)
			hub.Register(c)
			hub.Broadcast(Event{Topic: changefeed.TableBeds})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" beds, ,ambulance_requests,beds")
	if len(got) != 2 || got[0] != "beds" || got[1] != "ambulance_requests" {
		t.Errorf("unexpected topics %v", got)
	}
	if parseTopics("") != nil {
		t.Error("expected nil for empty topics")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://board.example.org"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Error("requests without Origin should pass")
	}
	req.Header.Set("Origin", "https://board.example.org")
	if !check(req) {
		t.Error("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Error("foreign origin accepted")
	}
}

type stubAuthn struct{}

func (stubAuthn) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	if token != "good" {
		return auth.Principal{}, errors.New("bad token")
	}
	return auth.Principal{UserID: "u1", Active: true}, nil
}

func TestHandler_RejectsBadToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := NewHandler(NewHub(zerolog.Nop()), stubAuthn{}, nil)
	err := h.HandleConnect(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := NewHandler(hub, stubAuthn{}, nil)

	e := echo.New()
	handler.RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=good&topics=beds"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(changefeed.TableBeds) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(changefeed.TableBeds) != 1 {
		t.Fatal("expected client subscribed to beds after connect")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{changefeed.TableAmbulance}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	for hub.TopicCount(changefeed.TableAmbulance) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.OnChange(changefeed.Change{Table: changefeed.TableAmbulance, Op: changefeed.OpInsert, ID: "amb-1", At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Topic != changefeed.TableAmbulance || received.ID != "amb-1" {
		t.Fatalf("unexpected event %+v", received)
	}
}
