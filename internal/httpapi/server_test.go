package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/config"
	"github.com/antoniostano/baziview/internal/insights"
	"github.com/antoniostano/baziview/internal/llm"
	"github.com/antoniostano/baziview/internal/profile"
	"github.com/antoniostano/baziview/internal/protocol"
	"github.com/antoniostano/baziview/internal/session"
	"github.com/antoniostano/baziview/internal/transcript"
)

var testReadings = bazi.StaticSource{
	"2024-03-15": {
		Date:       "2024-03-15",
		Year:       bazi.Pillar{Chinese: "甲辰", English: "Wood Dragon"},
		Month:      bazi.Pillar{Chinese: "丁卯", English: "Fire Rabbit"},
		Day:        bazi.Pillar{Chinese: "壬午", English: "Water Horse"},
		DayOfficer: "Open",
	},
}

type failingGateway struct{}

func (failingGateway) Stream(context.Context, llm.Request) (<-chan llm.Chunk, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestServer(t *testing.T, gw llm.Gateway) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Deps{
		Config:   config.Config{},
		Sessions: session.NewManager(2 * time.Minute),
		Profiles: profile.NewService(profile.NewInMemoryStore(), nil, logger),
		Readings: testReadings,
		Chat:     chat.Config{Gateway: gw, Timeout: 5 * time.Second, Logger: logger},
		Insights: insights.NewGenerator(gw, 0.6, 5*time.Second, logger),
		Archive:  transcript.NewArchiver(transcript.NewInMemoryStore()),
		Logger:   logger,
	})
	srv.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return res.StatusCode
}

func createAna(t *testing.T, baseURL string) bazi.Profile {
	t.Helper()
	var p bazi.Profile
	status := doJSON(t, http.MethodPost, baseURL+"/v1/profiles", bazi.ProfileInput{
		Name:      "Ana",
		BirthDate: "1990-05-17",
		BirthTime: "08:30",
		Timezone:  "UTC+08:00",
	}, &p)
	if status != http.StatusCreated {
		t.Fatalf("create profile status = %d, want %d", status, http.StatusCreated)
	}
	return p
}

func createSession(t *testing.T, baseURL, profileID, date string) session.CreateResponse {
	t.Helper()
	var created session.CreateResponse
	status := doJSON(t, http.MethodPost, baseURL+"/v1/chat/session", session.CreateRequest{ProfileID: profileID, Date: date}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d, want %d", status, http.StatusCreated)
	}
	if created.SessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	return created
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	p := createAna(t, ts.URL)
	if p.ID != "Ana" {
		t.Fatalf("profile id = %q, want Ana", p.ID)
	}
	if p.Chart == nil {
		t.Fatalf("expected chart on created profile")
	}

	var got bazi.Profile
	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/profiles/Ana", nil, &got); status != http.StatusOK {
		t.Fatalf("get profile status = %d", status)
	}
	if got.BirthDate != "1990-05-17" {
		t.Fatalf("birth_date = %q", got.BirthDate)
	}

	var list struct {
		Profiles []bazi.Profile `json:"profiles"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/profiles", nil, &list)
	if len(list.Profiles) != 1 {
		t.Fatalf("listed %d profiles, want 1", len(list.Profiles))
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/profiles/Nobody", nil, nil); status != http.StatusNotFound {
		t.Fatalf("missing profile status = %d, want 404", status)
	}
}

func TestCreateProfileValidation(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	var resp errorResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/profiles", bazi.ProfileInput{
		Name:      "Ana",
		BirthDate: "1990-05-17",
		BirthTime: "8h30",
		Timezone:  "UTC+08:00",
	}, &resp)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp.Code != "invalid_profile" || resp.Field != "birth_time" {
		t.Fatalf("unexpected error response: %+v", resp)
	}
}

func TestDailyReading(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	var found dailyResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/daily/today", nil, &found)
	if !found.Found || found.Date != "2024-03-15" {
		t.Fatalf("today lookup = %+v", found)
	}
	if !strings.Contains(found.Formatted, "Day Officer: Open") {
		t.Fatalf("formatted reading = %q", found.Formatted)
	}

	var miss dailyResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/daily/2024-03-16", nil, &miss)
	if miss.Found || miss.Reading != nil {
		t.Fatalf("expected miss, got %+v", miss)
	}
	if miss.Formatted != "No BAZI data available" {
		t.Fatalf("miss formatted = %q", miss.Formatted)
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/daily/not-a-date", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("invalid date status = %d, want 400", status)
	}
}

func TestElementRelationship(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	var resp struct {
		Known        bool   `json:"known"`
		Relationship string `json:"relationship"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/elements/relationship?a=Wood&b=Fire", nil, &resp)
	if !resp.Known || resp.Relationship == "" {
		t.Fatalf("wood/fire = %+v", resp)
	}

	doJSON(t, http.MethodGet, ts.URL+"/v1/elements/relationship?a=Wood&b=Plastic", nil, &resp)
	if resp.Known {
		t.Fatalf("expected unknown relationship, got %+v", resp)
	}
}

func TestChatSessionFlow(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "")
	if created.Date != "2024-03-15" || !created.ReadingFound {
		t.Fatalf("session defaults = %+v", created)
	}

	base := ts.URL + "/v1/chat/session/" + created.SessionID
	for _, text := range []string{"hello", "what about today?"} {
		var resp messageResponse
		if status := doJSON(t, http.MethodPost, base+"/messages", messageRequest{Text: text}, &resp); status != http.StatusOK {
			t.Fatalf("message status = %d", status)
		}
		if resp.Reply != "I heard you: "+text {
			t.Fatalf("reply = %q", resp.Reply)
		}
	}

	var history struct {
		Turns []chat.Turn `json:"turns"`
	}
	doJSON(t, http.MethodGet, base+"/history", nil, &history)
	if len(history.Turns) != 4 {
		t.Fatalf("history has %d turns, want 4", len(history.Turns))
	}
	if history.Turns[0].Role != chat.RoleUser || history.Turns[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", history.Turns)
	}

	var archive struct {
		Records []transcript.Record `json:"records"`
	}
	doJSON(t, http.MethodGet, base+"/archive", nil, &archive)
	if len(archive.Records) != 4 {
		t.Fatalf("archive has %d records, want 4", len(archive.Records))
	}

	var update contextUpdate
	if status := doJSON(t, http.MethodPut, base+"/date", dateRequest{Date: "2024-03-16"}, &update); status != http.StatusOK {
		t.Fatalf("set date status = %d", status)
	}
	if update.Found || update.Date != "2024-03-16" {
		t.Fatalf("date update = %+v", update)
	}
	doJSON(t, http.MethodGet, base+"/history", nil, &history)
	if len(history.Turns) != 4 {
		t.Fatalf("date change dropped history: %d turns", len(history.Turns))
	}

	if status := doJSON(t, http.MethodPost, base+"/end", nil, nil); status != http.StatusOK {
		t.Fatalf("end status = %d", status)
	}
	if status := doJSON(t, http.MethodPost, base+"/messages", messageRequest{Text: "still there?"}, nil); status != http.StatusConflict {
		t.Fatalf("message after end status = %d, want 409", status)
	}
}

func TestHistoryAfterEndComesFromArchive(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "2024-03-15")
	base := ts.URL + "/v1/chat/session/" + created.SessionID

	if status := doJSON(t, http.MethodPost, base+"/messages", messageRequest{Text: "hello"}, nil); status != http.StatusOK {
		t.Fatalf("message status = %d", status)
	}
	if status := doJSON(t, http.MethodPost, base+"/end", nil, nil); status != http.StatusOK {
		t.Fatalf("end status = %d", status)
	}

	var history struct {
		Turns []chat.Turn `json:"turns"`
	}
	if status := doJSON(t, http.MethodGet, base+"/history", nil, &history); status != http.StatusOK {
		t.Fatalf("history after end status = %d, want 200", status)
	}
	if len(history.Turns) != 2 {
		t.Fatalf("history after end has %d turns, want 2", len(history.Turns))
	}
	if history.Turns[0].Role != chat.RoleUser || history.Turns[1].Text != "I heard you: hello" {
		t.Fatalf("unexpected archived history: %+v", history.Turns)
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/chat/session/missing/history", nil, nil); status != http.StatusNotFound {
		t.Fatalf("unknown session history status = %d, want 404", status)
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/chat/session/missing/archive", nil, nil); status != http.StatusNotFound {
		t.Fatalf("unknown session archive status = %d, want 404", status)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "2024-03-15")

	var resp errorResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/session/"+created.SessionID+"/messages", messageRequest{Text: "   "}, &resp)
	if status != http.StatusBadRequest || resp.Code != "invalid_input" {
		t.Fatalf("empty message status = %d resp = %+v", status, resp)
	}
}

func TestChatGatewayFailureApologizes(t *testing.T) {
	ts := newTestServer(t, failingGateway{})
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "2024-03-15")
	base := ts.URL + "/v1/chat/session/" + created.SessionID

	var resp messageResponse
	if status := doJSON(t, http.MethodPost, base+"/messages", messageRequest{Text: "hello"}, &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.HasPrefix(resp.Reply, chat.ApologyPrefix) {
		t.Fatalf("reply = %q, want apology", resp.Reply)
	}
	if resp.Error == "" || resp.TurnCount != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	var archive struct {
		Records []transcript.Record `json:"records"`
	}
	doJSON(t, http.MethodGet, base+"/archive", nil, &archive)
	if len(archive.Records) != 0 {
		t.Fatalf("failed turn was archived: %+v", archive.Records)
	}
}

func TestCreateSessionUnknownProfile(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/session", session.CreateRequest{ProfileID: "Ghost"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestSessionWebSocketStreamsTurn(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "2024-03-15")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/session/ws?session_id=" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: created.SessionID, Text: "hello there"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var deltas strings.Builder
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		switch msg["type"] {
		case string(protocol.TypeAssistantTextDelta):
			deltas.WriteString(msg["text_delta"].(string))
		case string(protocol.TypeAssistantTurnEnd):
			if msg["reason"] != protocol.ReasonCompleted {
				t.Fatalf("turn end reason = %v", msg["reason"])
			}
			if msg["text"] != "I heard you: hello there" {
				t.Fatalf("turn end text = %v", msg["text"])
			}
			if deltas.String() != "I heard you: hello there" {
				t.Fatalf("streamed deltas = %q", deltas.String())
			}
			return
		case string(protocol.TypeErrorEvent):
			t.Fatalf("unexpected error event: %v", msg)
		}
	}
}

func TestSessionWebSocketRejectsForeignSession(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())
	createAna(t, ts.URL)
	created := createSession(t, ts.URL, "Ana", "2024-03-15")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/session/ws?session_id=" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: "other", Text: "hi"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg["type"] == string(protocol.TypeErrorEvent) {
			if msg["code"] != "invalid_client_message" {
				t.Fatalf("error code = %v", msg["code"])
			}
			return
		}
	}
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rootRes, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", rootRes.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := rootRes.Header.Get("Location"); loc != "/ui/" {
		t.Fatalf("GET / location = %q, want /ui/", loc)
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	page, _ := io.ReadAll(uiRes.Body)
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d", uiRes.StatusCode)
	}
	if !strings.Contains(string(page), `id="chat-log"`) {
		t.Fatalf("ui page missing chat log")
	}
}

func TestHealthAndPerf(t *testing.T) {
	ts := newTestServer(t, llm.NewMockGateway())

	var health map[string]any
	doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &health)
	if health["llm_provider"] != "mock" {
		t.Fatalf("health = %+v", health)
	}

	var ready map[string]any
	doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, &ready)
	if ready["status"] != "ready" {
		t.Fatalf("ready = %+v", ready)
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/perf/latency", nil, nil); status != http.StatusOK {
		t.Fatalf("perf status = %d", status)
	}
}
