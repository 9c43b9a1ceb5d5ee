package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/baziview/internal/protocol"
)

type options struct {
	baseURL        string
	profileID      string
	date           string
	turns          int
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createProfileRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	BirthTime string `json:"birth_time"`
	Timezone  string `json:"timezone"`
}

type createSessionRequest struct {
	ProfileID string `json:"profile_id"`
	Date      string `json:"date,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type      string `json:"type"`
	TurnID    string `json:"turn_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
}

// turnSample is the client-side view of one exchange.
type turnSample struct {
	FirstDelta time.Duration
	Total      time.Duration
	Reason     string
}

var defaultQuestions = []string{
	"What does my day pillar say about me?",
	"How does today's reading affect my work?",
	"Which element should I strengthen?",
	"Summarize my chart in one sentence.",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "baziview base URL")
	flag.StringVar(&cfg.profileID, "profile-id", "", "existing profile id (a synthetic profile is created when empty)")
	flag.StringVar(&cfg.date, "date", "", "reading date for the session (default today)")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.IntVar(&startDelayMS, "start-delay-ms", 200, "delay before first turn in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 90000, "timeout waiting for assistant_turn_end per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "questions separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	texts, err := splitTexts(textsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.texts = texts
	return cfg, nil
}

func splitTexts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultQuestions...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty questions")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	if cfg.profileID == "" {
		id, err := createProfile(ctx, httpClient, cfg.baseURL)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		cfg.profileID = id
	}

	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perfchat: session=%s profile=%s turns=%d\n", sessionID, cfg.profileID, cfg.turns)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	events := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	samples := make([]turnSample, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("perfchat: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}
		started := time.Now()
		msg := protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: sessionID, Text: text}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		sample, err := awaitTurnEnd(events, readErrCh, started, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await assistant_turn_end: %w", i+1, err)
		}
		samples = append(samples, sample)
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Println(summarize(samples))
	return nil
}

func createProfile(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := postJSON(ctx, client, baseURL+"/v1/profiles", createProfileRequest{
		Name:      "PerfReplay",
		BirthDate: "1990-05-17",
		BirthTime: "08:30",
		Timezone:  "UTC+00:00",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("missing id in response")
	}
	return out.ID, nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	var out createSessionResponse
	err := postJSON(ctx, client, cfg.baseURL+"/v1/chat/session", createSessionRequest{
		ProfileID: cfg.profileID,
		Date:      cfg.date,
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func postJSON(ctx context.Context, client *http.Client, target string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == string(protocol.TypeErrorEvent) && verbose {
			fmt.Fprintf(os.Stderr, "perfchat: error_event code=%s detail=%s\n", env.Code, env.Detail)
		}
		events <- env
	}
}

func awaitTurnEnd(events <-chan wsEnvelope, readErrCh <-chan error, started time.Time, timeout time.Duration) (turnSample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var sample turnSample
	for {
		select {
		case env := <-events:
			switch env.Type {
			case string(protocol.TypeAssistantTextDelta):
				if sample.FirstDelta == 0 {
					sample.FirstDelta = time.Since(started)
				}
			case string(protocol.TypeAssistantTurnEnd):
				sample.Total = time.Since(started)
				sample.Reason = env.Reason
				return sample, nil
			}
		case err := <-readErrCh:
			return turnSample{}, err
		case <-timer.C:
			return turnSample{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func summarize(samples []turnSample) string {
	if len(samples) == 0 {
		return "perfchat: no turns"
	}
	var first, total []time.Duration
	failed := 0
	for _, s := range samples {
		if s.Reason != protocol.ReasonCompleted {
			failed++
		}
		if s.FirstDelta > 0 {
			first = append(first, s.FirstDelta)
		}
		total = append(total, s.Total)
	}
	return fmt.Sprintf("perfchat: turns=%d failed=%d first_delta_p50=%s first_delta_p95=%s total_p50=%s total_p95=%s",
		len(samples), failed,
		percentile(first, 50), percentile(first, 95),
		percentile(total, 50), percentile(total, 95))
}

// percentile uses nearest rank.
func percentile(values []time.Duration, p int) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1].Round(time.Millisecond)
}
