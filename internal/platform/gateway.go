package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// defaultIntents covers guilds, guild messages with content, presences and
// members, everything the commands need.
const defaultIntents = 1<<0 | 1<<9 | 1<<15 | 1<<8 | 1<<1

// GatewayConfig holds configuration for the gateway connection.
type GatewayConfig struct {
	Token   string
	URL     string // default: wss://gateway.discord.gg/?v=10&encoding=json
	Intents int    // default: defaultIntents
}

// Gateway maintains the Discord websocket session: it identifies, keeps
// the heartbeat, feeds presence events into the cache, and hands inbound
// messages to the handler. Dropped connections are resumed automatically.
type Gateway struct {
	cfg       GatewayConfig
	presence  *PresenceCache
	onMessage func(*Message)

	// onPresence, when set, receives every presence transition on the
	// read-loop goroutine. A nil state means the user stopped listening.
	onPresence func(userID string, state *ListeningState)

	mu        sync.Mutex
	wmu       sync.Mutex
	conn      *websocket.Conn //nolint:staticcheck
	seq       int64
	sessionID string
	resumeURL string
	botUserID string
}

// NewGateway creates a gateway with defaults applied. onMessage is called
// once per inbound MESSAGE_CREATE, on its own goroutine.
func NewGateway(cfg GatewayConfig, presence *PresenceCache, onMessage func(*Message)) *Gateway {
	if cfg.URL == "" {
		cfg.URL = "wss://gateway.discord.gg/?v=10&encoding=json"
	}
	if cfg.Intents == 0 {
		cfg.Intents = defaultIntents
	}
	return &Gateway{cfg: cfg, presence: presence, onMessage: onMessage}
}

// OnPresence registers a presence observer. It is called sequentially
// from the read loop; set it before Run.
func (g *Gateway) OnPresence(fn func(userID string, state *ListeningState)) {
	g.onPresence = fn
}

// BotUserID returns the bot's own user ID, known after the first READY.
func (g *Gateway) BotUserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botUserID
}

// payload is the gateway frame envelope.
type payload struct {
	Op   int             `json:"op"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Run connects and serves until ctx is canceled, reconnecting with backoff
// after any session loss.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := g.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Gateway session ended: %v, reconnecting in %s", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// serve runs a single websocket session to completion.
func (g *Gateway) serve(ctx context.Context) error {
	dialURL := g.cfg.URL
	g.mu.Lock()
	if g.resumeURL != "" {
		dialURL = g.resumeURL
	}
	g.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, dialURL, nil) //nolint:staticcheck
	if err != nil {
		g.clearSession()
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(1 << 22)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	hello, err := g.read(ctx)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go g.heartbeat(hbCtx, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	if err := g.handshake(ctx); err != nil {
		return err
	}
	return g.readLoop(ctx)
}

// handshake resumes the previous session when one exists, else identifies
// fresh.
func (g *Gateway) handshake(ctx context.Context) error {
	g.mu.Lock()
	sessionID, seq := g.sessionID, g.seq
	g.mu.Unlock()

	if sessionID != "" {
		log.Printf("Resuming gateway session %s at seq %d", sessionID, seq)
		return g.send(ctx, payload{Op: opResume, Data: mustJSON(map[string]any{
			"token":      g.cfg.Token,
			"session_id": sessionID,
			"seq":        seq,
		})})
	}
	return g.send(ctx, payload{Op: opIdentify, Data: mustJSON(map[string]any{
		"token":   g.cfg.Token,
		"intents": g.cfg.Intents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "chorus",
			"device":  "chorus",
		},
	})})
}

// readLoop consumes frames until the connection drops or the server asks
// for a reconnect.
func (g *Gateway) readLoop(ctx context.Context) error {
	for {
		p, err := g.read(ctx)
		if err != nil {
			return err
		}
		if p.Seq != nil {
			g.mu.Lock()
			g.seq = *p.Seq
			g.mu.Unlock()
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(p)
		case opHeartbeat:
			if err := g.sendHeartbeat(ctx); err != nil {
				return err
			}
		case opReconnect:
			return errors.New("server requested reconnect")
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.Data, &resumable)
			if !resumable {
				g.clearSession()
			}
			return errors.New("session invalidated")
		case opHeartbeatACK:
			// nothing to do
		}
	}
}

// dispatch routes one event frame.
func (g *Gateway) dispatch(p *payload) {
	switch p.Type {
	case "READY":
		var ready struct {
			SessionID        string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
			User             struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		if err := json.Unmarshal(p.Data, &ready); err != nil {
			log.Printf("ERROR: Failed to decode READY: %v", err)
			return
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.botUserID = ready.User.ID
		g.mu.Unlock()
		log.Printf("Gateway ready, session %s", ready.SessionID)

	case "RESUMED":
		log.Println("Gateway session resumed")

	case "MESSAGE_CREATE":
		var m discordMessage
		if err := json.Unmarshal(p.Data, &m); err != nil {
			log.Printf("ERROR: Failed to decode message: %v", err)
			return
		}
		if g.onMessage != nil {
			go g.onMessage(packMessage(&m))
		}

	case "PRESENCE_UPDATE":
		var ev presenceUpdate
		if err := json.Unmarshal(p.Data, &ev); err != nil {
			log.Printf("ERROR: Failed to decode presence: %v", err)
			return
		}
		if g.presence != nil {
			g.presence.apply(&ev)
		}
		if g.onPresence != nil {
			g.onPresence(ev.User.ID, listeningState(ev.Activities))
		}
	}
}

// heartbeat beats at the negotiated interval, with the jittered first beat
// the gateway protocol asks for.
func (g *Gateway) heartbeat(ctx context.Context, interval time.Duration) {
	first := time.Duration(rand.Float64() * float64(interval))
	select {
	case <-time.After(first):
	case <-ctx.Done():
		return
	}
	for {
		if err := g.sendHeartbeat(ctx); err != nil {
			return
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context) error {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()
	return g.send(ctx, payload{Op: opHeartbeat, Data: mustJSON(seq)})
}

func (g *Gateway) clearSession() {
	g.mu.Lock()
	g.sessionID = ""
	g.resumeURL = ""
	g.mu.Unlock()
}

func (g *Gateway) read(ctx context.Context) (*payload, error) {
	_, data, err := g.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode gateway frame: %w", err)
	}
	return &p, nil
}

// send serializes writes; the heartbeat goroutine and the read loop share
// the connection.
func (g *Gateway) send(ctx context.Context, p payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()

	g.wmu.Lock()
	defer g.wmu.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
