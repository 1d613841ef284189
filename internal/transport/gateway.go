// Package transport carries interview sessions over websockets. Each
// connection may own any number of sessions; events for a session go to
// the connection that most recently addressed it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/interviewer/internal/engine"
	"github.com/pavelanni/interviewer/internal/model"
)

var (
	// ErrNotConnected is returned by Emit when no connection is bound to
	// the session.
	ErrNotConnected = errors.New("no connection bound to session")
	// ErrClosed is returned when the bound connection is shutting down.
	ErrClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection's send buffer is full.
	// The connection is dropped.
	ErrSlowConsumer = errors.New("send buffer full")
)

// Engine is the session API the gateway dispatches to.
type Engine interface {
	Start(ctx context.Context, p engine.StartParams) (string, error)
	SubmitAnswer(ctx context.Context, p engine.AnswerParams) error
	Hint(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (model.StateUpdate, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Typing(ctx context.Context, id string, typing bool) error
	End(ctx context.Context, id string) error
}

// Options tune connection handling. Zero values take defaults.
type Options struct {
	RatePerSecond   float64
	Burst           int
	SendBuffer      int
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongWait        time.Duration
	// AllowedOrigins lists acceptable Origin headers. Empty allows any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

// Gateway accepts websocket connections and implements engine.Emitter.
type Gateway struct {
	opts     Options
	upgrader websocket.Upgrader
	validate *validator.Validate

	mu       sync.Mutex
	bindings map[string]*client
	clients  map[*client]struct{}
	wg       sync.WaitGroup
}

// NewGateway creates a gateway. Attach it to an engine with Handler.
func NewGateway(opts Options) *Gateway {
	opts = opts.withDefaults()
	g := &Gateway{
		opts:     opts,
		validate: newValidator(),
		bindings: make(map[string]*client),
		clients:  make(map[*client]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(g.opts.AllowedOrigins, r.Header.Get("Origin"))
}

type clientKey struct{}

func withClient(ctx context.Context, c *client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func clientFrom(ctx context.Context) *client {
	c, _ := ctx.Value(clientKey{}).(*client)
	return c
}

// Emit delivers an event to the connection bound to its session. An
// unbound session is bound to the requesting connection carried in ctx,
// which is how a freshly started session finds its owner.
func (g *Gateway) Emit(ctx context.Context, ev model.Event) error {
	g.mu.Lock()
	c, ok := g.bindings[ev.SessionID]
	if !ok {
		if rc := clientFrom(ctx); rc != nil && !rc.isClosed() {
			g.bindings[ev.SessionID] = rc
			c, ok = rc, true
		}
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", ev.SessionID, ErrNotConnected)
	}
	return c.send(eventMessage(ev))
}

// Bound reports whether a live connection owns the session.
func (g *Gateway) Bound(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.bindings[sessionID]
	return ok
}

func (g *Gateway) bind(sessionID string, c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.bindings[sessionID]; ok && prev != c {
		slog.Info("session rebound", "session_id", sessionID, "from", prev.id, "to", c.id)
	}
	g.bindings[sessionID] = c
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()
}

// unregister drops the client and every binding it still holds. Sessions
// themselves are untouched.
func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, c)
	for sid, owner := range g.bindings {
		if owner == c {
			delete(g.bindings, sid)
		}
	}
}

// Handler returns the websocket endpoint dispatching to e.
func (g *Gateway) Handler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		c := newClient(uuid.NewString(), ws, g.opts)
		g.register(c)
		slog.Info("client connected", "client_id", c.id, "remote", r.RemoteAddr)

		go c.writeLoop()
		// Requests outlive the connection so an in-flight evaluation
		// still lands in the session.
		ctx := context.WithoutCancel(r.Context())
		g.readLoop(ctx, c, e)

		c.close()
		g.unregister(c)
		slog.Info("client disconnected", "client_id", c.id)
	})
}

// Close drops every connection and waits for in-flight requests.
func (g *Gateway) Close() {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	g.wg.Wait()
}

func (g *Gateway) readLoop(ctx context.Context, c *client, e Engine) {
	c.ws.SetReadLimit(g.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	// One worker per connection keeps requests in arrival order.
	queue := make(chan Request, g.opts.SendBuffer)
	defer close(queue)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for req := range queue {
			g.dispatch(withClient(ctx, c), c, e, req)
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("read failed", "client_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))

		req, err := decodeRequest(g.validate, data)
		if !c.limiter.Allow() {
			err = &requestError{code: CodeRateLimited, msg: "too many requests"}
		}
		if err != nil {
			c.reply(req.ID, err)
			continue
		}
		select {
		case queue <- req:
		default:
			c.reply(req.ID, &requestError{code: CodeRateLimited, msg: "too many pending requests"})
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *client, e Engine, req Request) {
	slog.Debug("request", "client_id", c.id, "type", req.Type, "id", req.ID)
	var (
		ack Ack
		err error
	)
	switch req.Type {
	case TypeStart:
		var p StartPayload
		if err = decodePayload(g.validate, req, &p); err == nil {
			ack.SessionID, err = e.Start(ctx, engine.StartParams{
				UserID:   p.UserID,
				ResumeID: p.ResumeID,
				JobID:    p.JobID,
				Kind:     p.Kind,
			})
		}
	case TypeSubmitAnswer:
		var p AnswerPayload
		if err = decodePayload(g.validate, req, &p); err == nil {
			g.bind(p.SessionID, c)
			ack.SessionID = p.SessionID
			err = e.SubmitAnswer(ctx, engine.AnswerParams{
				SessionID:  p.SessionID,
				TurnNumber: p.TurnNumber,
				Text:       p.Text,
				TimeSpent:  p.TimeSpentSec,
				MediaRef:   p.MediaRef,
			})
		}
	case TypeTyping:
		var p TypingPayload
		if err = decodePayload(g.validate, req, &p); err == nil {
			ack.SessionID = p.SessionID
			err = e.Typing(ctx, p.SessionID, p.Typing)
		}
	default:
		var p SessionPayload
		if err = decodePayload(g.validate, req, &p); err == nil {
			g.bind(p.SessionID, c)
			ack.SessionID = p.SessionID
			err = g.sessionOp(ctx, e, req.Type, p.SessionID, &ack)
		}
	}
	if err != nil {
		c.reply(req.ID, err)
		return
	}
	if req.ID != "" {
		_ = c.send(Message{Type: TypeAck, ID: req.ID, SessionID: ack.SessionID, Payload: ack, Timestamp: time.Now().UTC()})
	}
}

func (g *Gateway) sessionOp(ctx context.Context, e Engine, typ, id string, ack *Ack) error {
	switch typ {
	case TypeRequestHint:
		return e.Hint(ctx, id)
	case TypeGetStatus:
		st, err := e.Status(ctx, id)
		if err == nil {
			ack.Status = &st
		}
		return err
	case TypePause:
		return e.Pause(ctx, id)
	case TypeResume:
		return e.Resume(ctx, id)
	case TypeEnd:
		return e.End(ctx, id)
	}
	return invalid("unknown request type %q", typ)
}

// errorEnvelope maps an error onto the client-facing code and message.
func errorEnvelope(err error) model.ErrorEnvelope {
	var rerr *requestError
	if errors.As(err, &rerr) {
		return model.ErrorEnvelope{Code: rerr.code, Message: rerr.msg}
	}
	var eerr *engine.Error
	if errors.As(err, &eerr) {
		return model.ErrorEnvelope{Code: eerr.Code(), Message: eerr.Error()}
	}
	slog.Error("unexpected request failure", "error", err)
	return model.ErrorEnvelope{Code: CodeInternal, Message: "internal error"}
}
