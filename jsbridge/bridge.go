// File: jsbridge/bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package jsbridge

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/internal/logging"
)

// ErrTimeout is returned when a script call outlives Config.Timeout.
var ErrTimeout = errors.New("script call timed out")

// Host is the server surface a script drives.
type Host interface {
	api.Broadcaster
	Rooms(id uint64) []string
	SetHandler(h api.Handler)
	SetWebSocketHandlers(cb api.WebSocketCallbacks)
}

// Config tunes the bridge.
type Config struct {
	// Timeout interrupts a single script call. Zero disables it.
	Timeout time.Duration
}

// Bridge owns one goja runtime. It implements api.Handler once the script
// registers onRequest.
type Bridge struct {
	host Host
	cfg  Config
	log  zerolog.Logger

	mu        sync.Mutex
	rt        *goja.Runtime
	onRequest goja.Callable
	onOpen    goja.Callable
	onMessage goja.Callable
	onClose   goja.Callable
}

var _ api.Handler = (*Bridge)(nil)

// New builds a runtime with the server and console globals bound to host.
func New(host Host, cfg Config) (*Bridge, error) {
	b := &Bridge{
		host: host,
		cfg:  cfg,
		log:  logging.With().Str("component", "jsbridge").Logger(),
		rt:   goja.New(),
	}
	if err := b.bind(); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadFile runs the script at path.
func (b *Bridge) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return b.Load(path, string(src))
}

// Load runs src. Registrations it makes take effect on the host immediately.
func (b *Bridge) Load(name, src string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.guard(func() (goja.Value, error) { return b.rt.RunScript(name, src) }); err != nil {
		return fmt.Errorf("run script %s: %w", name, err)
	}
	return nil
}

// ServeRequest hands req to the script's onRequest function.
func (b *Bridge) ServeRequest(req *api.Request) (*api.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.onRequest == nil {
		return nil, &api.HandlerError{Status: 404, Err: errors.New("no request handler registered")}
	}
	v, err := b.guard(func() (goja.Value, error) {
		return b.onRequest(goja.Undefined(), b.requestValue(req))
	})
	if err != nil {
		return nil, err
	}
	return b.toResponse(v)
}

// callbacks returns server callbacks for the functions the script registered
// through server.websocket. Unset functions stay nil, so an empty registration
// leaves upgrades to the HTTP handler. Callers hold b.mu.
func (b *Bridge) callbacks() api.WebSocketCallbacks {
	var cb api.WebSocketCallbacks
	if b.onOpen != nil {
		cb.Open = func(c api.Conn) {
			b.dispatch("open", func() goja.Callable { return b.onOpen }, c)
		}
	}
	if b.onMessage != nil {
		cb.Message = func(c api.Conn, m api.Message) {
			b.dispatch("message", func() goja.Callable { return b.onMessage }, c, m)
		}
	}
	if b.onClose != nil {
		cb.Close = func(c api.Conn) {
			b.dispatch("close", func() goja.Callable { return b.onClose }, c)
		}
	}
	return cb
}

// dispatch calls a websocket callback. Script exceptions are logged and
// swallowed so the session keeps running.
func (b *Bridge) dispatch(kind string, pick func() goja.Callable, c api.Conn, msg ...api.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn := pick()
	if fn == nil {
		return
	}
	args := []goja.Value{b.connValue(c)}
	if len(msg) > 0 {
		args = append(args, b.messageValue(msg[0]))
	}
	if _, err := b.guard(func() (goja.Value, error) { return fn(goja.Undefined(), args...) }); err != nil {
		control.RecordCallbackFailure(kind)
		b.log.Error().Err(err).Str("callback", kind).Uint64("conn_id", c.ID()).Msg("script callback failed")
	}
}

// guard runs fn with the configured interrupt timer. Callers hold b.mu.
func (b *Bridge) guard(fn func() (goja.Value, error)) (goja.Value, error) {
	if b.cfg.Timeout > 0 {
		fired := make(chan struct{})
		t := time.AfterFunc(b.cfg.Timeout, func() {
			b.rt.Interrupt(ErrTimeout)
			close(fired)
		})
		defer func() {
			// A timer that already fired must finish its Interrupt before the
			// flag is cleared, or the next call inherits it.
			if !t.Stop() {
				<-fired
			}
			b.rt.ClearInterrupt()
		}()
	}
	v, err := fn()
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return v, nil
}

// bind installs the server and console globals.
func (b *Bridge) bind() error {
	srv := b.rt.NewObject()
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"onRequest":     b.jsOnRequest,
		"websocket":     b.jsWebSocket,
		"send":          b.jsSend,
		"broadcast":     b.jsBroadcast,
		"join":          b.jsJoin,
		"leave":         b.jsLeave,
		"broadcastRoom": b.jsBroadcastRoom,
		"rooms":         b.jsRooms,
	}
	for name, fn := range fns {
		if err := srv.Set(name, fn); err != nil {
			return err
		}
	}
	if err := b.rt.Set("server", srv); err != nil {
		return err
	}

	console := b.rt.NewObject()
	for name, level := range map[string]zerolog.Level{
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	} {
		if err := console.Set(name, b.consoleFunc(level)); err != nil {
			return err
		}
	}
	return b.rt.Set("console", console)
}

func (b *Bridge) consoleFunc(level zerolog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		b.log.WithLevel(level).Str("source", "script").Msg(strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (b *Bridge) callable(v goja.Value, what string) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(b.rt.NewTypeError("%s must be a function", what))
	}
	return fn
}

func (b *Bridge) jsOnRequest(call goja.FunctionCall) goja.Value {
	b.onRequest = b.callable(call.Argument(0), "onRequest handler")
	b.host.SetHandler(b)
	return goja.Undefined()
}

func (b *Bridge) jsWebSocket(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if isNullish(arg) {
		panic(b.rt.NewTypeError("websocket expects {open, message, close}"))
	}
	obj := arg.ToObject(b.rt)
	pick := func(name string) goja.Callable {
		v := obj.Get(name)
		if isNullish(v) {
			return nil
		}
		return b.callable(v, name)
	}
	b.onOpen, b.onMessage, b.onClose = pick("open"), pick("message"), pick("close")
	b.host.SetWebSocketHandlers(b.callbacks())
	return goja.Undefined()
}

func (b *Bridge) jsSend(call goja.FunctionCall) goja.Value {
	err := b.host.Send(toID(call.Argument(0)), b.toBytes(call.Argument(1)))
	return b.rt.ToValue(err == nil)
}

func (b *Bridge) jsBroadcast(call goja.FunctionCall) goja.Value {
	n := b.host.Broadcast(b.toBytes(call.Argument(0)), toID(call.Argument(1)))
	return b.rt.ToValue(n)
}

func (b *Bridge) jsJoin(call goja.FunctionCall) goja.Value {
	err := b.host.Join(toID(call.Argument(0)), call.Argument(1).String())
	return b.rt.ToValue(err == nil)
}

func (b *Bridge) jsLeave(call goja.FunctionCall) goja.Value {
	err := b.host.Leave(toID(call.Argument(0)), call.Argument(1).String())
	return b.rt.ToValue(err == nil)
}

func (b *Bridge) jsBroadcastRoom(call goja.FunctionCall) goja.Value {
	n := b.host.BroadcastRoom(call.Argument(0).String(), b.toBytes(call.Argument(1)), toID(call.Argument(2)))
	return b.rt.ToValue(n)
}

func (b *Bridge) jsRooms(call goja.FunctionCall) goja.Value {
	rooms := b.host.Rooms(toID(call.Argument(0)))
	if rooms == nil {
		rooms = []string{}
	}
	return b.rt.ToValue(rooms)
}
