// Package socketio provides a native context module backed by a socket.io
// connection. Events named in `on` become cells holding the latest payload,
// and the exported `emit` handler forwards DOM events to the server.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"reflect"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const defaultEmitEvent = "dom_event"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted in the script body.
type Input struct {
	URL                string   `hcl:"url"`
	Namespace          string   `hcl:"namespace,optional"`
	On                 []string `hcl:"on,optional"`
	EmitEvent          string   `hcl:"emit_event,optional"`
	InsecureSkipVerify bool     `hcl:"insecure_skip_verify,optional"`
}

// reserved names cannot be used for subscribed events.
var reserved = map[string]bool{"connected": true, "emit": true}

// Emitter forwards events to the server.
type Emitter struct {
	ctx   context.Context
	io    *socket.Socket
	event string
}

// HandleEvent implements directive.EventHandler.
func (e *Emitter) HandleEvent(ev tree.Event) {
	payload := map[string]any{"type": ev.Type}
	if ev.Target != nil {
		id, _ := ev.Target.Attr("id")
		payload["target"] = id
	}
	if ev.Detail != nil {
		detail, err := toInterface(ev.Detail)
		if err != nil {
			ctxlog.FromContext(e.ctx).Warn("Dropping undeliverable event detail.", "event", ev.Type, "error", err)
		} else {
			payload["detail"] = detail
		}
	}
	ctxlog.FromContext(e.ctx).Debug("Emitting event", "event", e.event, "type", ev.Type)
	e.io.Emit(e.event, payload)
}

func validate(in *Input) (*url.URL, error) {
	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", in.URL)
	}
	seen := make(map[string]bool, len(in.On))
	for _, name := range in.On {
		switch {
		case name == "":
			return nil, fmt.Errorf("event names must not be empty")
		case reserved[name]:
			return nil, fmt.Errorf("event name %q is reserved", name)
		case seen[name]:
			return nil, fmt.Errorf("event %q subscribed twice", name)
		}
		seen[name] = true
	}
	return parsedURL, nil
}

// Instantiate connects in the background and exports `connected`, `emit` and
// one cell per subscribed event. Socket callbacks post their writes to the
// queue; disposing the module disconnects.
func Instantiate(ctx context.Context, env *registry.Env, input any) (any, error) {
	in := input.(*Input)
	parsedURL, err := validate(in)
	if err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx).With("module", "socketio", "url", in.URL)

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)

	exports := bindctx.Context{}
	connected := env.Runtime.NewCell(cty.False)
	exports["connected"] = connected
	stopped := false
	post := func(fn func()) {
		env.Queue.Post(func() {
			if !stopped {
				fn()
			}
		})
	}

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		post(func() { connected.Set(cty.True) })
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Info("Disconnected", "reason", reason)
		post(func() { connected.Set(cty.False) })
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Warn("Connection failed", "error", errs)
	})

	for _, name := range in.On {
		cell := env.Runtime.NewCell(cty.NullVal(cty.DynamicPseudoType))
		exports[name] = cell
		io.On(types.EventName(name), func(data ...any) {
			value := cty.NullVal(cty.DynamicPseudoType)
			if len(data) > 0 {
				v, err := toCty(data[0])
				if err != nil {
					logger.Warn("Dropping payload that cannot be represented.", "event", name, "error", err)
					return
				}
				value = v
			}
			post(func() { cell.Set(value) })
		})
	}

	emitEvent := in.EmitEvent
	if emitEvent == "" {
		emitEvent = defaultEmitEvent
	}
	exports["emit"] = &Emitter{ctx: ctx, io: io, event: emitEvent}

	env.OnCleanup(func() {
		stopped = true
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	})
	logger.Debug("Initiating connection...")
	io.Connect()

	return exports, nil
}

// Register registers the module with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("socketio", &registry.RegisteredModule{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        Instantiate,
	})
}
