package module

import (
	"context"
	stderrors "errors"
	"text/template"
	"time"

	"github.com/c360/swaybar/bus"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/pkg/retry"
	"github.com/c360/swaybar/protocol"
)

const busActionTimeout = 5 * time.Second

// actionRetry retries a click action that failed for a passing reason.
// Quick's delays keep every attempt well inside busActionTimeout.
func actionRetry() retry.Config {
	cfg := retry.Quick()
	cfg.MaxAttempts = 3
	return cfg
}

// retryable marks errors retrying cannot fix so retry.Do gives up at once
func retryable(err error) error {
	if err != nil && !errors.IsTransient(err) {
		return retry.NonRetryable(err)
	}
	return err
}

// Bus renders properties of one bus object and re-renders on every change
// signal. Clicks toggle a boolean property or call a method.
type Bus struct {
	base
	opts   BusOptions
	obj    bus.Object
	dialer bus.Dialer
	tmpl   *template.Template
	clicks chan protocol.ClickEvent
}

// busView is what a bus module's format template sees
type busView struct {
	Name  string
	Value any
	Props map[string]any
}

// propertyLister is implemented by backends that can read every property
// at once
type propertyLister interface {
	GetAll(ctx context.Context, obj bus.Object) (map[string]any, error)
}

func newBus(spec Spec, deps Deps) (*Bus, error) {
	opts := *spec.Bus
	if opts.Backend == "" {
		opts.Backend = BackendDBus
	}

	tmpl, err := parseFormat(spec.Name, opts.Format)
	if err != nil {
		return nil, err
	}

	dialer := deps.Dialer
	if dialer == nil {
		switch opts.Backend {
		case BackendNATS:
			dialer = bus.NATSDialer{
				Config:  deps.NATS,
				Logger:  deps.Logger,
				Metrics: deps.Metrics,
				Health:  deps.Health,
				Label:   protocol.Key(spec.Name, spec.Instance),
			}
		default:
			dialer = bus.DBusDialer{Bus: opts.Bus, Logger: deps.Logger}
		}
	}

	b, err := newBase(spec, deps)
	if err != nil {
		return nil, err
	}

	return &Bus{
		base:   b,
		opts:   opts,
		obj:    bus.Object{Service: opts.Service, Path: opts.Path, Interface: opts.Interface},
		dialer: dialer,
		tmpl:   tmpl,
		clicks: make(chan protocol.ClickEvent, 4),
	}, nil
}

// Run keeps one connection and subscription alive, redialing with backoff
// when the connection drops.
func (b *Bus) Run(ctx context.Context, sink Sink) error {
	p := b.newPolicy()

	for {
		client, err := b.dialer.Dial(ctx)
		if err != nil {
			if err := p.failed(ctx, sink, err); err != nil {
				return stopErr(ctx, err)
			}
			continue
		}
		b.metrics.RecordBusStatus(b.key, true)

		err = b.session(ctx, sink, client, p)
		if closeErr := client.Close(); closeErr != nil {
			b.logger.Debug("Bus close failed", "error", closeErr)
		}
		b.metrics.RecordBusStatus(b.key, false)

		if ctx.Err() != nil {
			return nil
		}
		if emitErr := b.emitError(ctx, sink, "disconnected", nil); emitErr != nil {
			return nil
		}
		if err := p.failed(ctx, sink, err); err != nil {
			return stopErr(ctx, err)
		}
	}
}

// stopErr hides cancellation from the caller; only a fatal stop is an error
func stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// session serves one connection. It returns nil only when ctx is done.
func (b *Bus) session(ctx context.Context, sink Sink, client bus.Client, p *policy) error {
	sub, err := client.Subscribe(ctx, b.obj)
	if err != nil {
		return err
	}
	defer sub.Close()

	props, err := b.initial(ctx, client)
	if err != nil {
		return err
	}
	if err := b.show(ctx, sink, props); err != nil {
		return nil
	}
	p.succeeded()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig, ok := <-sub.Signals():
			if !ok {
				return errors.WrapTransient(errors.ErrConnectionLost, "Bus", "session", "subscription")
			}
			if sig.Err != nil {
				b.logger.Warn("Bus connection interrupted", "error", sig.Err)
				if err := b.emitError(ctx, sink, "disconnected", nil); err != nil {
					return nil
				}
				continue
			}
			for k, v := range sig.Changed {
				props[k] = v
			}
			if err := b.show(ctx, sink, props); err != nil {
				return nil
			}

		case ev := <-b.clicks:
			if b.act(ctx, client, props, ev) {
				if err := b.show(ctx, sink, props); err != nil {
					return nil
				}
			}
		}
	}
}

// initial loads the starting property values
func (b *Bus) initial(ctx context.Context, client bus.Client) (map[string]any, error) {
	props := map[string]any{}

	if lister, ok := client.(propertyLister); ok && b.obj.Interface != "" {
		all, err := lister.GetAll(ctx, b.obj)
		if err != nil {
			return nil, err
		}
		for k, v := range all {
			props[k] = v
		}
		return props, nil
	}

	if b.opts.Property == "" {
		return props, nil
	}
	v, err := client.Get(ctx, b.obj, b.opts.Property)
	switch {
	case stderrors.Is(err, bus.ErrNotSupported):
		// Wait for the first change signal instead
	case err != nil:
		return nil, err
	default:
		props[b.opts.Property] = v
	}
	return props, nil
}

func (b *Bus) show(ctx context.Context, sink Sink, props map[string]any) error {
	view := busView{Name: b.name, Props: props}
	if b.opts.Property != "" {
		view.Value = props[b.opts.Property]
	}
	text, err := render(b.tmpl, view)
	if err != nil {
		b.logger.Warn("Format failed", "error", err)
		return b.emitError(ctx, sink, "format", err)
	}
	return b.emitText(ctx, sink, text, view, view.Value)
}

// act performs the configured click action and reports whether props
// changed locally.
func (b *Bus) act(ctx context.Context, client bus.Client, props map[string]any, ev protocol.ClickEvent) bool {
	ctx, cancel := context.WithTimeout(ctx, busActionTimeout)
	defer cancel()

	switch b.opts.OnClick {
	case ActionToggle:
		current, _ := props[b.opts.Property].(bool)
		err := retry.Do(ctx, actionRetry(), func() error {
			return retryable(client.Set(ctx, b.obj, b.opts.Property, !current))
		})
		if err != nil {
			b.logger.Warn("Toggle failed", "property", b.opts.Property, "error", err)
			return false
		}
		props[b.opts.Property] = !current
		return true
	case ActionCall:
		reply, err := retry.DoWithResult(ctx, actionRetry(), func() ([]any, error) {
			out, err := client.Call(ctx, b.obj, b.opts.Method, b.opts.Args...)
			return out, retryable(err)
		})
		if err != nil {
			b.logger.Warn("Call failed", "method", b.opts.Method, "button", ev.Button, "error", err)
			return false
		}
		b.logger.Debug("Call returned", "method", b.opts.Method, "reply", reply)
	}
	return false
}

// Click queues the configured action for the run loop, which owns the
// connection. Without an action it does nothing.
func (b *Bus) Click(ctx context.Context, ev protocol.ClickEvent) error {
	if b.opts.OnClick == "" {
		return nil
	}
	select {
	case b.clicks <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
