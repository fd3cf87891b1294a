package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/c360/swaybar/errors"
)

const (
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
)

// Bus names accepted by DialDBus
const (
	SystemBus  = "system"
	SessionBus = "session"
)

// DBus is a Client backed by a godbus connection
type DBus struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// DBusDialer dials the system or session bus
type DBusDialer struct {
	Bus    string
	Logger *slog.Logger
}

// Dial implements Dialer
func (d DBusDialer) Dial(ctx context.Context) (Client, error) {
	return DialDBus(ctx, d.Bus, d.Logger)
}

// DialDBus connects to the named bus ("system" or "session")
func DialDBus(ctx context.Context, bus string, logger *slog.Logger) (*DBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case SystemBus, "":
		conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	case SessionBus:
		conn, err = dbus.ConnectSessionBus(dbus.WithContext(ctx))
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown bus %q", errors.ErrInvalidConfig, bus),
			"DBus", "Dial", "bus selection")
	}
	if err != nil {
		return nil, errors.WrapTransient(stderrors.Join(errors.ErrNoConnection, err), "DBus", "Dial", "connect")
	}

	return &DBus{conn: conn, logger: logger.With("component", "dbus", "bus", bus)}, nil
}

// NewDBus wraps an existing connection
func NewDBus(conn *dbus.Conn, logger *slog.Logger) *DBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBus{conn: conn, logger: logger.With("component", "dbus")}
}

func matchOptions(obj Object) []dbus.MatchOption {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(dbus.ObjectPath(obj.Path)),
	}
	if obj.Interface != "" {
		opts = append(opts, dbus.WithMatchArg(0, obj.Interface))
	}
	return opts
}

// Subscribe implements Client
func (d *DBus) Subscribe(ctx context.Context, obj Object) (*Subscription, error) {
	opts := matchOptions(obj)
	if err := d.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, errors.WrapTransient(stderrors.Join(errors.ErrSubscriptionFailed, err), "DBus", "Subscribe", "add match")
	}

	raw := make(chan *dbus.Signal, 16)
	d.conn.Signal(raw)

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Signal, 16)

	go func() {
		defer close(out)
		for {
			select {
			case <-subCtx.Done():
				d.conn.RemoveSignal(raw)
				if d.conn.Connected() {
					if err := d.conn.RemoveMatchSignalContext(context.Background(), opts...); err != nil {
						d.logger.Debug("Failed to remove signal match", "path", obj.Path, "error", err)
					}
				}
				return
			case sig, ok := <-raw:
				if !ok {
					// godbus closes signal channels when the connection dies
					select {
					case out <- Signal{Path: obj.Path, Interface: obj.Interface, Err: errors.ErrConnectionLost}:
					case <-subCtx.Done():
					}
					return
				}
				decoded, ok := decodePropertiesChanged(sig, obj)
				if !ok {
					continue
				}
				select {
				case out <- decoded:
				case <-subCtx.Done():
				}
			}
		}
	}()

	return NewSubscription(out, cancel), nil
}

// decodePropertiesChanged turns a raw PropertiesChanged signal into a
// Signal for obj, reporting false when the signal is for something else.
func decodePropertiesChanged(sig *dbus.Signal, obj Object) (Signal, bool) {
	if sig == nil || sig.Name != propertiesChanged || string(sig.Path) != obj.Path {
		return Signal{}, false
	}
	if len(sig.Body) < 2 {
		return Signal{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || (obj.Interface != "" && iface != obj.Interface) {
		return Signal{}, false
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return Signal{}, false
	}

	changed := make(map[string]any, len(props))
	for name, v := range props {
		changed[name] = v.Value()
	}
	return Signal{Path: obj.Path, Interface: iface, Changed: changed}, true
}

// Get implements Client
func (d *DBus) Get(ctx context.Context, obj Object, property string) (any, error) {
	var v dbus.Variant
	call := d.conn.Object(obj.Service, dbus.ObjectPath(obj.Path)).
		CallWithContext(ctx, propertiesInterface+".Get", 0, obj.Interface, property)
	if err := call.Store(&v); err != nil {
		return nil, d.classify(err, "Get", "get property")
	}
	return v.Value(), nil
}

// GetAll reads every property of obj's interface
func (d *DBus) GetAll(ctx context.Context, obj Object) (map[string]any, error) {
	var props map[string]dbus.Variant
	call := d.conn.Object(obj.Service, dbus.ObjectPath(obj.Path)).
		CallWithContext(ctx, propertiesInterface+".GetAll", 0, obj.Interface)
	if err := call.Store(&props); err != nil {
		return nil, d.classify(err, "GetAll", "get properties")
	}
	out := make(map[string]any, len(props))
	for name, v := range props {
		out[name] = v.Value()
	}
	return out, nil
}

// Set implements Client
func (d *DBus) Set(ctx context.Context, obj Object, property string, value any) error {
	call := d.conn.Object(obj.Service, dbus.ObjectPath(obj.Path)).
		CallWithContext(ctx, propertiesInterface+".Set", 0, obj.Interface, property, dbus.MakeVariant(value))
	if call.Err != nil {
		return d.classify(call.Err, "Set", "set property")
	}
	return nil
}

// Call implements Client
func (d *DBus) Call(ctx context.Context, obj Object, method string, args ...any) ([]any, error) {
	call := d.conn.Object(obj.Service, dbus.ObjectPath(obj.Path)).
		CallWithContext(ctx, obj.Interface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, d.classify(call.Err, "Call", "call "+method)
	}
	return call.Body, nil
}

// Close implements Client
func (d *DBus) Close() error {
	return d.conn.Close()
}

// classify separates errors the remote side returned, which retrying will
// not fix, from transport failures.
func (d *DBus) classify(err error, method, action string) error {
	var remote dbus.Error
	if stderrors.As(err, &remote) {
		return errors.WrapInvalid(err, "DBus", method, action)
	}
	if !d.conn.Connected() {
		return errors.WrapTransient(stderrors.Join(errors.ErrConnectionLost, err), "DBus", method, action)
	}
	return errors.WrapTransient(err, "DBus", method, action)
}
