// Package bus is the property-change collaborator for bus-driven modules.
//
// Client hides the transport behind four primitives: Subscribe returns a
// Subscription whose Signals channel is a lazy sequence of property changes
// for one object, and Get, Set and Call read, write and invoke on it.
//
// Two backends exist. DBus talks to the system or session D-Bus through
// godbus and listens for org.freedesktop.DBus.Properties.PropertiesChanged.
// NATS maps object paths to subjects ("/org/bluez/hci0" is
// "org.bluez.hci0") and exchanges small JSON bodies, which lets a remote
// host or a test publisher drive a module.
//
// Modules hold a Dialer rather than a Client so they can redial after the
// connection goes away.
package bus
