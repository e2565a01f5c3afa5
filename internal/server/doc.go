// Package server implements the HTTP surface of the relay. It wires the
// transfer routes to the registry and scheduler, guards sender routes with
// the shared secret and a capability cookie, and provides the health,
// metrics and lifecycle helpers used by tests and the production binary.
package server
