// Package app wires the relay and the client from their TOML configuration.
//
// RelayConfig and ClientConfig are decoded with BurntSushi/toml and
// completed by FixupAndValidate; command-line flags override file values
// before wiring. NewRelay and NewClient then build the logging backend,
// metrics, engine, transport and services, exposing them for the commands
// in cmd/ to run.
package app
