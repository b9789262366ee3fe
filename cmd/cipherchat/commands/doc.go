// Package commands defines the cipherchat CLI.
//
// Commands
//
//   - chat       Interactive session: see peers, pick one, exchange messages
//   - send       Encrypt and send one message, then disconnect
//   - peers      Print the identities currently connected to the relay
//   - genconfig  Print a default client configuration
//
// # Implementation
//
// The root command loads the TOML configuration and applies flag
// overrides before any subcommand runs. Each connecting subcommand
// generates a fresh key pair, so identities and secrets last exactly as
// long as the connection.
package commands
