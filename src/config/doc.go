// Package config defines the configuration of a client.
//
// Regardless of how the client is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, the client relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the hex private key (cf. popclient keygen).
//  popclient.toml // (optional) the configuration file (.json and .yaml also work).
//  badger_db // (optional) the message database, when Store is set.
package config
