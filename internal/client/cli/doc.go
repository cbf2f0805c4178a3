// Package cli implements the zkshare command-line client.
//
// Each invocation runs a single command:
//
//	zkshare upload   [--password] [--ttl hours] [--downloads n] <file>
//	zkshare download [--password] [-o out] [--force] <link>
//	zkshare info     <fileId|link>
//	zkshare extend   [--token t] [--hours n] <fileId>
//	zkshare delete   [--token t] <fileId>
//	zkshare list
//
// Client settings (server URL, pipeline tuning, key cache, history database)
// come from internal/client/config and are accepted by every command.
// Passwords are read from the terminal without echo and never appear in
// arguments.
package cli
