// Package app contains the hub's process shell. It wires the aggregator,
// the producer ingest endpoint, the viewer feed server and the metrics and
// health endpoints onto one HTTP server, decoupled from any specific
// entrypoint like a CLI.
package app
