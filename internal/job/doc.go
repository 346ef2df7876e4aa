// Package job defines the download job data model shared by the gateway
// client, the progress channel, and the session controller: formats, status
// vocabulary, submission requests, status snapshots, metadata, and the
// append-only log entries rendered by the presentation layer.
package job
