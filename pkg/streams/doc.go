// Package streams downloads the remote waste-stream definitions and keeps a local copy.
//
// The definitions are a JSON document served over HTTP. [Fetcher] retrieves it, following a
// bounded number of redirects itself so that relative and percent-encoded Location headers are
// handled the same way on every platform. [Store] persists the text atomically, and [Updater]
// combines the two behind a circuit breaker so that an unreachable server is not polled on every
// scheduled refresh.
package streams
