// Package netclient is the network collaborator for poll modules.
//
// Client.Do performs one HTTP request under a per-attempt timeout and
// classifies the outcome: transport errors, timeouts and non-2xx statuses
// are transient, so the caller's backoff applies; a request that cannot be
// built is invalid. FetchJSON adds JSON decoding and ExtractField pulls a
// value out of the decoded document by dot path.
//
// Prometheus wraps the client_golang query API for modules that show the
// result of an instant PromQL query.
package netclient
