// Package fallback wraps fragile operations with bounded retries, exponential
// backoff, and a circuit breaker.
//
// The circuit opens after a run of consecutive failures reaches the retry
// limit and closes again only on a later successful call or an explicit
// Reset. There is no timed half-open probe: an open circuit is advisory
// state that callers may poll via CircuitOpen before deciding to call at
// all. Run itself never short-circuits on an open circuit.
package fallback
