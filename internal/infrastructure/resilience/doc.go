/*
Package resilience provides a circuit breaker.

The route prober wraps each request in Execute so that a dead target stops
being probed after a run of consecutive transport failures:

	breaker := resilience.New("routes", resilience.Settings{
		ReadyToTrip: resilience.ConsecutiveFailures(3),
	})

	resp, err := resilience.Execute(breaker, func() (*resty.Response, error) {
		return client.R().Get(url)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// skip
	}

The breaker starts closed. When ReadyToTrip reports true it opens and
rejects calls until Timeout has passed, then lets MaxRequests trial calls
through in the half-open state. Success closes it again; any failure
reopens it.
*/
package resilience
