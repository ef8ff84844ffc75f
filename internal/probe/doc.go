/*
Package probe checks that a deployed single-page application serves every
route it is expected to.

Routes come from DefaultRoutes or from a YAML/TOML file:

	routes:
	  - path: /projects
	    name: Projects
	    portal: tenant
	  - path: /admin/billing
	    portal: admin
	    expect_status: 200

A Prober requests each route in order and checks the status code and, unless
expect_html is false, that the body is an HTML document. Each request runs
inside tracing.WithTracing, so a run produces one trace with a span per
route, and the trace headers are forwarded to the target.

Transient failures are retried. After a run of consecutive transport
failures the remaining routes are reported as skipped.
*/
package probe
