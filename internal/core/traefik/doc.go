// Package traefik provides pure functions for routing a compose service through
// a shared Traefik reverse proxy.
//
// The functional core here has two halves: GenerateLabels builds the ordered
// label set that tells Traefik how to route a hostname to a container port, and
// Inject rewrites a compose document so that its first service carries those
// labels, joins the proxy's external network and stops publishing host ports.
// All functions are pure (no I/O, no side effects).
//
// # Usage
//
//	out, err := traefik.Inject(content, traefik.Route{
//	    Domain: "app.example.com",
//	    Slug:   "app-example-com-1",
//	}, traefik.InjectOptions{})
//	if err != nil {
//	    // out is the original content
//	}
//
// Injection is idempotent: running it again over its own output with the same
// route yields the same document.
package traefik
