// Hearth is an HTTP/1.x server with exact and template routing, cookie
// sessions and optional TLS termination on an event-driven transport.
//
// Usage:
//
//	# Start with the built-in defaults
//	hearth serve
//
//	# Start with a configuration file
//	hearth serve --config /etc/hearth/hearth.yaml
//
//	# Show version information
//	hearth version
package main

func main() {
	Execute()
}
