// Package clientip resolves the client address of an HTTP request.
//
// Forwarding headers are only honoured when listed explicitly, so a server
// exposed directly on loopback cannot be tricked by a spoofed header:
//
//	r.Use(clientip.Middleware())                                // RemoteAddr only
//	r.Use(clientip.Middleware("CF-Connecting-IP", "X-Forwarded-For"))
//
// The resolved address is stored in the request context and can be added to
// log records with LoggerExtractor.
package clientip
