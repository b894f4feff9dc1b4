// Package server hosts the Fiber HTTP service: the request-id and recover
// middleware chain, the media route under the configured prefix, and the
// shared upstream http.Client. Diagnostics and control endpoints live in the
// routes subpackage and are attached to the app built here.
package server
