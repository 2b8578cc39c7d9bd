// Package application wires the configured app modules into a running
// server: locals, views, jobs, the optional database, the root router and
// the HTTP and HTTPS listeners. It keeps the main package focused on CLI
// parsing and process lifecycle.
package application
