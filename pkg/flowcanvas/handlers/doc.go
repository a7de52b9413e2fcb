// Package handlers provides the node handlers for the built-in node types.
//
// Entry types (trigger, webhook, schedule) forward the run payload. The
// output type collects what reaches it. Every other built-in type is a call
// through a tools.Invoker: the node's configuration, with ${...}
// placeholders filled from the node's inputs, becomes the tool arguments.
//
//	engine := flowcanvas.New()
//	handlers.RegisterDefaults(engine, tools.NewLocal(store))
//
// Transient and throttled tool failures are retried with backoff.
package handlers
