// Package version persists a workflow graph: a debounced autosave that
// rewrites the latest version in place, explicit versions kept in a
// bounded history, usage statistics, and JSON/YAML export and import.
//
// A Manager watches one graph.Graph. Every mutation marks it dirty and
// restarts the autosave timer, so a burst of edits produces one save.
// Failed saves leave the workflow dirty and are returned (SaveVersion,
// Flush) or reported to the error handler (timer-driven autosave).
//
// Storage layout, per tenant namespace:
//
//	{namespace}:workflow:{id}:meta   Metadata, including the version history
//	{namespace}:workflows            index of workflow ids and names
package version
