// Package ingest turns delivered chat events into index writes and mapping
// changes.
//
// A single Dispatcher consumes the event channel in delivery order and hands
// messages to the Coordinator and room renames and tombstones to the
// Lifecycle handler. Because only one event is in flight at a time, an edit
// can never overtake the message it replaces and a tombstone migration never
// races an ingest for the same room. The Bootstrapper binds configured rooms
// to indexes at startup and whenever the config file changes.
package ingest
