// Package audit carries session lifecycle events from the Manager to
// pluggable sinks.
//
// [Dispatcher] decouples emitters from sinks with a bounded queue. It either
// drops and counts overflow or applies backpressure, depending on
// [Config.DropIfFull]. Sinks provided here write to a channel, JSON lines,
// or a [log/slog] logger, and [MultiSink] combines them.
//
// The package does not decide which events exist; the root package owns
// the event vocabulary.
package audit
