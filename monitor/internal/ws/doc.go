// Package ws implements the real-time push channel.
//
// Hub fans published events out to connected WebSocket clients and to
// in-process subscribers. Publishing never blocks: a WebSocket client whose
// send buffer is full is disconnected, and a subscriber whose channel is
// full misses the event.
//
// Message format sent to clients:
//
//	{
//	  "event": "metrics" | "alert",
//	  "data":  { ... },
//	  "timestamp": "2024-03-01T12:00:00Z"
//	}
//
// A newly connected client immediately receives the most recent metrics
// message, if any. The endpoint is mounted at /ws/stream.
package ws
