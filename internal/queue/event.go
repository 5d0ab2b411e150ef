// Package queue defines the message.raised event payload exchanged over
// the broker, its publisher, and the background consumer feeding the
// alert log.
package queue

// MessageRaisedEvent is published whenever a producer raises a message,
// on both the plain create path and the unique upsert path. Repeat is
// true when the raise refreshed an existing unique message instead of
// inserting a row.
type MessageRaisedEvent struct {
	MessageID  string `json:"message_id"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	ErrorLevel string `json:"error_level"`
	Timestamp  string `json:"timestamp"`
	Repeat     bool   `json:"repeat"`
}
