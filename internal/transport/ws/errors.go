package ws

import "errors"

var (
	// ErrSessionShutdown is emitted when the server requests a connection shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrClientGone means the socket closed while audio was still expected.
	ErrClientGone = errors.New("websocket client disconnected")
	// ErrSourceUsed is returned when a stream source is opened twice.
	ErrSourceUsed = errors.New("websocket audio source already opened")
)
