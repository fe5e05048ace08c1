package transport

import "context"

// Transport carries protocol lines to and from a device.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// KeepAliver is implemented by transports with link-level ping/pong.
type KeepAliver interface {
	Ping(ctx context.Context) error
	// Pongs receives one value per pong observed by the read side.
	Pongs() <-chan struct{}
}

type EndpointResolver interface {
	Endpoint() string
}
