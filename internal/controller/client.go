// internal/controller/client.go
package controller

// Client abstracts the controller transport.
// Every call blocks until the controller answers or the transport fails.
type Client interface {
	Frame() ([]byte, error)
	Command(cmd string) error
	CommandReply(cmd string) (string, error)
	QueryInt(cmd string) (int, error)
	QueryDouble(cmd string) (float64, error)
	Close() error
}

// LayoutSetter is implemented by transports that must know whether the
// data record starts with a size-carrying header.
type LayoutSetter interface {
	SetRecordLayout(hasHeader bool)
}

// Downloader is implemented by transports that can download a DMC program.
type Downloader interface {
	Download(program string) error
}
