// Package procevents subscribes to the Linux netlink process connector and
// delivers exec/exit notifications for every process on the system.
//
// Opening the channel requires CAP_NET_ADMIN. The kernel validates the
// subscription message framing byte for byte and silently drops malformed
// requests, so the wire codec in this package is explicit about offsets and
// length fields rather than relying on struct layout.
package procevents

import (
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vpn-linux/split-tunnel/internal/errors"
	"github.com/vpn-linux/split-tunnel/internal/log"
)

// readTimeout bounds each Recvfrom so the reader notices shutdown even when
// no events arrive. Closing the fd under a blocked Recvfrom does not wake it
// on Linux, and netlink sockets have no shutdown().
const readTimeout = 250 * time.Millisecond

// Channel owns one process-connector socket and streams decoded events.
// States are Closed -> Open -> Closed; reopening after Close is allowed.
type Channel struct {
	mu      sync.Mutex
	fd      int
	open    bool
	events  chan Event
	done    chan struct{}
	stopped chan struct{}

	connect func() (int, error)
}

// NewChannel returns a closed channel.
func NewChannel() *Channel {
	return &Channel{fd: -1, connect: connectorSocket}
}

// connectorSocket creates the connector socket, binds it to the proc-events
// multicast group, arms the receive timeout and subscribes. On any step
// failure the socket is closed.
func connectorSocket() (int, error) {
	// SOCK_CLOEXEC keeps the socket out of spawned processes (e.g. openvpn).
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return -1, errors.Wrap(errors.ErrCodeConnector, "failed to create netlink socket", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    uint32(os.Getpid()),
		Groups: cnIdxProc,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(errors.ErrCodeConnector, "failed to bind netlink socket", err)
	}

	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(errors.ErrCodeConnector, "failed to set receive timeout", err)
	}

	if err := unix.Send(fd, encodeSubscribe(os.Getpid(), true), 0); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(errors.ErrCodeConnector, "failed to subscribe to proc events", err)
	}

	return fd, nil
}

// Open connects to the proc-events multicast group and starts the reader.
// On failure the channel stays Closed.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return errors.New(errors.ErrCodeConnector, "channel already open")
	}

	fd, err := c.connect()
	if err != nil {
		return err
	}

	c.fd = fd
	c.open = true
	c.events = make(chan Event, 64)
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})

	go c.readLoop(fd, c.events, c.done, c.stopped)

	log.Infof("Subscribed to kernel process events")
	return nil
}

// Events returns the stream of decoded events. The channel is closed when
// the reader stops after Close.
func (c *Channel) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// IsOpen reports whether the channel currently owns a socket.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close signals the reader and waits for it to exit. The reader owns the
// unsubscribe and the fd close, so by the time Close returns the fd is
// released and cannot be confused with a socket from a later Open. Always
// leaves the channel Closed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}

	close(c.done)
	<-c.stopped

	c.fd = -1
	c.open = false

	log.Infof("Unsubscribed from kernel process events")
}

// readLoop reads one record per wakeup and pushes the decoded event. Each
// Recvfrom returns within the receive timeout, so the done check at the top
// of the loop is reached on a quiet system too. On done it unsubscribes
// (best effort), closes the fd and exits.
func (c *Channel) readLoop(fd int, events chan<- Event, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(events)

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			if err := unix.Send(fd, encodeSubscribe(os.Getpid(), false), 0); err != nil {
				log.Warnf("Failed to unsubscribe from proc events: %v", err)
			}
			if err := unix.Close(fd); err != nil {
				log.Warnf("Failed to close netlink socket: %v", err)
			}
			return
		default:
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			// EAGAIN is the receive timeout expiring.
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			log.Warnf("Failed to read from netlink socket: %v", err)
			continue
		}

		event, err := decodeEvent(buf[:n])
		if err != nil {
			log.Warnf("Dropping undecodable process event: %v", err)
			continue
		}

		switch event.Kind {
		case EventAck:
			log.Infof("Listening to process events")
		case EventExec, EventExit:
			select {
			case events <- event:
			case <-done:
			}
		}
	}
}
