package procevents

import (
	"encoding/binary"

	"github.com/vpn-linux/split-tunnel/internal/errors"
)

// Kernel ABI constants from <linux/netlink.h>, <linux/connector.h> and
// <linux/cn_proc.h>. Never change.
const (
	// cnIdxProc / cnValProc identify the process-events connector
	// (CN_IDX_PROC / CN_VAL_PROC).
	cnIdxProc uint32 = 1
	cnValProc uint32 = 1

	// mcastListen / mcastIgnore are the PROC_CN_MCAST_* subscription ops.
	mcastListen uint32 = 1
	mcastIgnore uint32 = 2

	// nlmsgDone is NLMSG_DONE, the type of both control and event messages.
	nlmsgDone uint16 = 3

	// procEventNone / procEventExec / procEventExit are the proc_event.what
	// values this daemon consumes. Other kinds (fork, uid, ...) are ignored.
	procEventNone uint32 = 0x00000000
	procEventExec uint32 = 0x00000002
	procEventExit uint32 = 0x80000000
)

// Fixed struct sizes and offsets. The kernel validates the control message
// framing and silently drops malformed requests, so these must be byte-exact:
//
//	struct nlmsghdr    { len(4) type(2) flags(2) seq(4) pid(4) }      -> 16 B
//	struct cn_msg      { idx(4) val(4) seq(4) ack(4) len(2) flags(2)} -> 20 B
//	struct proc_event  { what(4) cpu(4) timestamp_ns(8) <union> }
//	exec/exit payload  { process_pid(4) process_tgid(4) ... }
const (
	nlMsgHdrSize   = 16
	cnMsgSize      = 20
	procEvtHdrSize = 16

	subscribeOpSize  = 4
	subscribeMsgSize = nlMsgHdrSize + cnMsgSize + subscribeOpSize

	// minEventSize is the smallest buffer that can carry the subject pid of
	// an exec or exit event.
	minEventSize = nlMsgHdrSize + cnMsgSize + procEvtHdrSize + 4
)

// EventKind classifies a decoded process event.
type EventKind int

const (
	// EventAck is the PROC_EVENT_NONE listening acknowledgment.
	EventAck EventKind = iota
	// EventExec reports a process that completed an exec.
	EventExec
	// EventExit reports a process that exited.
	EventExit
	// EventIgnored is any other kind (fork, uid change, ...).
	EventIgnored
)

// Event is one decoded kernel process notification.
type Event struct {
	Kind EventKind
	Pid  int
}

// encodeSubscribe builds the PROC_CN_MCAST_LISTEN / PROC_CN_MCAST_IGNORE
// control message. The nlmsghdr length covers the whole message and the
// cn_msg length covers exactly the 4-byte op, as the kernel requires.
func encodeSubscribe(pid int, listen bool) []byte {
	op := mcastIgnore
	if listen {
		op = mcastListen
	}

	buf := make([]byte, subscribeMsgSize)

	// nlmsghdr
	binary.NativeEndian.PutUint32(buf[0:4], subscribeMsgSize)
	binary.NativeEndian.PutUint16(buf[4:6], nlmsgDone)
	binary.NativeEndian.PutUint16(buf[6:8], 0)           // flags
	binary.NativeEndian.PutUint32(buf[8:12], 0)          // seq
	binary.NativeEndian.PutUint32(buf[12:16], uint32(pid))

	// cn_msg
	binary.NativeEndian.PutUint32(buf[16:20], cnIdxProc)
	binary.NativeEndian.PutUint32(buf[20:24], cnValProc)
	binary.NativeEndian.PutUint32(buf[24:28], 0)                // seq
	binary.NativeEndian.PutUint32(buf[28:32], 0)                // ack
	binary.NativeEndian.PutUint16(buf[32:34], subscribeOpSize)  // len
	binary.NativeEndian.PutUint16(buf[34:36], 0)                // flags

	// proc_cn_mcast_op
	binary.NativeEndian.PutUint32(buf[36:40], op)

	return buf
}

// decodeEvent parses one kernel event record. It returns an error for
// short reads and for messages that are not process-connector events; the
// caller logs and keeps listening.
func decodeEvent(buf []byte) (Event, error) {
	if len(buf) < minEventSize {
		return Event{}, errors.Newf(errors.ErrCodeConnector, "short event read: %d bytes", len(buf))
	}

	if typ := binary.NativeEndian.Uint16(buf[4:6]); typ != nlmsgDone {
		return Event{}, errors.Newf(errors.ErrCodeConnector, "unexpected netlink message type %d", typ)
	}

	cnMsg := buf[nlMsgHdrSize:]
	idx := binary.NativeEndian.Uint32(cnMsg[0:4])
	val := binary.NativeEndian.Uint32(cnMsg[4:8])
	if idx != cnIdxProc || val != cnValProc {
		return Event{}, errors.Newf(errors.ErrCodeConnector, "not a process-connector message (idx=%d val=%d)", idx, val)
	}

	event := cnMsg[cnMsgSize:]
	what := binary.NativeEndian.Uint32(event[0:4])

	switch what {
	case procEventNone:
		return Event{Kind: EventAck}, nil
	case procEventExec, procEventExit:
		// The subject pid is the first field of the kind-specific payload,
		// right after the proc_event header.
		pid := int(binary.NativeEndian.Uint32(event[procEvtHdrSize : procEvtHdrSize+4]))
		kind := EventExec
		if what == procEventExit {
			kind = EventExit
		}
		return Event{Kind: kind, Pid: pid}, nil
	default:
		return Event{Kind: EventIgnored}, nil
	}
}
