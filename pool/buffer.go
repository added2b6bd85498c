// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer is the growable byte region bridging kernel I/O and HTTP
// parsing. The double-indexed layout (prepend zone + read/write cursors)
// amortizes allocation by compacting before growing.
//
// ReadFd/WriteFd talk to the fd directly via golang.org/x/sys/unix.Readv
// and unix.Write rather than bufio, so a single readv(2) call can absorb
// a burst larger than the buffer's own writable region into a scratch
// overflow area.

package pool

import (
	"io"

	"golang.org/x/sys/unix"
)

const (
	prependSize = 8
	initialSize = 1024
	// overflowSize backs the scratch region a single readv burst can
	// spill into when the buffer's own writable region is smaller than
	// the pending kernel data.
	overflowSize = 64 * 1024
)

// Buffer is NOT safe for concurrent use; every instance is owned
// exclusively by one TcpConnection, itself pinned to one io-loop.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// NewBuffer returns an empty Buffer with the standard prepend zone.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:         make([]byte, prependSize+initialSize),
		readerIndex: prependSize,
		writerIndex: prependSize,
	}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes Append can write without growing.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the free space before readerIndex.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns a slice over the readable region. The slice is only
// valid until the next mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// Retrieve advances readerIndex by n. Panics if n exceeds ReadableBytes,
// mirroring the C++ original's `assert(n <= readableBytes())`.
func (b *Buffer) Retrieve(n int) {
	if n > b.ReadableBytes() {
		panic("pool: Retrieve past writerIndex")
	}
	if n < b.ReadableBytes() {
		b.readerIndex += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll resets both cursors to the prepend boundary.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = prependSize
	b.writerIndex = prependSize
}

// RetrieveAllAsString drains the whole readable region and returns it as
// a string, resetting the buffer.
func (b *Buffer) RetrieveAllAsString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies data into the writable region, growing/compacting first
// if necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.writerIndex += copy(b.buf[b.writerIndex:], data)
}

// AppendString is a convenience wrapper over Append.
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// EnsureWritable guarantees at least n writable bytes, compacting the
// readable region leftward before growing the backing array.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

// makeSpace never shrinks the backing array: it either compacts in place
// (when total free space already covers the request) or reallocates
// geometrically.
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes()-prependSize >= n {
		readable := b.ReadableBytes()
		copy(b.buf[prependSize:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = prependSize
		b.writerIndex = b.readerIndex + readable
		return
	}
	newCap := len(b.buf) * 2
	if want := b.writerIndex + n; want > newCap {
		newCap = want
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.writerIndex])
	b.buf = grown
}

// ReadFd performs an edge-triggered drain of fd into the buffer,
// spilling bursts larger than the current writable region into a
// scratch overflow area via a single readv(2) call. It loops until the
// kernel returns EAGAIN/EWOULDBLOCK.
//
// Return contract: (n>0, nil) means n bytes were appended and the
// connection is still open; (0, nil) means nothing was ready this call
// (spurious wakeup or all pending data already drained by the caller's
// prior call); (0, io.EOF) means the peer closed cleanly with no bytes
// pending; (n>0, io.EOF) never occurs — a mid-burst EOF is reported as
// (n, nil) so the caller processes what arrived, and the next ReadFd
// call observes the EOF via a fresh (0, io.EOF).
func (b *Buffer) ReadFd(fd int) (n int, err error) {
	b.EnsureWritable(overflowSize / 4)
	var scratch [overflowSize]byte

	for {
		primary := b.buf[b.writerIndex:]
		read, rerr := unix.Readv(fd, [][]byte{primary, scratch[:]})
		if rerr != nil {
			if rerr == unix.EINTR {
				continue
			}
			if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
				return n, nil
			}
			return n, rerr
		}
		if read == 0 {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if read <= len(primary) {
			b.writerIndex += read
		} else {
			b.writerIndex = len(b.buf)
			spill := read - len(primary)
			b.Append(scratch[:spill])
		}
		n += read
	}
}

// WriteFd drains readable bytes to fd, looping while data remains and
// the kernel accepts it, retrying on EINTR and stopping on
// EAGAIN/EWOULDBLOCK.
func (b *Buffer) WriteFd(fd int) (n int, err error) {
	for b.ReadableBytes() > 0 {
		data := b.Peek()
		wrote, werr := unix.Write(fd, data)
		if werr != nil {
			if werr == unix.EINTR {
				continue
			}
			if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
				break
			}
			return n, werr
		}
		if wrote > 0 {
			b.Retrieve(wrote)
			n += wrote
		}
	}
	return n, nil
}
