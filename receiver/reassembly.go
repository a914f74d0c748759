// Package receiver implements the receiving side of the stream: fragment
// reassembly with key-frame-seek recovery, the network event loop, and a
// decode/display worker fed through an unbounded handoff queue.
package receiver

import (
	"errors"
	"sort"

	"github.com/zsiec/vstream/protocol"
)

// ErrFrameMismatch is returned when a fragment's frame type or fragment
// count contradicts what an earlier fragment for the same frame id
// already established.
var ErrFrameMismatch = errors.New("receiver: fragment contradicts frame type or fragment count")

// Frame is one fully reassembled encoded frame, ready for the decoder.
type Frame struct {
	FrameID   uint32
	FrameType protocol.FrameType
	Width     uint16
	Height    uint16
	Bytes     []byte
}

type partial struct {
	frameType protocol.FrameType
	width     uint16
	height    uint16
	fragCount uint16
	have      int
	frags     [][]byte
}

func (p *partial) complete() bool { return p.have == int(p.fragCount) }

// insert adds one fragment to the frame it is being assembled into. The
// first fragment ever seen for a frame id establishes its frame type and
// fragment count; any later fragment that disagrees on either, or whose
// FragID falls outside the range the first fragment established, is a
// contradiction and returns ErrFrameMismatch rather than being accepted
// or indexed.
func (p *partial) insert(d *protocol.FrameDatagram) error {
	if p.frags == nil {
		p.frameType = d.FrameType
		p.width = d.Width
		p.height = d.Height
		p.fragCount = d.FragCount
		p.frags = make([][]byte, d.FragCount)
	}
	if d.FrameType != p.frameType || d.FragCount != p.fragCount {
		return ErrFrameMismatch
	}
	if int(d.FragID) >= len(p.frags) {
		return ErrFrameMismatch
	}
	if p.frags[d.FragID] == nil {
		p.frags[d.FragID] = d.Payload
		p.have++
	}
	return nil
}

func (p *partial) assemble(frameID uint32) *Frame {
	var buf []byte
	for _, f := range p.frags {
		buf = append(buf, f...)
	}
	return &Frame{FrameID: frameID, FrameType: p.frameType, Width: p.width, Height: p.height, Bytes: buf}
}

// reassemblyBuf is the ordered map from frame id to in-progress frame
// state described for the receiver: an out-of-order fragment can arrive
// for any frame id currently being assembled, and the buffer must be able
// to skip forward past incomplete frames when a later key frame completes
// first (the same key-frame-seek recovery the sender's give-up path is
// designed to trigger). next is the frame id the decoder is waiting for;
// it only ever advances, either by delivering that exact frame or by
// jumping past it to a later key frame.
type reassemblyBuf struct {
	ids      []uint32
	m        map[uint32]*partial
	next     uint32
	haveNext bool
}

func newReassemblyBuf() *reassemblyBuf {
	return &reassemblyBuf{m: make(map[uint32]*partial)}
}

// Insert adds one fragment. The first fragment ever inserted establishes
// the baseline for next, so a receiver that joins mid-stream doesn't wait
// forever for a frame id it will never see. Fragments for frame ids
// already passed by next are dropped as stale duplicates or hopeless
// retransmits. It returns ErrFrameMismatch if the fragment contradicts
// an earlier fragment already buffered for the same frame id.
func (b *reassemblyBuf) Insert(d *protocol.FrameDatagram) error {
	if !b.haveNext {
		b.haveNext = true
		b.next = d.FrameID
	}
	if d.FrameID < b.next {
		return nil
	}
	p, ok := b.m[d.FrameID]
	if !ok {
		p = &partial{}
		b.m[d.FrameID] = p
		i := sort.SearchInts(intsOf(b.ids), int(d.FrameID))
		b.ids = append(b.ids, 0)
		copy(b.ids[i+1:], b.ids[i:])
		b.ids[i] = d.FrameID
	}
	return p.insert(d)
}

func intsOf(ids []uint32) []int {
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out
}

// TryConsume returns the next frame ready for the decoder, if any. If the
// exact next-expected frame is complete, it is returned in order.
// Otherwise, the buffer looks past it for the newest complete KEY frame:
// a complete non-key frame beyond a gap is never delivered out of order,
// since decoding it without its reference frames would be meaningless,
// and among candidate key frames the newest is preferred so recovery
// jumps as far forward as it can in one step instead of catching up one
// stale key frame at a time. If a later key frame has already
// completed, every entry up to and including it is dropped, the key
// frame is returned, and recovered reports true.
func (b *reassemblyBuf) TryConsume() (frame *Frame, recovered bool, ok bool) {
	if p, exists := b.m[b.next]; exists && p.complete() {
		f := p.assemble(b.next)
		b.erase(b.next)
		b.next++
		return f, false, true
	}

	for i := len(b.ids) - 1; i >= 0; i-- {
		id := b.ids[i]
		if id <= b.next {
			break
		}
		p := b.m[id]
		if p.frameType == protocol.FrameTypeKey && p.complete() {
			f := p.assemble(id)
			b.pruneUpTo(id)
			b.next = id + 1
			return f, true, true
		}
	}

	return nil, false, false
}

func (b *reassemblyBuf) erase(id uint32) {
	delete(b.m, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			return
		}
	}
}

// pruneUpTo drops every buffered entry with frame id <= id.
func (b *reassemblyBuf) pruneUpTo(id uint32) {
	cut := 0
	for cut < len(b.ids) && b.ids[cut] <= id {
		delete(b.m, b.ids[cut])
		cut++
	}
	b.ids = b.ids[cut:]
}

// Len reports how many frames are currently buffered, in any state of
// completeness.
func (b *reassemblyBuf) Len() int { return len(b.ids) }
