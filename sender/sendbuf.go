package sender

import (
	"container/list"

	"github.com/zsiec/vstream/protocol"
)

// sendBuf is the FIFO of datagrams queued for transmission, with
// PushFront for retransmissions (which preempt fresh traffic) and
// PushBack for freshly packetized fragments.
type sendBuf struct {
	l *list.List
}

func newSendBuf() *sendBuf {
	return &sendBuf{l: list.New()}
}

func (s *sendBuf) Empty() bool { return s.l.Len() == 0 }
func (s *sendBuf) Len() int    { return s.l.Len() }

func (s *sendBuf) PushBack(d *protocol.FrameDatagram)  { s.l.PushBack(d) }
func (s *sendBuf) PushFront(d *protocol.FrameDatagram) { s.l.PushFront(d) }

// Front returns the head of the queue without removing it.
func (s *sendBuf) Front() (*protocol.FrameDatagram, bool) {
	e := s.l.Front()
	if e == nil {
		return nil, false
	}
	return e.Value.(*protocol.FrameDatagram), true
}

// PopFront removes and returns the head of the queue.
func (s *sendBuf) PopFront() (*protocol.FrameDatagram, bool) {
	e := s.l.Front()
	if e == nil {
		return nil, false
	}
	s.l.Remove(e)
	return e.Value.(*protocol.FrameDatagram), true
}

// Clear empties the queue.
func (s *sendBuf) Clear() {
	s.l.Init()
}
