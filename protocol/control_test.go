package protocol

import "testing"

func TestAckRoundTrip(t *testing.T) {
	t.Parallel()
	a := Ack{FrameID: 3, FragID: 2, SendTsUs: 123456789}
	got, err := ParseAck(SerializeAck(a))
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Errorf("got %+v, want %+v", got, a)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	c := Config{Width: 1280, Height: 720, FrameRate: 30, TargetBitrate: 5000}
	got, err := ParseConfig(SerializeConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Errorf("got %+v, want %+v", got, c)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	t.Parallel()
	s := Signal{TargetBitrate: 8000}
	got, err := ParseSignal(SerializeSignal(s))
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}
}

func TestParseAck_WrongType(t *testing.T) {
	t.Parallel()
	c := Config{Width: 1, Height: 1, FrameRate: 1, TargetBitrate: 1}
	if _, err := ParseAck(SerializeConfig(c)); err != ErrMalformed {
		t.Errorf("got err=%v, want ErrMalformed", err)
	}
}

func TestPeekType(t *testing.T) {
	t.Parallel()
	if got := PeekType(SerializeAck(Ack{})); got != MsgAck {
		t.Errorf("got %v, want MsgAck", got)
	}
	if got := PeekType(SerializeSignal(Signal{})); got != MsgSignal {
		t.Errorf("got %v, want MsgSignal", got)
	}
	if got := PeekType(nil); got != MsgInvalid {
		t.Errorf("got %v, want MsgInvalid", got)
	}
}

func TestAckFor(t *testing.T) {
	t.Parallel()
	d := &FrameDatagram{FrameID: 9, FragID: 4, SendTsUs: 555}
	a := AckFor(d)
	if a.FrameID != 9 || a.FragID != 4 || a.SendTsUs != 555 {
		t.Errorf("AckFor = %+v", a)
	}
	if a.Key() != d.Key() {
		t.Errorf("Key mismatch: %v vs %v", a.Key(), d.Key())
	}
}
