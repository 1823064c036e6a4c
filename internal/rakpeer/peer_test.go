package rakpeer

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nostalgia-server/nostalgia/internal/raknet"
)

func newLoopbackPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	return a, b
}

func TestPeerSendFlushesImmediately(t *testing.T) {
	a, b := newLoopbackPair(t)
	defer b.Close()

	aAddr := netip.MustParseAddrPort(a.LocalAddr().String())
	bAddr := netip.MustParseAddrPort(b.LocalAddr().String())

	p := New(aAddr, bAddr, a, 1492, zerolog.Nop(), nil)
	defer p.Close()

	if err := p.Send(raknet.Reliable, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := b.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !raknet.IsFrameSetID(buf[0]) {
		t.Fatalf("leading byte 0x%02X is not a frameset id", buf[0])
	}
	fs, err := raknet.ParseFrameSet(buf[:n])
	if err != nil {
		t.Fatalf("ParseFrameSet: %v", err)
	}
	if len(fs.Frames) != 1 || string(fs.Frames[0].Data) != "hello" {
		t.Errorf("frames = %+v, want one frame carrying %q", fs.Frames, "hello")
	}
}

func TestPeerCloseIsIdempotentAndTerminates(t *testing.T) {
	a, b := newLoopbackPair(t)
	defer a.Close()
	defer b.Close()

	aAddr := netip.MustParseAddrPort(a.LocalAddr().String())
	bAddr := netip.MustParseAddrPort(b.LocalAddr().String())

	var notified netip.AddrPort
	notify := func(addr netip.AddrPort) { notified = addr }

	p := New(aAddr, bAddr, a, 1492, zerolog.Nop(), notify)
	p.Close()
	p.Close() // must not panic or double-send

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not finish its loops after Close")
	}

	if notified != bAddr {
		t.Errorf("notifyClosed called with %v, want %v", notified, bAddr)
	}

	if err := p.Send(raknet.Reliable, []byte("x")); err != raknet.ErrConnectionClosed {
		t.Errorf("Send after close = %v, want ErrConnectionClosed", err)
	}
}

func TestPeerNotEstablishedBeforeHandshake(t *testing.T) {
	a, b := newLoopbackPair(t)
	defer a.Close()
	defer b.Close()

	aAddr := netip.MustParseAddrPort(a.LocalAddr().String())
	bAddr := netip.MustParseAddrPort(b.LocalAddr().String())

	p := New(aAddr, bAddr, a, 1492, zerolog.Nop(), nil)
	defer p.Close()

	if p.Established() {
		t.Error("peer reports established before any connected-control traffic")
	}
}
