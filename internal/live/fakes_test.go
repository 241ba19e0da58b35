package live

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/media"
)

// fakeDirectory is an in-process directory. Calls between its peers are
// answered synchronously and every answered local track shows up on the
// caller as one remote track carrying a single packet.
type fakeDirectory struct {
	err error

	mu       sync.Mutex
	peers    map[domain.Identity]*fakePeer
	history  []domain.Identity
	refuse   int
	seq      int
	silentTo map[domain.Identity]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		peers:    make(map[domain.Identity]*fakePeer),
		silentTo: make(map[domain.Identity]bool),
	}
}

func (d *fakeDirectory) Directory(context.Context) (core.Directory, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d, nil
}

func (d *fakeDirectory) Register(ctx context.Context, id domain.Identity) (core.Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, id)
	if d.refuse > 0 {
		d.refuse--
		return nil, domain.ErrUnavailableID
	}
	if _, ok := d.peers[id]; ok {
		return nil, domain.ErrUnavailableID
	}
	p := &fakePeer{id: id, dir: d}
	d.peers[id] = p
	return p, nil
}

func (d *fakeDirectory) lookup(id domain.Identity) (*fakePeer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	return p, ok
}

func (d *fakeDirectory) registered() []domain.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Identity(nil), d.history...)
}

func (d *fakeDirectory) nextID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return fmt.Sprintf("call-%d", d.seq)
}

type fakePeer struct {
	id  domain.Identity
	dir *fakeDirectory

	mu       sync.Mutex
	incoming func(core.Call)
	held     []core.Call
	onDisc   func(error)
}

func (p *fakePeer) ID() domain.Identity { return p.id }

func (p *fakePeer) Connect(ctx context.Context, target domain.Identity, local []webrtc.TrackLocal) (core.Call, error) {
	remote, ok := p.dir.lookup(target)
	if !ok {
		return nil, domain.ErrPeerUnavailable
	}
	id := p.dir.nextID()
	mine := newFakeCall(id, target)
	theirs := newFakeCall(id, p.id)
	mine.other, theirs.other = theirs, mine

	p.dir.mu.Lock()
	silent := p.dir.silentTo[target]
	p.dir.mu.Unlock()
	if !silent {
		remote.deliver(theirs)
	}

	select {
	case <-theirs.answered:
		return mine, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePeer) deliver(c core.Call) {
	p.mu.Lock()
	fn := p.incoming
	if fn == nil {
		p.held = append(p.held, c)
	}
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *fakePeer) OnIncoming(fn func(core.Call)) {
	p.mu.Lock()
	p.incoming = fn
	held := p.held
	p.held = nil
	p.mu.Unlock()
	for _, c := range held {
		fn(c)
	}
}

func (p *fakePeer) OnDisconnected(fn func(error)) {
	p.mu.Lock()
	p.onDisc = fn
	p.mu.Unlock()
}

// drop simulates losing the directory connection.
func (p *fakePeer) drop() {
	p.mu.Lock()
	fn := p.onDisc
	p.mu.Unlock()
	if fn != nil {
		fn(io.ErrUnexpectedEOF)
	}
}

func (p *fakePeer) Close() {
	p.dir.mu.Lock()
	if p.dir.peers[p.id] == p {
		delete(p.dir.peers, p.id)
	}
	p.dir.mu.Unlock()
}

type fakeCall struct {
	id     string
	remote domain.Identity
	other  *fakeCall

	answered   chan struct{}
	answerOnce sync.Once

	mu          sync.Mutex
	onTrack     func(core.RemoteTrack)
	onClose     func()
	onError     func(error)
	onInterrupt func()
	tracks      []core.RemoteTrack
	closed      bool
	closeFired  bool
	interrupts  int
}

func newFakeCall(id string, remote domain.Identity) *fakeCall {
	return &fakeCall{id: id, remote: remote, answered: make(chan struct{})}
}

func (c *fakeCall) ID() string              { return c.id }
func (c *fakeCall) Remote() domain.Identity { return c.remote }

func (c *fakeCall) Answer(_ context.Context, local []webrtc.TrackLocal) error {
	for _, t := range local {
		c.other.emitTrack(newFakeTrack(t.ID(), t.Kind()))
	}
	c.answerOnce.Do(func() { close(c.answered) })
	return nil
}

func (c *fakeCall) emitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	if fn == nil {
		c.tracks = append(c.tracks, t)
	}
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (c *fakeCall) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	pending := c.tracks
	c.tracks = nil
	c.mu.Unlock()
	for _, t := range pending {
		fn(t)
	}
}

func (c *fakeCall) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	fire := c.closed && !c.closeFired
	if fire {
		c.closeFired = true
	}
	c.mu.Unlock()
	if fire {
		fn()
	}
}

func (c *fakeCall) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *fakeCall) OnInterrupt(fn func()) {
	c.mu.Lock()
	c.onInterrupt = fn
	c.mu.Unlock()
}

func (c *fakeCall) Interrupt() error {
	o := c.other
	o.mu.Lock()
	o.interrupts++
	fn := o.onInterrupt
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (c *fakeCall) interruptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

// Close hangs up both ends.
func (c *fakeCall) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	if fn != nil {
		c.closeFired = true
	}
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	if c.other != nil {
		c.other.Close()
	}
}

func (c *fakeCall) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
	sent atomic.Bool
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) Codec() webrtc.RTPCodecParameters {
	if t.kind == webrtc.RTPCodecTypeAudio {
		return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, PayloadType: 111}
	}
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, PayloadType: 96}
}

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if t.sent.Swap(true) {
		return nil, nil, io.EOF
	}
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 1, SSRC: 7}, Payload: []byte{0xf8, 0xff, 0xfe}}, nil, nil
}

type packetTap struct{ n atomic.Int32 }

func (p *packetTap) WriteRTP(webrtc.RTPCodecType, *rtp.Packet) error {
	p.n.Add(1)
	return nil
}

// countingCapturer returns hardware bundles whose track stops are counted.
type countingCapturer struct {
	t     *testing.T
	stops atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingCapturer) Capture(ctx context.Context) (*media.Bundle, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	video, err := media.NewTrack(webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, func() { c.stops.Add(1) })
	if err != nil {
		c.t.Errorf("NewTrack: %v", err)
		return nil, err
	}
	audio, err := media.NewTrack(webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, func() { c.stops.Add(1) })
	if err != nil {
		c.t.Errorf("NewTrack: %v", err)
		return nil, err
	}
	return media.NewBundle(video, audio), nil
}

func noEncoder() media.FrameEncoder { return nil }

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func settle(t *testing.T, s *Session) domain.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	st, err := s.Settled(ctx)
	if err != nil {
		t.Fatalf("session did not settle: %v", err)
	}
	return st
}
