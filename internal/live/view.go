package live

import (
	"context"
	"net"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/config"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/media"
)

const (
	NoticeSimulated = "Camera not available, showing a simulated stream"
	WarningInsecure = "Insecure connection: camera access may be blocked outside HTTPS or localhost"
)

// Deps are the collaborators a View is built from.
type Deps struct {
	Directories core.DirectoryProvider
	// Records may be nil, every view is then ephemeral.
	Records  core.RecordClient
	Capturer media.Capturer

	ProviderOptions []media.ProviderOption
	SinkOptions     []media.SinkOption
	Config          config.LiveConfig
}

type OpenRequest struct {
	Role    domain.Role
	Self    domain.UserID
	Target  domain.UserID
	Channel domain.Identity
	Backing domain.Backing
	Title   string
}

// Overlay is everything shown on top of the video.
type Overlay struct {
	Title     string
	Role      domain.Role
	Status    domain.Status
	Error     string
	Notices   []string
	Warning   string
	Closable  bool
	Simulated bool
	Muted     bool
	Channel   domain.Identity
	Identity  domain.Identity
	Links     int
	Meta      domain.LiveMetadata
}

// View ties a Session, its media and its MetadataSync to one lifetime.
type View struct {
	req      OpenRequest
	session  *Session
	meta     *MetadataSync
	provider *media.Provider
	sink     *media.Sink
	warning  string

	cancel context.CancelFunc
	polls  sync.WaitGroup
	once   sync.Once

	mu       sync.Mutex
	onChange func(Overlay)
}

// Open starts a view. Its lifetime ends with Close or when ctx is done.
func Open(ctx context.Context, deps Deps, req OpenRequest) (*View, error) {
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	cfg := deps.Config
	v := &View{req: req, warning: insecureWarning(cfg.DirectoryURL)}

	switch req.Role {
	case domain.RoleBroadcaster:
		v.provider = media.NewProvider(deps.Capturer, deps.ProviderOptions...)
	case domain.RoleViewer:
		v.sink = media.NewSink(deps.SinkOptions...)
	}

	v.session = NewSession(deps.Directories, v.provider, v.sink, SessionConfig{
		AcquireTimeout:   cfg.AcquireTimeout,
		ConnectTimeout:   cfg.ConnectTimeout,
		CollisionRetries: cfg.CollisionRetries,
	})
	v.meta = NewMetadataSync(deps.Records, req.Backing, WithSimulateInterval(cfg.SimulateInterval))

	vctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel

	v.session.OnChange(func(st SessionState) {
		if st.Status == domain.StatusError {
			v.session.Stop()
		}
		v.emit()
	})
	v.meta.OnChange(func(domain.LiveMetadata) { v.emit() })

	if err := v.session.Start(vctx, StartRequest{
		Role:    req.Role,
		Self:    req.Self,
		Target:  req.Target,
		Channel: req.Channel,
	}); err != nil {
		cancel()
		v.release()
		return nil, err
	}

	v.polls.Add(2)
	go func() {
		defer v.polls.Done()
		v.meta.Poll(vctx, cfg.PollInterval)
	}()
	go func() {
		defer v.polls.Done()
		<-vctx.Done()
		v.Close()
	}()

	if v.warning != "" {
		log.Warn().Str("module", "live.view").Str("directory", cfg.DirectoryURL).Msg("insecure signaling")
	}
	return v, nil
}

func (v *View) Session() *Session         { return v.session }
func (v *View) Provider() *media.Provider { return v.provider }
func (v *View) Sink() *media.Sink         { return v.sink }

// OnChange sets the handler called whenever the overlay may have changed.
func (v *View) OnChange(fn func(Overlay)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *View) emit() {
	v.mu.Lock()
	fn := v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn(v.Overlay())
	}
}

func (v *View) PostComment(ctx context.Context, author, text string) {
	v.meta.PostComment(ctx, author, text)
}

func (v *View) PostLike(ctx context.Context) { v.meta.PostLike(ctx) }

// ToggleMute flips the session's audio mute and returns the new setting.
func (v *View) ToggleMute() bool {
	muted := !v.session.State().Muted
	v.session.SetMuted(muted)
	return muted
}

func (v *View) Overlay() Overlay {
	st := v.session.State()
	o := Overlay{
		Title:     v.req.Title,
		Role:      st.Role,
		Status:    st.Status,
		Error:     domain.Reason(st.Err),
		Warning:   v.warning,
		Closable:  st.Status.Terminal(),
		Simulated: st.Simulated,
		Muted:     st.Muted,
		Channel:   st.Channel,
		Identity:  st.Identity,
		Links:     st.Links,
		Meta:      v.meta.Snapshot(),
	}
	if o.Title == "" {
		o.Title = "Live: " + st.Channel.String()
	}
	if st.Simulated {
		o.Notices = append(o.Notices, NoticeSimulated)
	}
	if st.Notice != "" {
		o.Notices = append(o.Notices, st.Notice)
	}
	return o
}

// Close tears the session, its media and the polling down. It is safe to
// call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		v.cancel()
		v.release()
		log.Info().Str("module", "live.view").Str("channel", v.session.State().Channel.String()).Msg("view closed")
	})
}

func (v *View) release() {
	v.session.Stop()
	if v.provider != nil {
		v.provider.Release()
	}
	if v.sink != nil {
		v.sink.Close()
	}
}

// Wait blocks until Close finished and background writes are flushed.
func (v *View) Wait() {
	v.polls.Wait()
	v.meta.Wait()
}

// insecureWarning flags plain ws:// signaling to anything but loopback.
func insecureWarning(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "ws" {
		return ""
	}
	host := u.Hostname()
	if host == "localhost" {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return ""
	}
	return WarningInsecure
}
