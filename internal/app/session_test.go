package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type fakeBackend struct {
	grant *domain.Participant
	err   error
	calls int
}

func (f *fakeBackend) CreateParticipant(ctx context.Context, slug, versionHint string) (*domain.Participant, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.grant, nil
}

type fakeRaw struct {
	id     string
	mu     sync.Mutex
	closed int
}

func (r *fakeRaw) ID() string { return r.id }
func (r *fakeRaw) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

type fakeEngine struct {
	mu sync.Mutex

	connectErr error
	publishErr error

	// existing streams the engine announces as part of connecting,
	// before the connect call returns.
	announceOnConnect []core.StreamHandle

	connects    int
	disconnects int
	publishes   []core.StreamRole
	unpublished []string
	micCalls    []bool
	cameraCalls []bool

	onAvailable   func(core.StreamHandle)
	onUnavailable func(string)
}

func (f *fakeEngine) Connect(ctx context.Context, cred core.Credential, opts core.ConnectOptions) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	fn := f.onAvailable
	existing := f.announceOnConnect
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for _, h := range existing {
		if fn != nil {
			fn(h)
		}
	}
	return nil
}

func (f *fakeEngine) Publish(ctx context.Context, c core.MediaConstraints, alias string, role core.StreamRole) (*core.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.publishes = append(f.publishes, role)
	id := fmt.Sprintf("ep-%d", len(f.publishes))
	return &core.StreamHandle{
		EndpointID: id,
		MediaKinds: core.Kinds(domain.MediaKindAudio, domain.MediaKindVideo),
		Raw:        &fakeRaw{id: id},
	}, nil
}

func (f *fakeEngine) PublishStream(ctx context.Context, raw core.RawStream, alias string, role core.StreamRole) (*core.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.publishes = append(f.publishes, role)
	return &core.StreamHandle{EndpointID: fmt.Sprintf("ep-%d", len(f.publishes)), Raw: raw}, nil
}

func (f *fakeEngine) Unpublish(ctx context.Context, h *core.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpublished = append(f.unpublished, h.EndpointID)
	return nil
}

func (f *fakeEngine) SetMicEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micCalls = append(f.micCalls, enabled)
	return nil
}

func (f *fakeEngine) SetCameraEnabled(enabled bool, h *core.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cameraCalls = append(f.cameraCalls, enabled)
	return nil
}

func (f *fakeEngine) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeEngine) OnStreamAvailable(fn func(core.StreamHandle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAvailable = fn
}

func (f *fakeEngine) OnStreamUnavailable(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUnavailable = fn
}

type fakeCapture struct {
	err   error
	calls int
}

func (f *fakeCapture) CaptureDisplay(ctx context.Context) (core.RawStream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRaw{id: fmt.Sprintf("display-%d", f.calls)}, nil
}

type fakeDevices struct {
	resolveErr error
	saveErr    error
	saved      []domain.DevicePreference
}

func (f *fakeDevices) ResolveConstraints(ctx context.Context) (core.MediaConstraints, error) {
	if f.resolveErr != nil {
		return core.MediaConstraints{}, f.resolveErr
	}
	return core.MediaConstraints{Audio: true, Video: true}, nil
}

func (f *fakeDevices) SavePreference(pref domain.DevicePreference) error {
	f.saved = append(f.saved, pref)
	return f.saveErr
}

type fakeTURN struct {
	turn *domain.TURNServer
}

func (f *fakeTURN) LoadTURNServer() (*domain.TURNServer, error) { return f.turn, nil }

func testGrant() *domain.Participant {
	return &domain.Participant{
		ConferenceID:   "conf-1",
		ConferenceCode: "123456",
		ParticipantID:  "part-1",
		DeviceToken:    "token-1",
		WebsocketURL:   "ws://example.test/ws/engine",
	}
}

func newTestController() (*Controller, *fakeEngine, *fakeBackend, *fakeCapture, *fakeDevices) {
	engine := &fakeEngine{}
	backend := &fakeBackend{grant: testGrant()}
	capture := &fakeCapture{}
	devices := &fakeDevices{}
	return NewController(backend, engine, capture, devices, &fakeTURN{}), engine, backend, capture, devices
}

func TestJoinHappyPath(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	snap := sess.State()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, domain.ConferenceID("conf-1"), snap.ConferenceID)
	require.NotNil(t, snap.LocalStream)
	assert.Equal(t, []core.StreamRole{core.RoleUserMedia}, engine.publishes)
	assert.Equal(t, 1, engine.connects)
	assert.Same(t, sess, ctrl.Current())
}

func TestJoinRejectedSurfacesStatus(t *testing.T) {
	ctrl, engine, backend, _, _ := newTestController()
	backend.err = &domain.JoinRejectedError{Status: 409, Message: "conference full"}

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.Error(t, err)

	var rejected *domain.JoinRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 409, rejected.Status)

	snap := sess.State()
	assert.Equal(t, core.StatusFailed, snap.Status)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "409")
	assert.Zero(t, engine.connects, "engine must not connect after rejection")
}

func TestJoinEngineConnectFailure(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()
	engine.connectErr = errors.New("dial refused")

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.Error(t, err)

	var cerr *domain.EngineConnectError
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, core.StatusFailed, sess.State().Status)
	assert.Empty(t, engine.publishes)
}

func TestJoinPublishFailureIsSoft(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()
	engine.publishErr = errors.New("no camera")

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err, "publish failure must not fail the join")

	snap := sess.State()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Nil(t, snap.LocalStream)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "publish failed")
}

func TestJoinTearsDownPriorSession(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	first, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	second, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, second, ctrl.Current())
	assert.Equal(t, 1, engine.disconnects, "prior session must disconnect")
	assert.Contains(t, engine.unpublished, "ep-1")
}

func TestStreamsAnnouncedDuringConnectAreKept(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()
	engine.announceOnConnect = []core.StreamHandle{
		{EndpointID: "existing-1", Alias: "early bird", MediaKinds: core.Kinds(domain.MediaKindAudio, domain.MediaKindVideo)},
	}

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	snap := sess.State()
	require.Contains(t, snap.RemoteStreams, "existing-1", "streams announced while connecting must land in the remote map")
	h := snap.RemoteStreams["existing-1"]
	assert.Equal(t, "early bird", h.Alias)
	assert.True(t, h.HasKind(domain.MediaKindAudio))
}

func TestRemoteStreamEventsReachState(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	require.NotNil(t, engine.onAvailable)
	require.NotNil(t, engine.onUnavailable)

	engine.onAvailable(core.StreamHandle{EndpointID: "remote-1", Alias: "peer"})
	assert.Contains(t, sess.State().RemoteStreams, "remote-1")

	engine.onUnavailable("remote-1")
	assert.Empty(t, sess.State().RemoteStreams)
}

func TestMicToggleCallsEngineOncePerToggle(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	sess.SetMicEnabled(false)
	sess.SetMicEnabled(true)

	assert.Equal(t, []bool{false, true}, engine.micCalls)
	assert.True(t, sess.State().MicEnabled)
}

func TestToggleBeforePublishAppliedOnPublish(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()
	engine.publishErr = errors.New("no devices yet")

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	// No local stream yet: the flag flips without an engine call.
	sess.SetMicEnabled(false)
	assert.Empty(t, engine.micCalls)
	assert.False(t, sess.State().MicEnabled)

	engine.mu.Lock()
	engine.publishErr = nil
	engine.mu.Unlock()

	require.NoError(t, sess.ApplyDeviceSelection(context.Background(), domain.DevicePreference{}))
	assert.Equal(t, []bool{false}, engine.micCalls, "pending mute must apply to the fresh stream")
}

func TestScreenShareCycle(t *testing.T) {
	ctrl, engine, _, capture, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	sess.SetScreenShareEnabled(context.Background(), true)
	snap := sess.State()
	assert.True(t, snap.ScreenShareEnabled)
	require.NotNil(t, snap.ScreenShareStream)
	assert.Equal(t, 1, capture.calls)
	assert.Equal(t, []core.StreamRole{core.RoleUserMedia, core.RoleScreenShare}, engine.publishes)

	shareEndpoint := snap.ScreenShareStream.EndpointID
	sess.SetScreenShareEnabled(context.Background(), false)
	snap = sess.State()
	assert.False(t, snap.ScreenShareEnabled)
	assert.Nil(t, snap.ScreenShareStream)
	assert.Contains(t, engine.unpublished, shareEndpoint)
}

func TestScreenShareCaptureRefusedRevertsFlag(t *testing.T) {
	ctrl, _, _, capture, _ := newTestController()
	capture.err = errors.New("capture refused")

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	sess.SetScreenShareEnabled(context.Background(), true)
	snap := sess.State()
	assert.False(t, snap.ScreenShareEnabled, "flag reverts when capture is refused")
	assert.Nil(t, snap.ScreenShareStream)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "screen capture failed")
}

func TestScreenSharePublishFailureClosesCapture(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	engine.mu.Lock()
	engine.publishErr = errors.New("engine refused")
	engine.mu.Unlock()

	sess.SetScreenShareEnabled(context.Background(), true)
	snap := sess.State()
	assert.False(t, snap.ScreenShareEnabled)
	assert.Nil(t, snap.ScreenShareStream)
	require.NotNil(t, snap.LastError)
}

func TestScreenShareTogglesUnderContentionSettle(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				sess.SetScreenShareEnabled(context.Background(), (i+g)%2 == 0)
			}
		}(g)
	}
	wg.Wait()

	// Whatever the last toggle was, desired and actual must agree.
	snap := sess.State()
	assert.Equal(t, snap.ScreenShareEnabled, snap.ScreenShareStream != nil,
		"screen-share flag and stream must settle together")
}

func TestApplyDeviceSelectionReleasesOldBeforePublish(t *testing.T) {
	ctrl, engine, _, _, devices := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	old := sess.State().LocalStream
	require.NotNil(t, old)

	pref := domain.DevicePreference{AudioDeviceID: "mic-2"}
	require.NoError(t, sess.ApplyDeviceSelection(context.Background(), pref))

	snap := sess.State()
	require.NotNil(t, snap.LocalStream)
	assert.NotEqual(t, old.EndpointID, snap.LocalStream.EndpointID)
	assert.Contains(t, engine.unpublished, old.EndpointID)
	assert.Equal(t, []domain.DevicePreference{pref}, devices.saved)

	raw := old.Raw.(*fakeRaw)
	assert.Equal(t, 1, raw.closed, "old platform stream must be released")
}

func TestApplyDeviceSelectionFailureLeavesNoLocalStream(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)

	engine.mu.Lock()
	engine.publishErr = errors.New("device busy")
	engine.mu.Unlock()

	err = sess.ApplyDeviceSelection(context.Background(), domain.DevicePreference{VideoDeviceID: "cam-2"})
	require.Error(t, err)

	var perr *domain.PublishError
	assert.ErrorAs(t, err, &perr)

	snap := sess.State()
	assert.Nil(t, snap.LocalStream, "failed republish leaves no local stream")
	require.NotNil(t, snap.LastError)
}

func TestTeardownReleasesEverything(t *testing.T) {
	ctrl, engine, _, _, _ := newTestController()

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	sess.SetScreenShareEnabled(context.Background(), true)

	snap := sess.State()
	localRaw := snap.LocalStream.Raw.(*fakeRaw)
	shareRaw := snap.ScreenShareStream.Raw.(*fakeRaw)

	sess.Teardown()

	assert.Equal(t, 1, engine.disconnects)
	assert.Len(t, engine.unpublished, 2)
	assert.Equal(t, 1, localRaw.closed)
	assert.Equal(t, 1, shareRaw.closed)
}
