package rtc

import (
	"testing"
	"time"

	"github.com/avelin/peercall/internal/adapters/media"
	"github.com/avelin/peercall/internal/core"
	"github.com/avelin/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardSend(core.Frame) error { return nil }

func sampleVideoTrack(t *testing.T, id string) (*media.Track, *webrtc.TrackLocalStaticSample) {
	t.Helper()
	inner, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "peercall")
	require.NoError(t, err)
	return media.NewTrack(inner, nil), inner
}

func TestOperationsBeforeOpenFail(t *testing.T) {
	n := New("alice", discardSend)
	_, err := n.CreateOffer()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, n.HandleAnswer(&domain.SignalingMessage{}), ErrNotOpen)
}

func TestCloseIsIdempotent(t *testing.T) {
	n := New("alice", discardSend)
	require.NoError(t, n.Open(nil))
	n.Close()
	n.Close()
}

func TestOfferAnswerCommitsDescriptions(t *testing.T) {
	offerer := New("alice", discardSend)
	answerer := New("bob", discardSend)
	require.NoError(t, offerer.Open(nil))
	require.NoError(t, answerer.Open(nil))
	defer offerer.Close()
	defer answerer.Close()

	track, _ := sampleVideoTrack(t, "video")
	require.NoError(t, offerer.AttachLocalTracks(media.NewStream(track)))

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, domain.MessageOffer, offer.Type)
	assert.Equal(t, domain.PeerName("alice"), offer.From)
	require.NoError(t, offer.Validate())

	answer, err := answerer.HandleOffer(offer)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageAnswer, answer.Type)
	assert.Equal(t, domain.PeerName("bob"), answer.From)
	require.NoError(t, answer.Validate())

	require.NoError(t, offerer.HandleAnswer(answer))
}

func TestCandidateBufferedUntilRemoteDescription(t *testing.T) {
	offerer := New("alice", discardSend)
	answerer := New("bob", discardSend)
	require.NoError(t, offerer.Open(nil))
	require.NoError(t, answerer.Open(nil))
	defer offerer.Close()
	defer answerer.Close()

	track, _ := sampleVideoTrack(t, "video")
	require.NoError(t, offerer.AttachLocalTracks(media.NewStream(track)))
	offer, err := offerer.CreateOffer()
	require.NoError(t, err)

	// A candidate arriving before the offer must be buffered, not rejected.
	early := &domain.SignalingMessage{
		Type:      domain.MessageCandidate,
		From:      "alice",
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 4242 typ host"},
	}
	require.NoError(t, answerer.HandleCandidate(early))
	assert.Equal(t, 1, answerer.PendingCandidates())

	_, err = answerer.HandleOffer(offer)
	require.NoError(t, err)
	assert.Zero(t, answerer.PendingCandidates(), "buffer flushed after remote description")
}

func TestReplaceVideoTrackSwapsSenderWithoutOffer(t *testing.T) {
	n := New("alice", discardSend)
	require.NoError(t, n.Open(nil))
	defer n.Close()

	first, _ := sampleVideoTrack(t, "cam-front")
	require.NoError(t, n.AttachLocalTracks(media.NewStream(first)))

	second, _ := sampleVideoTrack(t, "cam-back")
	require.NoError(t, n.ReplaceVideoTrack(second))

	senders := n.pc.GetSenders()
	require.Len(t, senders, 1)
	require.NotNil(t, senders[0].Track())
	assert.Equal(t, "cam-back", senders[0].Track().ID())
}

func TestReplaceVideoTrackWithoutSenderFails(t *testing.T) {
	n := New("alice", discardSend)
	require.NoError(t, n.Open(nil))
	defer n.Close()

	track, _ := sampleVideoTrack(t, "cam")
	assert.Error(t, n.ReplaceVideoTrack(track))
}

// TestFullNegotiationReachesConnected runs two negotiators against each other
// over loopback host candidates, cross-feeding trickled candidates, until both
// report connected and both see a remote track.
func TestFullNegotiationReachesConnected(t *testing.T) {
	if testing.Short() {
		t.Skip("full ICE handshake")
	}

	var offerer, answerer *Negotiator

	route := func(peer func() *Negotiator) core.SendFunc {
		return func(f core.Frame) error {
			msg, err := domain.ParseSignalingMessage(f)
			if err != nil {
				return err
			}
			if msg.Type != domain.MessageCandidate {
				return nil
			}
			return peer().HandleCandidate(msg)
		}
	}

	offerer = New("alice", route(func() *Negotiator { return answerer }))
	answerer = New("bob", route(func() *Negotiator { return offerer }))

	require.NoError(t, offerer.Open(nil))
	require.NoError(t, answerer.Open(nil))
	defer offerer.Close()
	defer answerer.Close()

	connected := make(chan string, 8)
	watch := func(name string, n *Negotiator) {
		n.OnConnectionState(func(s webrtc.PeerConnectionState) {
			if s == webrtc.PeerConnectionStateConnected {
				select {
				case connected <- name:
				default:
				}
			}
		})
	}
	watch("alice", offerer)
	watch("bob", answerer)

	remote := make(chan string, 8)
	offerer.OnRemoteStream(func(s *core.RemoteStream) {
		if len(s.Tracks()) > 0 {
			select {
			case remote <- "alice":
			default:
			}
		}
	})
	answerer.OnRemoteStream(func(s *core.RemoteStream) {
		if len(s.Tracks()) > 0 {
			select {
			case remote <- "bob":
			default:
			}
		}
	})

	aliceTrack, aliceInner := sampleVideoTrack(t, "alice-video")
	bobTrack, bobInner := sampleVideoTrack(t, "bob-video")
	require.NoError(t, offerer.AttachLocalTracks(media.NewStream(aliceTrack)))
	require.NoError(t, answerer.AttachLocalTracks(media.NewStream(bobTrack)))

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	answer, err := answerer.HandleOffer(offer)
	require.NoError(t, err)
	require.NoError(t, offerer.HandleAnswer(answer))

	waitFor := func(ch chan string, what string) {
		seen := map[string]bool{}
		deadline := time.After(20 * time.Second)
		for len(seen) < 2 {
			select {
			case name := <-ch:
				seen[name] = true
			case <-deadline:
				t.Fatalf("timed out waiting for %s, saw %v", what, seen)
			}
		}
	}
	waitFor(connected, "connected state")

	// Remote tracks surface only once RTP flows.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sample := pionmedia.Sample{Data: []byte{0x00}, Duration: time.Second / 30}
				_ = aliceInner.WriteSample(sample)
				_ = bobInner.WriteSample(sample)
			}
		}
	}()
	waitFor(remote, "remote streams")
}
