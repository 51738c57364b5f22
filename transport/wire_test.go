package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/ioc"
	"github.com/mitanshubhoot/PP-TIO/protocol"
)

func makeOffer(t *testing.T, capability interface {
	he.Capability
	he.Codec
}) (protocol.Offer, *protocol.Initiator) {
	t.Helper()
	in := protocol.NewInitiator(capability, 2048, 4)
	ctx := context.Background()
	require.NoError(t, in.GenerateKeys(ctx))
	set := []ioc.Indicator{
		ioc.New(ioc.TypeIP, "198.51.100.1"),
		ioc.New(ioc.TypeIP, "198.51.100.2"),
	}
	offer, err := in.EncryptFilter(ctx, set)
	require.NoError(t, err)
	return offer, in
}

func TestOfferWireRoundtrip(t *testing.T) {
	capability := he.NewPlain(2048)
	offer, _ := makeOffer(t, capability)

	data, err := EncodeOffer(capability, offer)
	require.NoError(t, err)
	got, err := DecodeOffer(capability, data)
	require.NoError(t, err)

	require.Equal(t, offer.SessionID, got.SessionID)
	require.Equal(t, offer.M, got.M)
	require.Equal(t, offer.K, got.K)
	require.Equal(t, offer.Context.ID(), got.Context.ID())
	require.Equal(t, offer.Cipher.ContextID(), got.Cipher.ContextID())
}

func TestReplyTravelsAndFinalizes(t *testing.T) {
	capability := he.NewPlain(2048)
	offer, in := makeOffer(t, capability)

	// Wire hop to the responder and back.
	offerBytes, err := EncodeOffer(capability, offer)
	require.NoError(t, err)
	remoteOffer, err := DecodeOffer(capability, offerBytes)
	require.NoError(t, err)

	responder := protocol.NewResponder(capability, 2048, 4)
	set := []ioc.Indicator{
		ioc.New(ioc.TypeIP, "198.51.100.2"),
		ioc.New(ioc.TypeIP, "198.51.100.3"),
	}
	reply, err := responder.Respond(context.Background(), remoteOffer, set)
	require.NoError(t, err)

	replyBytes, err := EncodeReply(capability, reply)
	require.NoError(t, err)
	gotReply, err := DecodeReply(capability, replyBytes)
	require.NoError(t, err)

	est, err := in.Finalize(context.Background(), gotReply, -1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, est.Intersection, 1.0)
}

func TestReplyErrorEnvelope(t *testing.T) {
	capability := he.NewPlain(2048)

	data, err := EncodeReplyError("sess-1", errors.New("boom"))
	require.NoError(t, err)
	_, err = DecodeReply(capability, data)
	require.ErrorIs(t, err, ErrRemote)
}

func TestReplyMismatchKeepsIdentity(t *testing.T) {
	capability := he.NewPlain(2048)
	remoteErr := fmt.Errorf("%w: offer m=1024 k=4, local m=2048 k=4", protocol.ErrParameterMismatch)

	data, err := EncodeReplyError("sess-1", remoteErr)
	require.NoError(t, err)
	_, err = DecodeReply(capability, data)
	require.ErrorIs(t, err, protocol.ErrParameterMismatch)
}
