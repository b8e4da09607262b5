package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindTransport, "connection dropped")

	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, IsTransport(err))
	assert.False(t, IsAuth(err))
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := pkgerrors.New("dial tcp: i/o timeout")
	err := Wrap(KindTransport, cause, "failed to connect")
	err = pkgerrors.Wrap(err, "cycle aborted")

	assert.Equal(t, KindTransport, KindOf(err))
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestKindOfUntagged(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(pkgerrors.New("plain error")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindAuth, nil, "ignored"))
	assert.Nil(t, Wrapf(KindAuth, nil, "ignored %d", 1))
}

func TestInnerKindWins(t *testing.T) {
	inner := New(KindAuth, "login rejected")
	outer := Wrap(KindTransport, inner, "session setup failed")

	// The outermost tag decides policy; the auth failure underneath
	// stays reachable through the chain.
	assert.Equal(t, KindTransport, KindOf(outer))
	assert.Equal(t, KindAuth, KindOf(inner))
}
