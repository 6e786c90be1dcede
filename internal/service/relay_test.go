package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksrp-ld/ssf/internal/logging"
	"github.com/franksrp-ld/ssf/internal/risk"
)

type stubSigner struct {
	token string
	err   error
	calls int
	last  risk.Transition
}

func (s *stubSigner) Sign(t risk.Transition) (string, error) {
	s.calls++
	s.last = t
	return s.token, s.err
}

type stubDeliverer struct {
	err       error
	calls     int
	lastToken string
}

func (d *stubDeliverer) Deliver(ctx context.Context, token string) error {
	d.calls++
	d.lastToken = token
	return d.err
}

func testLogger() *logging.Logger {
	return logging.New(slog.LevelError, "text")
}

func sampleTransition() risk.Transition {
	return risk.Transition{
		Subject:    "a@x.com",
		Previous:   risk.Low,
		Current:    risk.High,
		Reason:     "test",
		OccurredAt: time.Now(),
	}
}

func TestHandleTransitionSignsAndDelivers(t *testing.T) {
	signer := &stubSigner{token: "signed-set"}
	deliverer := &stubDeliverer{}
	relay := NewRelay(signer, deliverer, testLogger())

	err := relay.HandleTransition(context.Background(), sampleTransition())
	require.NoError(t, err)

	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, "a@x.com", signer.last.Subject)
	assert.Equal(t, 1, deliverer.calls)
	assert.Equal(t, "signed-set", deliverer.lastToken)
}

func TestHandleTransitionForgeFailure(t *testing.T) {
	signer := &stubSigner{err: errors.New("key exploded")}
	deliverer := &stubDeliverer{}
	relay := NewRelay(signer, deliverer, testLogger())

	err := relay.HandleTransition(context.Background(), sampleTransition())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forge security event")
	assert.Zero(t, deliverer.calls, "nothing should be delivered when signing fails")
}

func TestHandleTransitionDeliveryFailure(t *testing.T) {
	deliveryErr := errors.New("receiver said no")
	signer := &stubSigner{token: "signed-set"}
	deliverer := &stubDeliverer{err: deliveryErr}
	relay := NewRelay(signer, deliverer, testLogger())

	err := relay.HandleTransition(context.Background(), sampleTransition())
	require.ErrorIs(t, err, deliveryErr)
	assert.Equal(t, 1, deliverer.calls, "exactly one attempt, no retry")
}
