// Package service wires the forge/sign/deliver pipeline behind a single
// entry point shared by the device poller and the HTTP intake boundary.
package service

import (
	"context"
	"fmt"

	"github.com/franksrp-ld/ssf/internal/logging"
	"github.com/franksrp-ld/ssf/internal/metrics"
	"github.com/franksrp-ld/ssf/internal/risk"
)

// Signer produces a compact signed SET from a transition.
type Signer interface {
	Sign(t risk.Transition) (string, error)
}

// Deliverer pushes a signed SET to the downstream receiver.
type Deliverer interface {
	Deliver(ctx context.Context, token string) error
}

// Relay drives a risk transition through signing and delivery.
type Relay struct {
	signer    Signer
	deliverer Deliverer
	logger    *logging.Logger
}

func NewRelay(signer Signer, deliverer Deliverer, logger *logging.Logger) *Relay {
	return &Relay{
		signer:    signer,
		deliverer: deliverer,
		logger:    logger,
	}
}

// HandleTransition signs the transition and attempts delivery once.
// State for the subject has already been advanced by the caller, so a
// delivery failure here is reported but not rolled back.
func (r *Relay) HandleTransition(ctx context.Context, t risk.Transition) error {
	token, err := r.signer.Sign(t)
	if err != nil {
		return fmt.Errorf("forge security event: %w", err)
	}
	metrics.SetsSignedTotal.Inc()

	if err := r.deliverer.Deliver(ctx, token); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "delivered risk transition",
		"subject", t.Subject,
		"previous_level", t.Previous.String(),
		"current_level", t.Current.String(),
	)
	return nil
}
