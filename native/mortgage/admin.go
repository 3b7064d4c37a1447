package mortgage

import (
	"fmt"

	"lendchain/native/governance"
	"lendchain/native/rate"
)

// authorize verifies approval against the current admin nonce and consumes
// the nonce. It must run inside a transition so a later failure restores it.
func (e *Engine) authorize(action governance.Action, payload []byte, approval governance.Approval) (uint64, error) {
	if e.council == nil {
		return 0, fmt.Errorf("%w: council not configured", ErrUnauthorized)
	}
	nonce, err := e.AdminNonce()
	if err != nil {
		return 0, err
	}
	if err := e.council.Verify(approval.Message(action, payload), nonce); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err := e.state.KVPut(adminNonceKey, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

// FeeRatePayload is the canonical payload signed for a fee rate update.
func FeeRatePayload(r rate.Rate) []byte { return []byte(r.String()) }

// UpdateFeeRate replaces the fee rate applied to future borrows. Existing
// mortgages keep the fee computed when they were created.
func (e *Engine) UpdateFeeRate(r rate.Rate, approval governance.Approval) error {
	return e.run(func() error {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRate, err)
		}
		normalized, err := r.Normalize()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRate, err)
		}
		nonce, err := e.authorize(governance.ActionUpdateFeeRate, FeeRatePayload(normalized), approval)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(feeRateKey, normalized); err != nil {
			return err
		}
		e.queue(NewFeeRateUpdatedEvent(normalized, nonce))
		return nil
	})
}

// Pause stops every state-changing operation except administration.
func (e *Engine) Pause(approval governance.Approval) error {
	return e.setPaused(true, approval)
}

// Unpause resumes a paused module.
func (e *Engine) Unpause(approval governance.Approval) error {
	return e.setPaused(false, approval)
}

func (e *Engine) setPaused(paused bool, approval governance.Approval) error {
	return e.run(func() error {
		action, eventType := governance.ActionPause, EventTypePaused
		if !paused {
			action, eventType = governance.ActionUnpause, EventTypeUnpaused
		}
		current := e.IsPaused(ModuleName)
		if paused && current {
			return ErrAlreadyPaused
		}
		if !paused && !current {
			return ErrNotPaused
		}
		nonce, err := e.authorize(action, nil, approval)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(pausedKey, paused); err != nil {
			return err
		}
		e.queue(newPauseEvent(eventType, nonce))
		return nil
	})
}

// UpdateBaseURI replaces the prefix of claim metadata URIs.
func (e *Engine) UpdateBaseURI(uri string, approval governance.Approval) error {
	return e.run(func() error {
		nonce, err := e.authorize(governance.ActionUpdateBaseURI, []byte(uri), approval)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(baseURIKey, uri); err != nil {
			return err
		}
		e.queue(NewBaseURIUpdatedEvent(uri, nonce))
		return nil
	})
}

// Initialize seeds the module parameters at genesis. It bypasses the council
// and must only be used before genesis is committed.
func (e *Engine) Initialize(feeRate rate.Rate, baseURI string, paused bool) error {
	return e.run(func() error {
		if err := feeRate.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRate, err)
		}
		normalized, err := feeRate.Normalize()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRate, err)
		}
		if err := e.state.KVPut(feeRateKey, normalized); err != nil {
			return err
		}
		if err := e.state.KVPut(pausedKey, paused); err != nil {
			return err
		}
		return e.state.KVPut(baseURIKey, baseURI)
	})
}
