package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/casahub/leadlink/internal/store"
)

// runPoller queries the remote connection state on a fixed cadence while
// the instance is pending. The stuck-connection detector is folded into
// the loop: a run of consecutive "connecting" classifications past the
// threshold triggers one remote restart and resets the counter.
//
// The iteration cap is a belt-and-suspenders bound next to the expiry
// timer; skipped (invisible) ticks still count so the cap tracks wall
// clock.
func (s *Service) runPoller(ctx context.Context, gen uint64, name string) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	stuck := 0
	for i := 0; i < s.cfg.MaxPollTicks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.isVisible() {
			continue
		}

		raw, err := s.client.ConnectionState(ctx, name)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// A single failed status check never terminates the loop.
			slog.Warn("status poll failed", "instance", name, "error", err)
			continue
		}

		class := Classify(raw)
		slog.Debug("status poll", "instance", name, "raw", raw, "class", class.String(), "tick", i+1)

		if class == ClassConnecting {
			stuck++
		} else {
			stuck = 0
		}

		if class == ClassAuthorized {
			s.commitAuthorized(gen, name)
			return
		}

		if stuck >= s.cfg.StuckThreshold {
			stuck = 0
			s.restartStuck(ctx, name)
		}
	}

	slog.Warn("status poller hit iteration cap", "instance", name, "ticks", s.cfg.MaxPollTicks)
}

// restartStuck asks the provider to restart an instance whose handshake
// has been "connecting" for too long. The restart invalidates the issued
// QR, so the caller is told pairing must be redone. Failure is logged;
// the expiry timer remains the backstop.
func (s *Service) restartStuck(ctx context.Context, name string) {
	slog.Warn("connection stuck, restarting remote instance", "instance", name)

	if err := s.client.Restart(ctx, name); err != nil {
		slog.Warn("remote restart failed", "instance", name, "error", err)
		return
	}
	if s.events.OnPairingRestart != nil {
		s.events.OnPairingRestart()
	}
}

// commitAuthorized performs the pending→authorized terminal transition.
// Safe to call from the poller and from out-of-band webhook hints; only
// the first caller for a live session commits.
func (s *Service) commitAuthorized(gen uint64, name string) {
	s.mu.Lock()
	if !s.claimTerminalLocked(gen) {
		s.mu.Unlock()
		return
	}
	s.status = store.StatusAuthorized
	s.pairingCode = ""
	if s.inst != nil {
		s.inst.Status = store.StatusAuthorized
		s.inst.PairingCode = ""
	}
	s.mu.Unlock()

	slog.Info("pairing authorized", "owner", s.cfg.OwnerID, "instance", name)

	// Update-first, upsert-fallback: a reconciliation race can leave the
	// update matching zero rows. If the fallback also fails the in-memory
	// authorized state stands; persistence is best-effort mirroring.
	s.persistAsync("commit authorized", func() error {
		status := store.StatusAuthorized
		code := ""
		n, err := s.stor.Update(s.cfg.OwnerID, name, store.InstanceFields{Status: &status, PairingCode: &code})
		if err == nil && n > 0 {
			return nil
		}
		if err != nil {
			slog.Warn("authorized update failed, trying upsert", "instance", name, "error", err)
		}

		s.mu.Lock()
		inst := s.inst
		s.mu.Unlock()
		if inst == nil {
			return store.ErrNotFound
		}
		cp := *inst
		return s.stor.Upsert(&cp)
	})

	if s.events.OnAuthorized != nil {
		s.events.OnAuthorized()
	}

	// Confirmation probe; failures are logged only, never fail the
	// transition.
	if s.cfg.ProbeNumber != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.client.SendText(ctx, name, s.cfg.ProbeNumber, probeText); err != nil {
				slog.Warn("confirmation probe failed", "instance", name, "error", err)
			}
		}()
	}
}

// runExpiry arms the one-shot pairing window timer. Only this timer may
// trigger expiry teardown; the countdown is display-only.
func (s *Service) runExpiry(ctx context.Context, gen uint64, name string) {
	timer := time.NewTimer(s.cfg.PairWindow)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		s.expire(gen, name)
	}
}

// expire performs the pending→expired→disconnected teardown when the
// pairing window elapses.
func (s *Service) expire(gen uint64, name string) {
	s.mu.Lock()
	if !s.claimTerminalLocked(gen) {
		s.mu.Unlock()
		return
	}
	inst := s.inst
	s.inst = nil
	s.status = store.StatusDisconnected
	s.pairingCode = ""
	s.mu.Unlock()

	slog.Info("pairing window elapsed, tearing down", "owner", s.cfg.OwnerID, "instance", name)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.teardownRemote(ctx, name)

	if inst != nil {
		if err := s.stor.SoftDelete(inst.ID.String(), store.StatusExpired); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("expiry: local soft delete failed", "instance", name, "error", err)
		}
	}

	if s.events.OnExpired != nil {
		s.events.OnExpired()
	}
}

// runCountdown publishes the remaining pairing seconds on a fixed tick for
// display. It carries no correctness obligations and never tears anything
// down.
func (s *Service) runCountdown(ctx context.Context) {
	if s.events.OnCountdown == nil {
		return
	}

	ticker := time.NewTicker(s.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.events.OnCountdown(s.SecondsRemaining())
		}
	}
}
