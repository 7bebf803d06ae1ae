// Package connection implements the messaging-channel connection lifecycle:
// provisioning a remote instance, issuing the pairing QR, polling for
// authorization, recovering stuck handshakes and enforcing the pairing
// window.
//
// The state machine:
//
//	disconnected --Create--> pending
//	pending --poller sees authorized--> authorized
//	pending --pairing window elapses--> expired --(teardown)--> disconnected
//	pending/authorized --Delete--> disconnected
//	authorized --reconciliation finds remote gone--> disconnected
//
// The poller, the expiry timer and the display countdown for one pairing
// attempt all run under a single cancellable context, so every exit path
// (authorized, expired, explicit delete) tears the whole set down with one
// call. A session generation counter makes the terminal transition
// idempotent: whichever path wins first commits, the losers become no-ops.
package connection

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casahub/leadlink/internal/qr"
	"github.com/casahub/leadlink/internal/store"
	"github.com/casahub/leadlink/internal/wapi"
)

const (
	defaultPairWindow     = 120 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultMaxPollTicks   = 60
	defaultStuckThreshold = 15
	defaultCountdownTick  = time.Second

	// nameSuffixAlphabet excludes ambiguous characters (0, O, 1, I, L).
	nameSuffixAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	nameSuffixLength   = 6

	probeText = "Channel connected. Incoming chats will now arrive as leads."
)

// Config holds per-owner orchestrator settings.
type Config struct {
	// OwnerID identifies the account that owns the instance.
	OwnerID string

	// WebhookURL is registered with the provider as the inbound event
	// target at provisioning time.
	WebhookURL string

	// ProbeNumber, when set, receives a confirmation text right after a
	// successful pairing. Failures are logged, never escalated.
	ProbeNumber string

	// PairWindow is how long a pairing code stays valid (default 120s).
	PairWindow time.Duration
	// PollInterval is the status poll cadence (default 2s).
	PollInterval time.Duration
	// MaxPollTicks caps poll iterations as a backstop alongside the
	// expiry timer (default 60).
	MaxPollTicks int
	// StuckThreshold is the number of consecutive "connecting" ticks
	// before a remote restart is issued (default 15).
	StuckThreshold int
	// CountdownTick is the display countdown granularity (default 1s).
	CountdownTick time.Duration

	// KeepStalePending adopts a pending row found during reconciliation
	// instead of abandoning it. Default false: a pending row surviving a
	// reload has nobody watching its QR, so it is torn down.
	KeepStalePending bool
}

func (c *Config) applyDefaults() {
	if c.PairWindow <= 0 {
		c.PairWindow = defaultPairWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollTicks <= 0 {
		c.MaxPollTicks = defaultMaxPollTicks
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = defaultStuckThreshold
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = defaultCountdownTick
	}
}

// Events are optional observer callbacks for the UI layer. They are
// invoked from timer goroutines and must not block.
type Events struct {
	OnAuthorized     func()
	OnExpired        func()
	OnPairingRestart func()
	OnCountdown      func(secondsRemaining int)
}

// session is one pairing attempt's cancellation unit. cancel stops the
// poller, the expiry timer and the countdown together.
type session struct {
	gen    uint64
	cancel context.CancelFunc
}

// Service is the connection lifecycle orchestrator for a single owner.
type Service struct {
	cfg    Config
	client wapi.Client
	stor   store.InstanceStore
	events Events

	mu          sync.Mutex
	creating    bool // re-entrancy guard for Create
	status      store.InstanceStatus
	inst        *store.ChannelInstance
	pairingCode string
	deadline    time.Time
	visible     bool
	sess        *session
	nextGen     uint64

	// persistWG tracks fire-and-forget persistence writes so tests and
	// shutdown can drain them.
	persistWG sync.WaitGroup
}

// NewService creates an orchestrator. Initial state is disconnected until
// ReconcileOnLoad promotes it.
func NewService(cfg Config, client wapi.Client, stor store.InstanceStore, events Events) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:     cfg,
		client:  client,
		stor:    stor,
		events:  events,
		status:  store.StatusDisconnected,
		visible: true,
	}
}

// CreateOutcome is returned to the caller so it can render the QR.
type CreateOutcome struct {
	// PairingCode is always an inline image (data URI).
	PairingCode string
	// RawCode is the provider's raw pairing string when it sent one;
	// useful for terminal rendering.
	RawCode string
	Status  store.InstanceStatus
}

// Create provisions a new remote instance and starts the pairing attempt.
//
// Rejects with ErrAlreadyConnected when an authorized instance exists and
// with ErrCreationInProgress when another call is still in flight. A stale
// non-authorized row never blocks a new attempt: it is torn down first.
func (s *Service) Create(ctx context.Context) (*CreateOutcome, error) {
	if err := store.ValidateOwnerID(s.cfg.OwnerID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return nil, ErrCreationInProgress
	}
	if s.status == store.StatusAuthorized {
		s.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	s.creating = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.creating = false
		s.mu.Unlock()
	}()

	// The persisted row is checked as well: the in-memory flag only
	// guards this process, the row guards across restarts.
	if row, err := s.stor.FindActive(s.cfg.OwnerID); err == nil {
		if row.Status == store.StatusAuthorized {
			return nil, ErrAlreadyConnected
		}
		s.discardStaleRow(ctx, row)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("create: active row lookup failed", "owner", s.cfg.OwnerID, "error", err)
	}

	name := generateInstanceName(s.cfg.OwnerID)
	if err := store.ValidateInstanceName(name); err != nil {
		return nil, err
	}
	token := generatePairingToken()

	res, err := s.provision(ctx, name)
	if err != nil {
		return nil, err
	}

	code, rawCode, err := extractPairingCode(res)
	if err != nil {
		// Don't leak the half-provisioned instance.
		if derr := s.client.DeleteInstance(ctx, name); derr != nil {
			slog.Warn("create: cleanup after missing QR failed", "instance", name, "error", derr)
		}
		return nil, err
	}

	now := time.Now()
	inst := &store.ChannelInstance{
		ID:               store.GenNewID(),
		OwnerID:          s.cfg.OwnerID,
		InstanceName:     name,
		PairingToken:     token,
		RemoteInstanceID: res.RemoteInstanceID,
		Status:           store.StatusPending,
		PairingCode:      code,
		CreatedAt:        now,
	}

	s.mu.Lock()
	s.inst = inst
	s.status = store.StatusPending
	s.pairingCode = code
	s.deadline = now.Add(s.cfg.PairWindow)
	gen := s.startSessionLocked(name)
	s.mu.Unlock()

	// Fire-and-forget: the QR must reach the caller regardless of
	// persistence latency. In-memory state is authoritative until the
	// next reconciliation.
	s.persistAsync("insert pending instance", func() error {
		return s.stor.Insert(inst)
	})

	slog.Info("instance provisioned, pairing started",
		"owner", s.cfg.OwnerID,
		"instance", name,
		"session", gen,
		"window", s.cfg.PairWindow,
	)

	return &CreateOutcome{PairingCode: code, RawCode: rawCode, Status: store.StatusPending}, nil
}

// provision creates the remote instance, recovering a name conflict by
// deleting the stale remote instance and retrying exactly once.
func (s *Service) provision(ctx context.Context, name string) (*wapi.CreateResult, error) {
	res, err := s.client.CreateInstance(ctx, name, true, s.cfg.WebhookURL)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, wapi.ErrNameInUse) {
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	slog.Warn("create: instance name in use, deleting stale remote instance", "instance", name)
	if derr := s.client.DeleteInstance(ctx, name); derr != nil {
		slog.Warn("create: stale remote delete failed", "instance", name, "error", derr)
	}

	res, err = s.client.CreateInstance(ctx, name, true, s.cfg.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}
	return res, nil
}

// discardStaleRow tears down a non-authorized leftover row before a new
// attempt. Remote failure is tolerated, local soft-delete failure only
// logged.
func (s *Service) discardStaleRow(ctx context.Context, row *store.ChannelInstance) {
	slog.Info("create: discarding stale instance row",
		"owner", row.OwnerID, "instance", row.InstanceName, "status", row.Status)

	if err := s.client.DeleteInstance(ctx, row.InstanceName); err != nil {
		slog.Warn("create: stale remote delete failed", "instance", row.InstanceName, "error", err)
	}
	if err := s.stor.SoftDelete(row.ID.String(), store.StatusDisconnected); err != nil {
		slog.Warn("create: stale row soft delete failed", "instance", row.InstanceName, "error", err)
	}
}

// Delete tears down the current instance. Timers are cancelled first,
// unconditionally, so nothing fires after an intentional disconnect.
// Remote logout and delete are best-effort. Returns ErrNoInstance when
// there is nothing to tear down.
func (s *Service) Delete(ctx context.Context) error {
	s.mu.Lock()
	s.endSessionLocked()
	inst := s.inst
	s.inst = nil
	s.status = store.StatusDisconnected
	s.pairingCode = ""
	s.mu.Unlock()

	if inst == nil {
		// Nothing in memory; the store may still hold a row (e.g. after
		// a crash before reconciliation).
		row, err := s.stor.FindActive(s.cfg.OwnerID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoInstance
		}
		if err != nil {
			return fmt.Errorf("delete: active row lookup: %w", err)
		}
		inst = row
	}

	s.teardownRemote(ctx, inst.InstanceName)

	if err := s.stor.SoftDelete(inst.ID.String(), store.StatusDisconnected); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("delete: local soft delete failed", "instance", inst.InstanceName, "error", err)
	}

	slog.Info("instance disconnected", "owner", s.cfg.OwnerID, "instance", inst.InstanceName)
	return nil
}

// teardownRemote logs out and deletes the remote instance, tolerating
// either call failing. A 404 on an already-gone instance is success.
func (s *Service) teardownRemote(ctx context.Context, name string) {
	if err := s.client.Logout(ctx, name); err != nil {
		slog.Warn("remote logout failed", "instance", name, "error", err)
	}
	if err := s.client.DeleteInstance(ctx, name); err != nil {
		slog.Warn("remote delete failed", "instance", name, "error", err)
	}
}

// ReconcileOnLoad re-derives in-memory state from the store on cold start
// or regained visibility.
//
// An authorized row is adopted without re-provisioning, unless the remote
// instance is gone, in which case the row is torn down locally. A pending
// row found here (rather than freshly created) is abandoned by default:
// its QR is not being watched by a live poller.
func (s *Service) ReconcileOnLoad(ctx context.Context) error {
	row, err := s.stor.FindActive(s.cfg.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	switch row.Status {
	case store.StatusAuthorized:
		// Verify the remote side still knows the instance.
		if _, serr := s.client.ConnectionState(ctx, row.InstanceName); errors.Is(serr, wapi.ErrNotFound) {
			slog.Warn("reconcile: authorized row has no remote instance, disconnecting",
				"owner", row.OwnerID, "instance", row.InstanceName)
			if derr := s.stor.SoftDelete(row.ID.String(), store.StatusDisconnected); derr != nil {
				slog.Warn("reconcile: soft delete failed", "instance", row.InstanceName, "error", derr)
			}
			return nil
		}

		s.mu.Lock()
		s.inst = row
		s.status = store.StatusAuthorized
		s.pairingCode = ""
		s.mu.Unlock()
		slog.Info("reconcile: adopted authorized instance", "owner", row.OwnerID, "instance", row.InstanceName)

	case store.StatusPending:
		if s.cfg.KeepStalePending {
			s.adoptPending(row)
			return nil
		}
		slog.Info("reconcile: abandoning stale pending instance",
			"owner", row.OwnerID, "instance", row.InstanceName)
		if derr := s.client.DeleteInstance(ctx, row.InstanceName); derr != nil {
			slog.Warn("reconcile: stale remote delete failed", "instance", row.InstanceName, "error", derr)
		}
		if derr := s.stor.HardDelete(row.ID.String()); derr != nil {
			slog.Warn("reconcile: stale row delete failed", "instance", row.InstanceName, "error", derr)
		}
	}
	// Other statuses need no action; in-memory state stays disconnected.
	return nil
}

// adoptPending resumes a pending row with a fresh full pairing window.
func (s *Service) adoptPending(row *store.ChannelInstance) {
	s.mu.Lock()
	s.inst = row
	s.status = store.StatusPending
	s.pairingCode = row.PairingCode
	s.deadline = time.Now().Add(s.cfg.PairWindow)
	gen := s.startSessionLocked(row.InstanceName)
	s.mu.Unlock()
	slog.Info("reconcile: resumed pending pairing", "instance", row.InstanceName, "session", gen)
}

// NotifyRemoteState feeds an out-of-band state report (e.g. a webhook
// connection event) into the state machine. Only an authorized report
// while pending has any effect.
func (s *Service) NotifyRemoteState(raw string) {
	if Classify(raw) != ClassAuthorized {
		return
	}
	s.mu.Lock()
	if s.status != store.StatusPending || s.sess == nil {
		s.mu.Unlock()
		return
	}
	gen := s.sess.gen
	name := s.inst.InstanceName
	s.mu.Unlock()

	s.commitAuthorized(gen, name)
}

// --- Observables ---

// Status returns the current lifecycle status.
func (s *Service) Status() store.InstanceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PairingCode returns the current pairing code, empty unless pending.
func (s *Service) PairingCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairingCode
}

// SecondsRemaining returns the display countdown. Zero when not pending.
// Purely informational: teardown is driven by the expiry timer alone.
func (s *Service) SecondsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != store.StatusPending {
		return 0
	}
	left := time.Until(s.deadline)
	if left < 0 {
		return 0
	}
	return int(left.Round(time.Second) / time.Second)
}

// SetVisible tells the orchestrator whether anyone is watching the pairing
// surface. Poll ticks are skipped while invisible to spare remote calls.
func (s *Service) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

// Drain waits for outstanding fire-and-forget persistence writes.
func (s *Service) Drain() {
	s.persistWG.Wait()
}

// --- Session management ---

// startSessionLocked cancels any previous session and starts the poller,
// expiry timer and countdown for a new pairing attempt. Caller holds s.mu.
func (s *Service) startSessionLocked(name string) uint64 {
	s.endSessionLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.nextGen++
	gen := s.nextGen
	s.sess = &session{gen: gen, cancel: cancel}

	go s.runPoller(ctx, gen, name)
	go s.runExpiry(ctx, gen, name)
	go s.runCountdown(ctx)

	return gen
}

// endSessionLocked cancels the current session's poller, expiry timer and
// countdown as one unit. Caller holds s.mu. Idempotent.
func (s *Service) endSessionLocked() {
	if s.sess != nil {
		s.sess.cancel()
		s.sess = nil
	}
}

// claimTerminal reports whether the caller's session generation is still
// the live one and, if so, ends the session. Exactly one terminal
// transition wins per session; late timers become no-ops.
func (s *Service) claimTerminalLocked(gen uint64) bool {
	if s.sess == nil || s.sess.gen != gen {
		return false
	}
	s.endSessionLocked()
	return true
}

// --- Helpers ---

func (s *Service) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// persistAsync runs a persistence write in the background. Failure is
// captured in the log, never propagated: in-memory state stays
// authoritative for the running process.
func (s *Service) persistAsync(op string, fn func() error) {
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()
		if err := fn(); err != nil {
			slog.Error("persistence write failed", "op", op, "owner", s.cfg.OwnerID, "error", err)
		}
	}()
}

// extractPairingCode normalizes the two valid response shapes: an inline
// image is used as-is, a raw code is rendered client-side. Neither being
// present is a distinct failure, never swallowed.
func extractPairingCode(res *wapi.CreateResult) (code, rawCode string, err error) {
	switch {
	case res.QRBase64 != "":
		return res.QRBase64, res.QRRaw, nil
	case res.QRRaw != "":
		code, err = qr.DataURI(res.QRRaw)
		if err != nil {
			return "", "", err
		}
		return code, res.QRRaw, nil
	}
	return "", "", ErrQRCodeMissing
}

// generateInstanceName builds a globally unique remote instance name from
// the owner id, a millisecond timestamp and a random suffix.
func generateInstanceName(ownerID string) string {
	base := strings.ToLower(ownerID)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)
	if len(base) > 40 {
		base = base[:40]
	}
	return fmt.Sprintf("%s-%d-%s", base, time.Now().UnixMilli(), randSuffix(nameSuffixLength))
}

func generatePairingToken() string {
	return randSuffix(24)
}

func randSuffix(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	out := make([]byte, n)
	for i := range out {
		out[i] = nameSuffixAlphabet[int(b[i])%len(nameSuffixAlphabet)]
	}
	return string(out)
}
