// Package webhook receives inbound events from the provisioning API. It
// is the callback target registered at instance creation time: message
// events become leads, connection events feed the orchestrator as
// out-of-band authorization hints.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/casahub/leadlink/internal/leads"
)

const (
	maxBodyBytes    = 1 << 20
	dedupeTTL       = 20 * time.Minute
	dedupeMaxSize   = 5000
	eventMessages   = "messages.upsert"
	eventConnection = "connection.update"
)

// StateNotifier receives out-of-band connection state reports.
type StateNotifier interface {
	NotifyRemoteState(raw string)
}

// event is the provider's webhook envelope.
type event struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		State string `json:"state"` // connection.update
		Key   struct {
			ID        string `json:"id"`
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
	} `json:"data"`
}

// Server handles provider webhooks for a single owner.
type Server struct {
	ownerID  string
	sink     leads.Sink
	notifier StateNotifier
	dedupe   *DedupeCache

	mu    sync.RWMutex
	token string
}

// NewServer creates a webhook receiver. token, when non-empty, must match
// the Authorization bearer token (or ?token= query) of incoming requests.
func NewServer(ownerID, token string, sink leads.Sink, notifier StateNotifier) *Server {
	return &Server{
		ownerID:  ownerID,
		token:    token,
		sink:     sink,
		notifier: notifier,
		dedupe:   NewDedupeCache(dedupeTTL, dedupeMaxSize),
	}
}

// Handler returns the http.Handler for the webhook endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", requireMethod(http.MethodPost, s.handleEvent))
	mux.HandleFunc("/healthz", requireMethod(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	return mux
}

// requireMethod restricts a handler to one HTTP method, matching the
// method-pattern routing of the Go 1.22+ ServeMux on older toolchains.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	switch ev.Event {
	case eventConnection:
		slog.Debug("webhook connection update", "instance", ev.Instance, "state", ev.Data.State)
		if s.notifier != nil && ev.Data.State != "" {
			s.notifier.NotifyRemoteState(ev.Data.State)
		}

	case eventMessages:
		s.handleMessage(&ev)

	default:
		slog.Debug("webhook event ignored", "event", ev.Event, "instance", ev.Instance)
	}

	// Always 200: the provider retries non-2xx deliveries and none of
	// our internal failures are fixed by a redelivery.
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMessage(ev *event) {
	if ev.Data.Key.FromMe {
		return
	}

	key := ev.Instance + ":" + ev.Data.Key.ID
	if ev.Data.Key.ID != "" && s.dedupe.IsDuplicate(key) {
		slog.Debug("webhook duplicate message dropped", "key", key)
		return
	}

	text := ev.Data.Message.Conversation
	if text == "" {
		text = ev.Data.Message.ExtendedTextMessage.Text
	}
	if text == "" {
		return // media-only events are not lead material yet
	}

	lead := &leads.Lead{
		OwnerID: s.ownerID,
		Channel: "whatsapp",
		Contact: contactFromJID(ev.Data.Key.RemoteJID),
		Name:    ev.Data.PushName,
		Message: text,
	}
	if err := s.sink.Capture(lead); err != nil {
		slog.Error("lead capture failed", "contact", lead.Contact, "error", err)
		return
	}

	slog.Info("lead captured", "owner", s.ownerID, "contact", lead.Contact, "name", lead.Name)
}

// SetToken swaps the shared webhook secret. Used by config hot reload so
// the token can be rotated without restarting the receiver.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Server) authorized(r *http.Request) bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if tokenMatch(extractBearerToken(r), token) {
		return true
	}
	return tokenMatch(r.URL.Query().Get("token"), token)
}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenMatch performs a constant-time comparison of a provided token
// against the expected token. Returns true if expected is empty (no auth
// configured) or if tokens match.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// contactFromJID strips the server part of a remote JID
// ("5511999990000@s.whatsapp.net" → "5511999990000").
func contactFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i > 0 {
		return jid[:i]
	}
	return jid
}
