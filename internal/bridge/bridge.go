// Package bridge is a supplemental embedder surface: an HTTP handler that
// upgrades to a websocket and streams Core.Refresh's ChangeEvents as JSON
// frames to connected clients. It does not replace any of the OS wait
// handles in internal/watchfs; it is an additional option for an
// out-of-process consumer that wants change notifications without linking
// against this module directly.
package bridge

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quick-lint/configwatch/internal/detector"
	"github.com/quick-lint/configwatch/internal/event"
	"github.com/quick-lint/configwatch/internal/logging"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024
	writeTimeout    = 10 * time.Second
)

// changeEventPayload is the wire shape pushed to every connected client.
type changeEventPayload struct {
	Type           string    `json:"type"`
	WatchedPath    string    `json:"watched_path"`
	ConfigFilePath string    `json:"config_file_path,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Handler streams a Core's published ChangeEvents over a websocket
// connection per client. AuthToken, if set, is checked against an
// Authorization: Bearer header or a ?token= query parameter, mirroring a
// bearer-token gate commonly placed in front of this kind of stream.
// AllowedOrigins restricts which browser Origins may connect; an empty list
// allows only same-origin requests.
type Handler struct {
	Bus            *event.Bus[detector.ChangeEvent]
	AuthToken      string
	AllowedOrigins []string
	Logger         *logging.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Bus == nil {
		http.Error(w, "change events unavailable", http.StatusInternalServerError)
		return
	}

	output, cancel := h.Bus.Subscribe()
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, h.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var closeOnce sync.Once
	done := make(chan struct{})
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	defer closeDone()

	go func() {
		for {
			select {
			case change, ok := <-output:
				if !ok {
					return
				}
				payload := changeEventPayload{
					Type:           change.Type(),
					WatchedPath:    change.WatchedPath,
					ConfigFilePath: change.ConfigFilePath,
					Timestamp:      change.OccurredAt,
				}
				if payload.Timestamp.IsZero() {
					payload.Timestamp = time.Now().UTC()
				}
				if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
					closeDone()
					return
				}
				if err := conn.WriteJSON(payload); err != nil {
					h.logWarn("websocket write failed", err)
					closeDone()
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) logWarn(message string, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(message, map[string]string{"error": err.Error()})
}

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}

	queryToken := r.URL.Query().Get("token")
	if queryToken != "" {
		return queryToken == token
	}

	return false
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(origin, allowedOrigin) || strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	requestHost := r.Host
	if host, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = host
	}
	return strings.EqualFold(originHost, requestHost)
}
