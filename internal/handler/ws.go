package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/storage"
	"github.com/chatdesk/internal/view"
	"github.com/chatdesk/internal/ws"
)

type WSHandler struct {
	hub      *ws.Hub
	sink     ws.MessageSink
	views    view.Backend
	store    storage.SessionStore
	sessions *repository.SessionRepo
	settings ws.Settings
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, sink ws.MessageSink, views view.Backend, store storage.SessionStore, sessions *repository.SessionRepo, settings ws.Settings, checkOrigin func(*http.Request) bool) *WSHandler {
	return &WSHandler{
		hub:      hub,
		sink:     sink,
		views:    views,
		store:    store,
		sessions: sessions,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Connect upgrades to a websocket. Browsers cannot set custom headers on the
// upgrade request, so the signed-session triple travels in query params; the
// signature covers "GET" + "/ws" + timestamp.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	tsStr := q.Get("timestamp")
	sig := q.Get("signature")
	if sessionID == "" || tsStr == "" || sig == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || math.Abs(float64(time.Now().Unix()-ts)) > 300 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	secret, err := h.store.GetSessionSecret(r.Context(), sessionID)
	if err != nil || secret == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("GET"))
	mac.Write([]byte("/ws"))
	mac.Write([]byte(tsStr))
	if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(sig)) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil || sess.RevokedAt != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	// Each connection carries its own read models; the session keeps the chat
	// list and the open conversation in sync and pushes snapshots back.
	client := ws.NewClient(h.hub, conn, sess.UserID, h.sink, h.settings)
	sessView := view.NewSession(sess.UserID, h.views, h.hub, client.Deliver)
	client.OnSelectChat(sessView.Select)
	client.Start()

	sctx, cancel := context.WithCancel(context.Background())
	go sessView.Run(sctx)
	go func() {
		<-client.Done()
		cancel()
	}()
}
