// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/auth"
	"github.com/jason-s-yu/chessroom/internal/connection"
	"github.com/jason-s-yu/chessroom/internal/middleware"
	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/jason-s-yu/chessroom/internal/session"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol spoken by the session handler.
// Clients may also connect without requesting any subprotocol.
const Subprotocol = "chess"

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// WSOptions tunes the session websocket.
type WSOptions struct {
	OriginPatterns []string
	OutboxSize     int
}

// SessionWSHandler upgrades the request and serves one session until either
// side closes the socket. A token is optional; guests play unauthenticated.
func SessionWSHandler(logger logrus.FieldLogger, gw *session.Gateway, opts WSOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket accept error")
			return
		}
		defer c.CloseNow()

		if r.Header.Get("Sec-WebSocket-Protocol") != "" && c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the chess subprotocol")
			return
		}

		userID, code, reason := authenticate(r)
		if code != 0 {
			logger.WithField("remote", r.RemoteAddr).Warn(reason)
			c.Close(code, reason)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := connection.New(userID, r.RemoteAddr, opts.OutboxSize, cancel)
		entry := logger.WithFields(logrus.Fields{"conn_id": conn.ID(), "user_id": userID})
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, conn.ID(), userID)

		gw.Connect(conn)
		go writePump(ctx, c, conn, entry)

		err = readPump(ctx, c, conn, gw, entry)

		gw.Disconnect(conn)
		conn.Close()

		if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
			err = nil
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, conn.ID(), err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// authenticate resolves the optional session token. A non-zero close code is
// returned when a token was presented but cannot be trusted.
func authenticate(r *http.Request) (string, websocket.StatusCode, string) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return "", 0, ""
	}
	sub, err := auth.AuthenticateJWT(token)
	if err != nil {
		return "", InvalidAuthTokenError, "invalid auth token"
	}
	if _, err := uuid.Parse(sub); err != nil {
		return "", InvalidUserIDError, "invalid user id in token"
	}
	return sub, 0, ""
}

// readPump decodes frames and dispatches them in arrival order. It returns the
// error that ended the read loop.
func readPump(ctx context.Context, c *websocket.Conn, conn *connection.Conn, gw *session.Gateway, logger logrus.FieldLogger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			logger.WithField("type", typ).Warn("ignoring non-text frame")
			replyError(conn, "only text frames are supported", logger)
			continue
		}

		in, err := protocol.Decode(msg)
		if err != nil {
			logger.WithError(err).Warn("invalid frame")
			replyError(conn, err.Error(), logger)
			continue
		}

		if err := gw.Dispatch(ctx, conn, in); err != nil {
			logger.WithError(err).WithField("event", in.Event()).Debug("event not applied")
		}
	}
}

// replyError queues an error event for the client, logging when the
// connection cannot take it.
func replyError(conn *connection.Conn, msg string, logger logrus.FieldLogger) {
	ev := protocol.Error{Message: msg}
	if err := conn.Send(ev); err != nil {
		logger.WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"event":   ev.Event(),
		}).WithError(err).Warn("error event not delivered")
	}
}

// writePump drains the outbox onto the socket and pings the client
// periodically. It stops when the outbox is closed or ctx is done.
func writePump(ctx context.Context, c *websocket.Conn, conn *connection.Conn, logger logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Outbox():
			if !ok {
				return
			}
			data, err := protocol.Encode(ev)
			if err != nil {
				logger.WithError(err).WithField("event", ev.Event()).Warn("failed to encode outgoing event")
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("failed to send ping, assuming disconnect")
				return
			}
		}
	}
}
