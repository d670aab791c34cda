package handlers

import (
	"errors"
	"net/http"

	"github.com/jason-s-yu/chessroom/internal/chat"
	"github.com/sirupsen/logrus"
)

type postMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// PostMessageHandler stores a message and relays it if the receiver is online.
// Unlike the websocket path, a store failure is reported to the caller.
func (s *APIServer) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	msg, err := s.Chat.Send(r.Context(), req.Sender, req.Receiver, req.Text)
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	case err != nil:
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"sender":   req.Sender,
			"receiver": req.Receiver,
		}).Error("failed to save message")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListMessagesHandler returns every stored message.
func (s *APIServer) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Chat.All(r.Context())
	if err != nil {
		s.Logger.WithError(err).Error("failed to fetch messages")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HistoryHandler returns the conversation between two users, oldest first.
func (s *APIServer) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("userId"), r.PathValue("otherId")
	msgs, err := s.Chat.History(r.Context(), a, b)
	if err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{"user_id": a, "other_id": b}).Error("failed to fetch history")
		writeError(w, http.StatusInternalServerError, "Error fetching messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
