// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/chat"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/room"
	"github.com/sirupsen/logrus"
)

// UserStore is the account storage the REST handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// RoomInspector exposes read-only room state.
type RoomInspector interface {
	Snapshot(roomID string) (room.Snapshot, bool)
}

// APIServer serves the stateless request/response interface: accounts,
// chat history and room inspection.
type APIServer struct {
	Users  UserStore
	Chat   *chat.Relay
	Rooms  RoomInspector
	Logger logrus.FieldLogger
}

// NewAPIServer wires the handlers. users may be nil, in which case the account
// routes are not registered.
func NewAPIServer(users UserStore, relay *chat.Relay, rooms RoomInspector, logger logrus.FieldLogger) *APIServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &APIServer{Users: users, Chat: relay, Rooms: rooms, Logger: logger}
}

// Routes registers every REST endpoint on mux.
func (s *APIServer) Routes(mux *http.ServeMux) {
	if s.Users != nil {
		mux.HandleFunc("POST /register", s.RegisterHandler)
		mux.HandleFunc("POST /login", s.LoginHandler)
		mux.HandleFunc("GET /profile", s.ProfileHandler)
		mux.HandleFunc("GET /api/profile/{userId}", s.StatsHandler)
		mux.HandleFunc("GET /api/users", s.ListUsersHandler)
	}

	mux.HandleFunc("GET /api/messages", s.ListMessagesHandler)
	mux.HandleFunc("POST /api/messages", s.PostMessageHandler)
	mux.HandleFunc("GET /api/messages/{userId}/{otherId}", s.HistoryHandler)

	mux.HandleFunc("GET /api/rooms/{roomId}", s.RoomHandler)
}
