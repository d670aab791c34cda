package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/auth"
	"github.com/jason-s-yu/chessroom/internal/database"
	"github.com/jason-s-yu/chessroom/internal/models"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RegisterHandler creates an account.
//
// Request payload:
//
//	{
//	  "username": "alice",
//	  "email": "alice@example.com",
//	  "password": "password"
//	}
func (s *APIServer) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}
	if err := s.Users.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			writeError(w, http.StatusConflict, "Username or Email already exists")
			return
		}
		s.Logger.WithError(err).Error("failed to create user")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	s.Logger.WithField("user_id", user.ID).Info("user registered")
	writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

// LoginHandler checks the credentials and returns a session token. The token
// is also sent as the auth_token cookie.
//
// Response payload:
//
//	{
//	  "token": "{jwt}",
//	  "userId": "{uuid}",
//	  "username": "alice"
//	}
func (s *APIServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := s.Users.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		writeError(w, http.StatusBadRequest, "User not found")
		return
	case errors.Is(err, database.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, "Invalid credentials")
		return
	case err != nil:
		s.Logger.WithError(err).Error("failed to authenticate user")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		s.Logger.WithError(err).Error("failed to create jwt")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	http.SetCookie(w, auth.SessionCookie(token))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: user.ID, Username: user.Username})
}

// ProfileHandler returns the caller's own account, without the password hash.
func (s *APIServer) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := auth.AuthenticateJWT(auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.writeUser(w, r, id, func(u *models.User) any { return u.Public() })
}

// StatsHandler returns the public match statistics of any user.
func (s *APIServer) StatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	s.writeUser(w, r, id, func(u *models.User) any { return u.Stats() })
}

func (s *APIServer) writeUser(w http.ResponseWriter, r *http.Request, id uuid.UUID, view func(*models.User) any) {
	user, err := s.Users.GetUserByID(r.Context(), id)
	if errors.Is(err, database.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", id).Error("failed to load user")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, view(user))
}

type userSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// ListUsersHandler lists every account as {id, username, email}.
func (s *APIServer) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.Users.ListUsers(r.Context())
	if err != nil {
		s.Logger.WithError(err).Error("failed to list users")
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

