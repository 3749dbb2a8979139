package api

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/store"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt only reads the first 72 bytes.
	maxPasswordLen = 72
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserHandler manages user accounts.
type UserHandler struct {
	repo     store.Repository
	hashCost int
}

// NewUserHandler creates a user handler.
func NewUserHandler(repo store.Repository) *UserHandler {
	return &UserHandler{repo: repo, hashCost: bcrypt.DefaultCost}
}

// RegisterRoutes mounts the user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{userId}", h.Get)
		r.Put("/{userId}", h.Update)
		r.Delete("/{userId}", h.Delete)
	})
}

func validateUsername(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("%w: username must be 1-64 characters", errBadRequest)
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email %q", errBadRequest, email)
	}
	return nil
}

func (h *UserHandler) hashPassword(password string) (string, error) {
	switch {
	case len(password) < minPasswordLen:
		return "", fmt.Errorf("%w: password must be at least %d characters", errBadRequest, minPasswordLen)
	case len(password) > maxPasswordLen:
		return "", fmt.Errorf("%w: password must be at most %d bytes", errBadRequest, maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Create registers a new user.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateUsername(req.Username); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	hash, err := h.hashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user := &domain.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, user)
}

// Get returns one user.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.repo.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Update applies a partial update to a user.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var upd domain.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, err)
		return
	}

	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if err := validateUsername(name); err != nil {
			writeError(w, r, err)
			return
		}
		upd.Username = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if err := validateEmail(email); err != nil {
			writeError(w, r, err)
			return
		}
		upd.Email = &email
	}
	if upd.Password != nil {
		hash, err := h.hashPassword(*upd.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.Password = &hash
	}

	user, err := h.repo.UpdateUser(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Delete removes a user and their schedules.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
