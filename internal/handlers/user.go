package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rebuttal-gg/rebuttal/internal/auth"
	"github.com/rebuttal-gg/rebuttal/internal/database"
	"github.com/rebuttal-gg/rebuttal/internal/models"
	"github.com/rebuttal-gg/rebuttal/internal/rating"
)

// CreateUserHandler registers a new account. A taken handle maps to 409.
func CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle   string `json:"handle"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Icon     string `json:"icon"`
		Banner   string `json:"banner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Handle == "" || req.Password == "" {
		http.Error(w, "handle and password are required", http.StatusBadRequest)
		return
	}

	user := models.User{
		Handle:   req.Handle,
		Email:    req.Email,
		Password: req.Password,
		Icon:     req.Icon,
		Banner:   req.Banner,
	}

	err := database.CreateUser(r.Context(), &user)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "handle already exists", http.StatusConflict)
			return
		}
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user.Sanitized())
}

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler checks credentials and issues a session JWT, both in the
// response body and as an HttpOnly cookie.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := database.AuthenticateUser(r.Context(), req.Handle, req.Password)
	if err != nil {
		log.Printf("failed to authenticate user: %v", err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     database.AuthCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenMaxAge(),
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
		return
	}
}

// MeHandler returns the account behind the request's auth cookie, with the
// current rating tier attached.
func MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := database.UserFromRequest(r)
	if err != nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	writeProfile(w, *user)
}

// LookupUserHandler returns the public profile for ?handle=.
func LookupUserHandler(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	if handle == "" {
		http.Error(w, "missing handle", http.StatusBadRequest)
		return
	}
	user, err := database.GetUserByHandle(r.Context(), handle)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	user.Email = ""
	writeProfile(w, *user)
}

// UpdateProfileHandler stores new cosmetics for the authenticated account.
func UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := database.UserFromRequest(r)
	if err != nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		Icon   string `json:"icon"`
		Banner string `json:"banner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Icon == "" {
		req.Icon = user.Icon
	}
	if req.Banner == "" {
		req.Banner = user.Banner
	}

	if err := database.UpdateUserProfile(r.Context(), user.Handle, req.Icon, req.Banner); err != nil {
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}
	user.Icon = req.Icon
	user.Banner = req.Banner
	writeProfile(w, *user)
}

// LeaderboardHandler returns the highest-rated accounts. ?limit= caps the
// page size at 100, defaulting to 25.
func LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	users, err := database.TopUsers(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	type entry struct {
		models.User
		Tier string `json:"tier"`
	}
	out := make([]entry, 0, len(users))
	for _, u := range users {
		out = append(out, entry{User: u.Sanitized(), Tier: rating.TierName(u.Elo)})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func writeProfile(w http.ResponseWriter, user models.User) {
	resp := struct {
		models.User
		Tier string `json:"tier"`
	}{User: user.Sanitized(), Tier: rating.TierName(user.Elo)}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
