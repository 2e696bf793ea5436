package api

import (
	"context"
	"log/slog"
	"net/http"

	"assistant-backend/internal/chat"

	"github.com/google/uuid"
)

const (
	userCookie = "assistant_uid"
	userHeader = "X-User-ID"
)

type contextKey string

const userIdKey contextKey = "user_id"

// UserId returns the caller identity resolved by the identity middleware.
func UserId(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIdKey).(uuid.UUID)
	return id
}

// Identity resolves the opaque caller identity: an explicit X-User-ID header,
// then the identity cookie, then a freshly provisioned guest user. The
// resolved id is stashed in the request context.
func Identity(store *chat.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userId := uuid.Nil

			if header := r.Header.Get(userHeader); header != "" {
				if id, err := uuid.Parse(header); err == nil {
					userId = id
				}
			}
			if userId == uuid.Nil {
				if cookie, err := r.Cookie(userCookie); err == nil {
					if id, err := uuid.Parse(cookie.Value); err == nil {
						userId = id
					}
				}
			}

			if userId != uuid.Nil {
				known, err := store.TouchUser(r.Context(), userId)
				if err != nil {
					slog.Error("error resolving user", "error", err)
					http.Error(w, "error resolving user", http.StatusInternalServerError)
					return
				}
				if !known {
					userId = uuid.Nil
				}
			}

			if userId == uuid.Nil {
				guest, err := store.CreateGuest(r.Context())
				if err != nil {
					slog.Error("error provisioning guest user", "error", err)
					http.Error(w, "error provisioning guest user", http.StatusInternalServerError)
					return
				}
				userId = guest.Id
				http.SetCookie(w, &http.Cookie{
					Name:     userCookie,
					Value:    userId.String(),
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), userIdKey, userId)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
