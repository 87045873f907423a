package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clementraoulgithub/gui-tcp-server/internal/service"
	"github.com/clementraoulgithub/gui-tcp-server/internal/ws"
)

func handleListUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListUsernames(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"users": users})
	}
}

// handleListOnlineUsers reports who currently holds a relay connection.
func handleListOnlineUsers(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"users":       hub.Usernames(),
			"connections": hub.Count(),
		})
	}
}

// handleGetIcon answers 204 when the user has no picture.
func handleGetIcon(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		icon, err := userSvc.Icon(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(icon) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(icon))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(icon)
	}
}

// handleSetIcon replaces the caller's own picture.
func handleSetIcon(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		username := chi.URLParam(r, "username")
		if username != currentUser.Username {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot change another user's icon"})
			return
		}

		icon, err := io.ReadAll(http.MaxBytesReader(w, r.Body, service.MaxIconSize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "icon too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		if err := userSvc.SetIcon(r.Context(), username, icon); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
