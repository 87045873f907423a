package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clementraoulgithub/gui-tcp-server/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type markReadRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	IsReaded bool   `json:"is_readed"`
}

// handleOlderMessages pages backwards through the home room and the direct
// messages between user1 and user2. The caller must be one of the two.
func handleOlderMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		q := r.URL.Query()
		var start int64
		if s := q.Get("start"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
				return
			}
			start = v
		}
		count := defaultPageSize
		if s := q.Get("count"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid count"})
				return
			}
			count = min(v, maxPageSize)
		}

		user1, user2 := q.Get("user1"), q.Get("user2")
		if user1 != currentUser.Username && user2 != currentUser.Username {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a participant"})
			return
		}

		msgs, err := msgSvc.Older(r.Context(), start, count, user1, user2)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleLastMessageID(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := msgSvc.LastID(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"last_id": id})
	}
}

// handleMarkRead flags the messages sender sent to the caller.
func handleMarkRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req markReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.Receiver != currentUser.Username {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "only the receiver can update read status"})
			return
		}

		if err := msgSvc.MarkRead(r.Context(), req.Sender, req.Receiver, req.IsReaded); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
