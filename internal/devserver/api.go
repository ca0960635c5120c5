package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type apiResponse struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Message *string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Message: &msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, errWrongPassword):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Password *string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.hub.CreateRoom(strings.TrimSpace(req.Name), deref(req.Password))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("room created", "room_id", id, "name", req.Name)
	writeOK(w, map[string]string{"room_id": id})
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.hub.ListRooms())
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string  `json:"room_id"`
		Password *string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name, err := s.hub.CheckAccess(req.RoomID, deref(req.Password))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, map[string]string{"room_id": req.RoomID, "room_name": name})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID      string `json:"room_id"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.hub.UpdatePassword(req.RoomID, req.NewPassword); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, "password updated")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
