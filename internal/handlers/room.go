package handlers

import "net/http"

// RoomHandler returns a snapshot of one room.
func (s *APIServer) RoomHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Rooms.Snapshot(r.PathValue("roomId"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
