package room

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/xid"
)

const (
	roomCreationTimeOut = 5 * time.Second
)

type ServerInfoMsg struct {
	OK    bool     `json:"ok"`
	NRoom int      `json:"nroom"`
	Rooms []string `json:"rooms"`
}

type RoomCreatedMsg struct {
	OK          bool   `json:"ok"`
	RoomID      string `json:"roomID"`
	Name        string `json:"name"`
	LeaderKey   string `json:"leaderKey"`
	FollowerKey string `json:"followerKey"`
}

type RoomInfoMsg struct {
	OK       bool    `json:"ok"`
	RoomID   string  `json:"roomID"`
	Name     string  `json:"name"`
	Playlist []Track `json:"playlist"`
}

type createRoomRequest struct {
	Name string `json:"name"`
}

func RespondWithJSON(m interface{}, statusCode int, w http.ResponseWriter) {

	payload, _ := json.Marshal(m)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(payload)
}

func RespondWithError(reason string, statusCode int, w http.ResponseWriter) {
	RespondWithJSON(map[string]interface{}{
		"ok":     false,
		"reason": reason,
	}, statusCode, w)
}

func getServerInfo(s *Server, w http.ResponseWriter, r *http.Request) {
	ids := s.RoomIDs()
	RespondWithJSON(&ServerInfoMsg{
		OK:    true,
		NRoom: len(ids),
		Rooms: ids,
	}, http.StatusOK, w)
}

func createRoom(s *Server, w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if r.Body != nil {
		// an empty or invalid body falls back to an unnamed room
		json.NewDecoder(r.Body).Decode(&req)
	}
	rid := xid.New().String()
	room, lk, fk, err := NewRoomWithRandomKeys(rid, req.Name, s)
	if err != nil {
		RespondWithError("An internal error occurred.",
			http.StatusInternalServerError, w)
		return
	}
	t := time.After(roomCreationTimeOut)
	select {
	case s.enqRoom <- room:
		RespondWithJSON(&RoomCreatedMsg{
			OK:          true,
			RoomID:      rid,
			Name:        req.Name,
			LeaderKey:   lk,
			FollowerKey: fk,
		}, http.StatusOK, w)
	case <-t:
		RespondWithError(
			"Room creation timed out.",
			http.StatusRequestTimeout,
			w,
		)
	}
}

func getRoomInfo(s *Server, w http.ResponseWriter, r *http.Request) {
	rid := mux.Vars(r)["rid"]
	room := s.LookupRoom(rid)
	if room == nil {
		RespondWithError(ErrInvalidRoomID, http.StatusNotFound, w)
		return
	}
	RespondWithJSON(&RoomInfoMsg{
		OK:       true,
		RoomID:   room.ID,
		Name:     room.Name,
		Playlist: room.Playlist(),
	}, http.StatusOK, w)
}

// NewRoomRestMux makes the RESTful API servemux of server
func NewRoomRestMux(server *Server) *mux.Router {
	restMux := mux.NewRouter().StrictSlash(true)
	restMux.HandleFunc("/", http.NotFound)
	restMux.HandleFunc("/server", func(w http.ResponseWriter, r *http.Request) {
		getServerInfo(server, w, r)
	}).Methods("GET")
	restMux.HandleFunc("/room", func(w http.ResponseWriter, r *http.Request) {
		createRoom(server, w, r)
	}).Methods("GET", "POST")
	restMux.HandleFunc("/room/{rid}", func(w http.ResponseWriter, r *http.Request) {
		getRoomInfo(server, w, r)
	}).Methods("GET")
	return restMux
}
