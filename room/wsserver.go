package room

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	WebsocketSubprotocolMagicV1 = "auxroom_v1"
	ErrInvalidRoomID            = "Error: Invalid Room ID"
	ErrInvalidKey               = "Error: Invalid room key"
)

const (
	wsReadBufferSize     = 1024
	wsWriteBufferSize    = 1024
	roomMessageQueueSize = 256
	clientSendQueueSize  = 32
	clientRecvQueueSize  = 32
	keyLength            = 32
	doCheckSubprotocol   = true
)

const (
	WriteWait                = 10 * time.Second
	DefaultLeaderlessTimeout = 5 * time.Minute
)

// Server encapsulates server-level global data
type Server struct {
	rooms        map[string]*Room // a map of rooms
	enqRoom      chan *Room
	deqRoom      chan *Room
	closing      chan bool
	closingGuard sync.Once
	mutex        sync.RWMutex // guard rooms for look up
}

// Room relays room-scoped topics between clients and owns the
// authoritative playlist. All mutable room state is confined to the
// goroutine running RunManager.
type Room struct {
	ID          string
	Name        string
	clients     map[string]RoomClient // a map with id:client kv pairs
	leaders     map[string]RoomClient
	queue       *Queue
	recvQueue   chan *Message // deserialised early in the read pumps
	enqClient   chan RoomClient
	deqClient   chan RoomClient
	snapshotReq chan chan []Track
	closing     chan bool
	leaderKey   string
	followerKey string
	server      *Server
}

type clientRole int

const (
	roleUnauthorised clientRole = iota
	roleFollower
	roleLeader
)

func (r clientRole) String() string {
	switch r {
	case roleLeader:
		return RoleLeaderName
	case roleFollower:
		return RoleFollowerName
	default:
		return "unauthorised"
	}
}

// RoomClient is a connected member of a room as seen by the room manager.
type RoomClient interface {
	GetID() string
	GetUsername() string
	SendMessage(*Message)
	GetRole() clientRole
	GetRemoteAddr() string
	Finalise() // run by room manager goroutine
}

// ClientConn encapsulates an established client websocket connection
type ClientConn struct {
	ID        string
	username  string
	conn      *websocket.Conn
	recvQueue chan *Message
	sendQueue chan *Message
	closing   chan bool
	role      clientRole
	room      *Room
}

func (c *ClientConn) GetID() string          { return c.ID }
func (c *ClientConn) GetUsername() string    { return c.username }
func (c *ClientConn) GetRemoteAddr() string  { return c.conn.RemoteAddr().String() }
func (c *ClientConn) SendMessage(m *Message) { c.sendQueue <- m }
func (c *ClientConn) GetRole() clientRole    { return c.role }
func (c *ClientConn) Finalise() {
	close(c.closing)
	close(c.sendQueue)
}

var wsUpgrader = GetWSUpgrader()

// GetWSUpgrader returns the websocket upgrader for use with auxroom
func GetWSUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		Subprotocols: []string{
			WebsocketSubprotocolMagicV1,
		},
		CheckOrigin: func(r *http.Request) bool {
			return true
		}, //disable origin check
	}
}

// NewServer creates a new server struct
func NewServer() *Server {
	return &Server{
		rooms:   make(map[string]*Room),
		enqRoom: make(chan *Room),
		deqRoom: make(chan *Room),
		closing: make(chan bool),
	}
}

func (s *Server) AddRoom(r *Room) {
	select {
	case s.enqRoom <- r:
	case <-s.closing:
	}
}

func (s *Server) RemoveRoom(r *Room) {
	select {
	case s.deqRoom <- r:
	case <-s.closing:
	}
}

func (s *Server) joinRoom(r *Room) {
	if nil != r {
		s.rooms[r.ID] = r
		go r.RunManager()
		log.Printf("room %s (%s) registered", r.ID, r.Name)
	}
}

// killRoom deregisters a room and signals its manager to exit. Only
// r.closing is closed; the ingress channels stay open so pumps still
// holding a reference never receive from a closed channel.
func (s *Server) killRoom(r *Room) {
	if nil != r {
		if _r, ok := s.rooms[r.ID]; ok && _r == r {
			delete(s.rooms, r.ID)
			close(r.closing)
		}
		log.Printf("room %s deregistered", r.ID)
	}
}

// LookupRoom returns the room with the given id, or nil.
func (s *Server) LookupRoom(id string) *Room {
	s.mutex.RLock()
	r := s.rooms[id]
	s.mutex.RUnlock()
	return r
}

// RoomIDs returns the ids of all registered rooms.
func (s *Server) RoomIDs() []string {
	s.mutex.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mutex.RUnlock()
	return ids
}

// Run manages server s
func (s *Server) Run() {
	defer func() {
		s.mutex.Lock()
		// kill all rooms
		for _, r := range s.rooms {
			s.killRoom(r)
		}
		s.mutex.Unlock()
	}()
	for {
		select {
		case r := <-s.enqRoom:
			s.mutex.Lock()
			s.joinRoom(r)
			s.mutex.Unlock()
		case r := <-s.deqRoom:
			s.mutex.Lock()
			s.killRoom(r)
			s.mutex.Unlock()
		case <-s.closing:
			return
		}
	}
}

// Shutdown stops the server's manager loop, safe to call multiple times.
func (s *Server) Shutdown() {
	s.closingGuard.Do(func() {
		close(s.closing)
	})
}

// broadcast fans a message out to every client in the room, NOT thread-safe
func (r *Room) broadcast(m *Message) {
	for _, c := range r.clients {
		c.SendMessage(m)
	}
}

func (r *Room) handleAddSong(m *Message) {
	req := m.Payload.(*AddSongRequest)
	if req.VideoID == "" {
		log.Printf("dropping addSong without video id from %s", m.Sender)
		return
	}
	t := Track{
		ID:      xid.New().String(),
		VideoID: req.VideoID,
		Title:   req.Title,
		Artist:  req.Artist,
		AddedBy: req.Username,
		AddedAt: time.Now().UTC(),
	}
	r.queue.Add(t)
	r.broadcast(&Message{
		Topic:   RoomTopic(r.ID, OpSongs),
		Payload: &t,
	})
}

func (r *Room) handleRemoveSong(m *Message) {
	req := m.Payload.(*RemoveSongRequest)
	if !r.queue.Remove(req.SongID) {
		// unknown id, tolerate silently
		return
	}
	r.broadcast(&Message{
		Topic:   RoomTopic(r.ID, OpSongRemoved),
		Payload: &SongRemovedMessage{SongID: req.SongID},
	})
}

// handleNextSong advances the authoritative queue and announces which
// track ended and which follows. An advance on an empty queue is dropped;
// this makes a duplicated request from a reconnecting leader harmless.
func (r *Room) handleNextSong(m *Message) {
	req := m.Payload.(*NextSongRequest)
	ended := r.queue.Head()
	if ended == nil {
		log.Printf("room %s: nextSong requested on empty queue, ignored", r.ID)
		return
	}
	endedID := ended.ID
	next := r.queue.Advance()
	nextID := ""
	if next != nil {
		nextID = next.ID
	}
	r.broadcast(&Message{
		Topic: RoomTopic(r.ID, OpNextSong),
		Payload: &NextSongMessage{
			EndedSongID: endedID,
			NextSongID:  nextID,
			TriggeredBy: req.Username,
		},
	})
}

func (r *Room) joinClient(c RoomClient) {
	if nil != c {
		r.clients[c.GetID()] = c
		if c.GetRole() == roleLeader {
			r.leaders[c.GetID()] = c
		}
	}
}

// killClient removes a client from room r, NOT thread-safe
func (r *Room) killClient(c RoomClient) {
	if nil != c {
		if _c, ok := r.clients[c.GetID()]; ok && (_c == c) {
			log.Println("removing client", c.GetRemoteAddr(), "cid:", c.GetID())
			delete(r.clients, c.GetID())
			delete(r.leaders, c.GetID())
			c.Finalise()
		}
	}
}

// RunManager manages room r
func (r *Room) RunManager() {

	shutdownTimer := time.NewTimer(DefaultLeaderlessTimeout)
	defer func() {
		shutdownTimer.Stop()
		for _, c := range r.clients {
			r.killClient(c)
		}
		// Run may already be gone when the whole server shuts down
		select {
		case r.server.deqRoom <- r:
		case <-r.server.closing:
		}
	}()
	for {
		select {
		case m := <-r.recvQueue:
			r.dispatch(m)
		case c := <-r.enqClient:
			r.joinClient(c)
			c.SendMessage(&Message{
				Topic: RoomTopic(r.ID, OpHello),
				Payload: &HelloMessage{
					Role:     c.GetRole().String(),
					RoomName: r.Name,
					Playlist: r.queue.Tracks(),
				},
			})
			if c.GetRole() == roleLeader && len(r.leaders) == 1 {
				if !shutdownTimer.Stop() {
					<-shutdownTimer.C
				}
			}
		case c := <-r.deqClient:
			r.killClient(c)
			if c.GetRole() == roleLeader && len(r.leaders) == 0 {
				shutdownTimer.Reset(DefaultLeaderlessTimeout)
			}
		case rsp := <-r.snapshotReq:
			rsp <- r.queue.Tracks()
		case <-shutdownTimer.C:
			return
		case <-r.closing:
			return
		}
	}
}

// enqueueMessage hands a client message to the room manager, giving up
// once the room is gone. Safe for any goroutine.
func (r *Room) enqueueMessage(m *Message) {
	select {
	case r.recvQueue <- m:
	case <-r.closing:
	}
}

// dropClient reports a disconnected client to the room manager, giving
// up once the room is gone. Safe for any goroutine.
func (r *Room) dropClient(c RoomClient) {
	select {
	case r.deqClient <- c:
	case <-r.closing:
	}
}

// dispatch routes an inbound /app message, NOT thread-safe
func (r *Room) dispatch(m *Message) {
	_, op, err := SplitTopic(m.Topic)
	if err != nil {
		return
	}
	switch op {
	case OpAddSong:
		r.handleAddSong(m)
	case OpRemoveSong:
		r.handleRemoveSong(m)
	case OpPlaybackState:
		// leader authority is checked at the connection; relay verbatim
		r.broadcast(&Message{
			Topic:   RoomTopic(r.ID, OpPlaybackState),
			Payload: m.Payload,
		})
	case OpRequestNextSong:
		r.handleNextSong(m)
	default:
		// silently drop the message
	}
}

// Playlist returns a snapshot of the room's queue, safe for any goroutine.
func (r *Room) Playlist() []Track {
	rsp := make(chan []Track, 1)
	select {
	case r.snapshotReq <- rsp:
		return <-rsp
	case <-r.closing:
		return nil
	}
}

// NewRoom creates a room with given id and server with no clients
func NewRoom(id string, name string, server *Server, lKey string, fKey string) *Room {
	return &Room{
		ID:          id,
		Name:        name,
		clients:     make(map[string]RoomClient),
		leaders:     make(map[string]RoomClient),
		queue:       NewQueue(nil),
		recvQueue:   make(chan *Message, roomMessageQueueSize),
		enqClient:   make(chan RoomClient),
		deqClient:   make(chan RoomClient),
		snapshotReq: make(chan chan []Track),
		closing:     make(chan bool),
		leaderKey:   lKey,
		followerKey: fKey,
		server:      server,
	}
}

// NewRoomWithRandomKeys is a helper function to create a new room with random keys
func NewRoomWithRandomKeys(id string, name string, server *Server) (*Room, string, string, error) {
	lKey, e1 := GenerateKey(keyLength)
	fKey, e2 := GenerateKey(keyLength)
	if e1 != nil {
		return nil, "", "", e1
	}
	if e2 != nil {
		return nil, "", "", e2
	}
	return NewRoom(id, name, server, lKey, fKey), lKey, fKey, nil
}

// CheckLeaderKey verifies key with the room's leader key
func (r *Room) CheckLeaderKey(key string) bool {
	return key == r.leaderKey
}

// CheckFollowerKey verifies key with the room's follower key
func (r *Room) CheckFollowerKey(key string) bool {
	return key == r.followerKey
}

// NewClientConn creates a client websocket connection wrapper
func NewClientConn(id string, username string, room *Room, conn *websocket.Conn, role clientRole) *ClientConn {
	return &ClientConn{
		ID:        id,
		username:  username,
		conn:      conn,
		recvQueue: make(chan *Message, clientRecvQueueSize),
		sendQueue: make(chan *Message, clientSendQueueSize),
		closing:   make(chan bool),
		role:      role,
		room:      room,
	}
}

// the goroutine that runs this function reads from c.conn
func (c *ClientConn) HandleWSClientRecv() {
	defer func() {
		close(c.recvQueue)
		c.room.dropClient(c)
	}()
	for {
		select {
		case <-c.closing:
			return
		default:
			_, m, err := c.conn.ReadMessage()
			if nil != err {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("Error unexpected closure: %v", err)
				}
				return
			}
			var msg Message
			err = Deserialise(m, &msg)
			if nil != err {
				log.Println("Invalid message:", string(m))
				continue
			}
			c.recvQueue <- &msg
		}
	}
}

// the goroutine that runs this function writes to c.conn
func (c *ClientConn) HandleWSClientSend() {
	defer func() {
		c.conn.Close()
		c.room.dropClient(c)
	}()
	for {
		select {
		case msg, ok := <-c.sendQueue:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			b, _ := msg.Serialise()
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			err := c.conn.WriteMessage(websocket.TextMessage, b)
			if err != nil {
				return
			}
		case <-c.closing:
			return
		}
	}
}

// the goroutine that runs this function controls other mutable states in c
func (c *ClientConn) HandleRoomClient() {
	defer func() {
		c.room.dropClient(c)
	}()
	for {
		select {
		case m, ok := <-c.recvQueue:
			if !ok {
				return
			}

			m.Sender = c.GetID()

			rid, op, err := SplitTopic(m.Topic)
			if err != nil || rid != c.room.ID {
				// cross-room traffic on this connection, drop it
				continue
			}
			switch op {
			case OpPlaybackState, OpRequestNextSong:
				if c.GetRole() == roleLeader {
					c.room.enqueueMessage(m)
				} else {
					// otherwise we silently drop it
					log.Println("non leader attempted to drive playback")
				}
			case OpAddSong, OpRemoveSong:
				c.room.enqueueMessage(m)
			default:
				// silently drop the message
			}
		case <-c.closing:
			return
		}
	}
}

type ErrClientConnect int

const (
	ErrClientConnectBadRoomID ErrClientConnect = iota
	ErrClientConnectBadKey
)

func (e ErrClientConnect) Error() string {
	switch e {
	case ErrClientConnectBadRoomID:
		return ErrInvalidRoomID
	case ErrClientConnectBadKey:
		return ErrInvalidKey
	default:
		return "Unknown connect error"
	}
}

func checkValidClient(s *Server, roomid string, key string) (*Room, clientRole, error) {
	var room *Room

	if "" != roomid {
		room = s.LookupRoom(roomid)
	}

	if nil == room {
		return nil, roleUnauthorised, ErrClientConnectBadRoomID
	}

	role := roleUnauthorised
	if room.CheckLeaderKey(key) {
		role = roleLeader
	} else if room.CheckFollowerKey(key) {
		role = roleFollower
	}

	if role == roleUnauthorised {
		return nil, roleUnauthorised, ErrClientConnectBadKey
	}

	return room, role, nil
}

func handleWSClient(s *Server, w http.ResponseWriter, req *http.Request) {

	// parse query string and check if roomid is valid
	q := req.URL.Query()
	roomid := q.Get("rid")
	key := q.Get("key")
	username := q.Get("user")

	room, role, err := checkValidClient(s, roomid, key)

	if err != nil {
		log.Printf("client from %v fails to connect: %v", req.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println(err)
		return
	}

	if doCheckSubprotocol && conn.Subprotocol() != WebsocketSubprotocolMagicV1 {
		conn.WriteMessage(websocket.CloseMessage, []byte("unsupported subprotocol version"))
		conn.Close()
		return
	}

	cid := xid.New().String()
	client := NewClientConn(cid, username, room, conn, role)

	go client.HandleRoomClient()
	go client.HandleWSClientSend()
	go client.HandleWSClientRecv()

	select {
	case room.enqClient <- client:
	case <-room.closing:
		// the room died between lookup and join
		client.Finalise()
		conn.Close()
		return
	}
	log.Printf("%s client %s (%s) from %s joined room %s", role, cid, username, conn.RemoteAddr(), roomid)
}

// GetRoomWSHandleFunc returns a handle function for the server
func GetRoomWSHandleFunc(server *Server) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		handleWSClient(server, w, r)
	}
}
