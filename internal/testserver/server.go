// Package testserver is an in-memory chat backend speaking the same REST
// and WebSocket protocol as the production server. Tests and local demos
// run the engine against it.
package testserver

import (
	"fmt"
	stdhttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/auth"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

// Options configures the fake backend.
type Options struct {
	JWT *auth.JWTConfig
	// FrameLimit caps inbound socket frames per minute; 0 disables it.
	FrameLimit int
	// EchoToSender pushes new_message with temp_id back to the sender too.
	EchoToSender bool
}

// Server holds users' messages and live sockets.
type Server struct {
	opts    Options
	log     *zerolog.Logger
	handler stdhttp.Handler

	mu       sync.Mutex
	nextID   int
	messages []proto.MessageRecord
	uploads  map[string]int
	sockets  map[string][]*socket
	faults   map[string][]int
	requests map[string]int
	received []Frame
}

// Frame is an inbound socket frame recorded after authentication.
type Frame struct {
	UserID string
	Type   string
	Body   map[string]any
}

// New builds a server. A nil JWT config gets a throwaway secret.
func New(opts Options, logger *zerolog.Logger) *Server {
	if opts.JWT == nil {
		opts.JWT = &auth.JWTConfig{Secret: []byte("testserver-secret"), Issuer: "testserver", TTL: time.Hour}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{
		opts:     opts,
		log:      logger,
		uploads:  make(map[string]int),
		sockets:  make(map[string][]*socket),
		faults:   make(map[string][]int),
		requests: make(map[string]int),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.String(stdhttp.StatusOK, "ok") })

	api := r.Group("/api", s.faultMiddleware(), AuthMiddleware(opts.JWT, logger))
	api.POST("/send-message", s.sendMessage)
	api.POST("/messages", s.history)
	api.POST("/upload-file", s.uploadFile)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", &wsHandler{srv: s})
	mux.Handle("/", r)
	s.handler = mux
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// Token mints a session token accepted by this server.
func (s *Server) Token(userID, username string) (string, error) {
	return auth.GenerateToken(s.opts.JWT, userID, username)
}

// FailNext makes the next requests to path answer with the given statuses,
// one per request. Status 200 answers success:false.
func (s *Server) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = append(s.faults[path], statuses...)
}

// Requests counts requests that reached path, injected failures included.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// Seed stores a message as if it had been sent earlier and returns its id.
func (s *Server) Seed(rec proto.MessageRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(rec).Key()
}

// Messages returns a copy of everything stored.
func (s *Server) Messages() []proto.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.MessageRecord, len(s.messages))
	copy(out, s.messages)
	return out
}

// Push writes v to every socket of userID and reports how many got it.
func (s *Server) Push(userID string, v any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked(userID, v)
}

// Received returns recorded inbound frames of the given type ("" for all).
func (s *Server) Received(typ string) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Frame
	for _, f := range s.received {
		if typ == "" || f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// Online reports whether userID has an authenticated socket.
func (s *Server) Online(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets[userID]) > 0
}

// Kick closes every socket of userID.
func (s *Server) Kick(userID string) {
	s.mu.Lock()
	socks := append([]*socket(nil), s.sockets[userID]...)
	s.mu.Unlock()
	for _, sock := range socks {
		sock.kick()
	}
}

func (s *Server) storeLocked(rec proto.MessageRecord) proto.MessageRecord {
	s.nextID++
	if rec.ID == "" {
		rec.ID = proto.FlexString(strconv.Itoa(s.nextID))
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = proto.FlexString(time.Now().UTC().Format(time.RFC3339))
	}
	if rec.MessageType == "" {
		rec.MessageType = "text"
	}
	if rec.Status == "" {
		rec.Status = "sent"
	}
	s.messages = append(s.messages, rec)
	return rec
}

func (s *Server) findLocked(id string) (int, bool) {
	for i, m := range s.messages {
		if m.Key() == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Server) pushLocked(userID string, v any) int {
	n := 0
	for _, sock := range s.sockets[userID] {
		if sock.enqueue(v) {
			n++
		}
	}
	return n
}

func (s *Server) register(sock *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[sock.userID] = append(s.sockets[sock.userID], sock)
}

func (s *Server) unregister(sock *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sockets[sock.userID]
	for i, other := range list {
		if other == sock {
			s.sockets[sock.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.sockets[sock.userID]) == 0 {
		delete(s.sockets, sock.userID)
	}
}

func (s *Server) record(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, f)
}

func uploadPath(id int, name string) string {
	return fmt.Sprintf("/uploads/%d_%s", id, name)
}
