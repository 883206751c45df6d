package persist

import (
	"log"
	"sync"
	"time"

	"github.com/codepair/server/internal/store"
)

type Config struct {
	FlushInterval time.Duration
	QueueSize     int
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: 2 * time.Second,
		QueueSize:     1024,
	}
}

// Service writes room buffers to the store on its own schedule. Updates are
// coalesced per room between flushes (latest wins), so a fast typist costs
// one write per interval instead of one per keystroke.
type Service struct {
	store   *store.Store
	config  Config
	updates chan update
	stop    chan struct{}
	wg      sync.WaitGroup
}

type update struct {
	roomID string
	code   string
}

func New(s *store.Store, config Config) *Service {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultConfig().FlushInterval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	return &Service{
		store:   s,
		config:  config,
		updates: make(chan update, config.QueueSize),
		stop:    make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("Persistence writer started (flush interval: %v)", s.config.FlushInterval)
}

// Stop flushes anything still pending before returning.
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("Persistence writer stopped")
}

// RoomExists is the synchronous half of the boundary, called once per
// connection during the join handshake. A store error counts as not-found.
func (s *Service) RoomExists(roomID string) bool {
	ok, err := s.store.RoomExists(roomID)
	if err != nil {
		log.Printf("Room lookup failed for %s: %v", roomID, err)
		return false
	}
	return ok
}

// PersistCode queues the new buffer content without blocking the caller.
// When the queue is full the update is dropped; a later one supersedes it.
func (s *Service) PersistCode(roomID, code string) {
	select {
	case s.updates <- update{roomID: roomID, code: code}:
	default:
		log.Printf("Persistence queue full, dropping update for room %s", roomID)
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	pending := make(map[string]string)

	for {
		select {
		case u := <-s.updates:
			pending[u.roomID] = u.code
		case <-ticker.C:
			s.flush(pending)
		case <-s.stop:
			s.drain(pending)
			s.flush(pending)
			return
		}
	}
}

func (s *Service) drain(pending map[string]string) {
	for {
		select {
		case u := <-s.updates:
			pending[u.roomID] = u.code
		default:
			return
		}
	}
}

func (s *Service) flush(pending map[string]string) {
	for roomID, code := range pending {
		if err := s.store.UpdateCode(roomID, code); err != nil {
			log.Printf("Failed to persist room %s: %v", roomID, err)
		}
		delete(pending, roomID)
	}
}
