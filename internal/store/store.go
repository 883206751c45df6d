package store

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type Room struct {
	ID        string
	Code      string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'python',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRoom allocates a short room ID and inserts the record. The ID is the
// first 8 characters of a v4 UUID, short enough to share as a room link.
func (s *Store) CreateRoom(language string) (*Room, error) {
	if language == "" {
		language = "python"
	}

	id := uuid.NewString()[:8]
	_, err := s.db.Exec(
		"INSERT INTO rooms (id, code, language) VALUES (?, '', ?)",
		id, language,
	)
	if err != nil {
		return nil, err
	}
	return s.GetRoom(id)
}

func (s *Store) GetRoom(id string) (*Room, error) {
	row := s.db.QueryRow(
		"SELECT id, code, language, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Code, &room.Language, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) RoomExists(id string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM rooms WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

// UpdateCode overwrites the stored buffer for a room. Updating a room that
// was deleted from the store is a silent no-op, matching UPDATE semantics.
func (s *Store) UpdateCode(id, code string) error {
	_, err := s.db.Exec(
		"UPDATE rooms SET code = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		code, id,
	)
	return err
}

func (s *Store) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	return stats, nil
}
