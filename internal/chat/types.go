// Package chat stores room messages, throttles posters and runs the AI
// moderator.
package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidRoom  = errors.New("unknown chat room")
	ErrRoomReadOnly = errors.New("chat room is not open for posting")
	ErrRateLimited  = errors.New("slow down: too many messages")
	ErrEmptyMessage = errors.New("message is empty")
	ErrTooLong      = errors.New("message exceeds 1000 characters")
)

// GeneralRoom is always open.
const GeneralRoom = "general"

// MaxLength is the longest accepted message, in characters.
const MaxLength = 1000

// Message is one chat line.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic returns the realtime topic for a room.
func Topic(room string) string { return "chat:" + room }

// EventRoomID returns the event ID of an "event:<id>" room.
func EventRoomID(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, "event:")
	return id, ok && id != ""
}
