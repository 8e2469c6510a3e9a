package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/realtime"
)

// Tracked lists the topic/kind pairs worth keeping. A "*" kind matches
// every kind of the topic.
var Tracked = []string{
	"events/*",
	"movies/imported",
	"news/published",
	"users/progress",
}

// Recorder is a realtime.Publisher that forwards every change and also
// persists the tracked ones.
type Recorder struct {
	store   *Store
	next    realtime.Publisher
	tracked map[string]bool
	timeout time.Duration
}

// NewRecorder wraps next. A nil next only records.
func NewRecorder(store *Store, next realtime.Publisher) *Recorder {
	if next == nil {
		next = realtime.Discard
	}
	tracked := make(map[string]bool, len(Tracked))
	for _, t := range Tracked {
		tracked[t] = true
	}
	return &Recorder{store: store, next: next, tracked: tracked, timeout: 5 * time.Second}
}

// Vote tallies change with every vote and are not worth a trail entry.
var skipped = map[string]bool{"events/tally": true}

func (r *Recorder) tracks(topic, kind string) bool {
	key := topic + "/" + kind
	if skipped[key] {
		return false
	}
	return r.tracked[key] || r.tracked[topic+"/*"]
}

func (r *Recorder) Publish(topic, kind string, data interface{}) {
	r.next.Publish(topic, kind, data)
	if !r.tracks(topic, kind) {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		logging.Warn().Err(err).Str("topic", topic).Str("kind", kind).Msg("audit payload not encodable")
		payload = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	entry := Entry{Topic: topic, Kind: kind, Summary: summarize(topic, kind, payload), Payload: payload}
	if err := r.store.Log(ctx, entry); err != nil {
		logging.Error().Err(err).Str("topic", topic).Str("kind", kind).Msg("recording audit entry")
	}
}

// summarize builds a one-line description from common payload fields.
func summarize(topic, kind string, payload []byte) string {
	var fields struct {
		Title    string `json:"title"`
		Phase    string `json:"phase"`
		UserID   string `json:"user_id"`
		Level    int    `json:"level"`
		XP       int    `json:"xp_gained"`
		Missions []struct {
			Title string `json:"title"`
		} `json:"missions"`
	}
	_ = json.Unmarshal(payload, &fields)

	switch {
	case topic == "users" && fields.UserID != "":
		names := make([]string, len(fields.Missions))
		for i, m := range fields.Missions {
			names[i] = m.Title
		}
		return fmt.Sprintf("user %s gained %d XP (level %d): %s", fields.UserID, fields.XP, fields.Level, strings.Join(names, ", "))
	case fields.Title != "" && fields.Phase != "":
		return fmt.Sprintf("%s %s: %q is now %s", topic, kind, fields.Title, fields.Phase)
	case fields.Title != "":
		return fmt.Sprintf("%s %s: %q", topic, kind, fields.Title)
	default:
		return topic + " " + kind
	}
}
