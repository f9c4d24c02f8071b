// internal/hub/nats.go
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/logger"
)

// JetStream stream names.
const (
	StreamRooms    = "ROOMS"
	StreamGames    = "GAMES"
	StreamComments = "COMMENTS"
)

const (
	archiveConsumerPrefix = "ARCHIVE_"
	archiveFetchMax       = 200
	archiveFetchMaxWait   = 2 * time.Second
)

// ErrEventsDisabled is returned by Replay when the server runs without JetStream.
var ErrEventsDisabled = errors.New("jetstream not available")

// Events publishes room lifecycle, finished games and comments to JetStream. A nil *Events, or
// one without a JetStream context, silently drops everything.
type Events struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// NewEvents wraps an established connection. Either argument may be nil.
func NewEvents(nc *nats.Conn, js nats.JetStreamContext, log *logger.Logger) *Events {
	if log == nil {
		log = logger.NewNop()
	}
	return &Events{conn: nc, js: js, logger: log}
}

// ConnectEvents connects to url and prepares the streams. When NATS or JetStream is not
// reachable the returned Events is disabled and the error says why.
func ConnectEvents(url string, retention time.Duration, log *logger.Logger) (*Events, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url, nats.Name("gameroom"), nats.MaxReconnects(-1))
	if err != nil {
		return NewEvents(nil, nil, log), fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		return NewEvents(nc, nil, log), fmt.Errorf("jetstream context: %w", err)
	}
	ev := NewEvents(nc, js, log)
	if err := ev.EnsureStreams(retention); err != nil {
		return ev, err
	}
	log.Info("Successfully connected to JetStream")
	return ev, nil
}

// Enabled reports whether events reach JetStream.
func (e *Events) Enabled() bool {
	return e != nil && e.js != nil
}

// Connected reports the NATS connection state.
func (e *Events) Connected() bool {
	return e != nil && e.conn != nil && e.conn.Status() == nats.CONNECTED
}

// EnsureStreams creates or updates the three streams with the given retention.
func (e *Events) EnsureStreams(retention time.Duration) error {
	if !e.Enabled() {
		return ErrEventsDisabled
	}
	streams := []struct {
		Name     string
		Subjects []string
	}{
		{Name: StreamRooms, Subjects: []string{"rooms.>"}},
		{Name: StreamGames, Subjects: []string{"games.>"}},
		{Name: StreamComments, Subjects: []string{"comments.>"}},
	}
	var errs []error
	for _, s := range streams {
		streamConfig := &nats.StreamConfig{
			Name:     s.Name,
			Subjects: s.Subjects,
			Storage:  nats.FileStorage,
			MaxAge:   retention,
		}
		if _, err := e.js.StreamInfo(streamConfig.Name); err != nil {
			if _, err := e.js.AddStream(streamConfig); err != nil {
				errs = append(errs, fmt.Errorf("create stream %s: %w", s.Name, err))
				continue
			}
			e.logger.Infof("Created stream: %s", s.Name)
			continue
		}
		if _, err := e.js.UpdateStream(streamConfig); err != nil {
			errs = append(errs, fmt.Errorf("update stream %s: %w", s.Name, err))
			continue
		}
		e.logger.Infof("Updated stream: %s", s.Name)
	}
	return errors.Join(errs...)
}

// StreamInfo summarizes every stream for the health endpoint.
func (e *Events) StreamInfo() map[string]interface{} {
	if !e.Enabled() {
		return nil
	}
	info := make(map[string]interface{})
	for _, name := range []string{StreamRooms, StreamGames, StreamComments} {
		si, err := e.js.StreamInfo(name)
		if err != nil {
			info[name] = map[string]interface{}{"error": err.Error()}
			continue
		}
		info[name] = map[string]interface{}{
			"messages":  si.State.Msgs,
			"bytes":     si.State.Bytes,
			"subjects":  si.Config.Subjects,
			"retention": si.Config.MaxAge.String(),
		}
	}
	return info
}

// Close drains the connection.
func (e *Events) Close() {
	if e == nil || e.conn == nil {
		return
	}
	if err := e.conn.Drain(); err != nil {
		e.logger.Warnf("Error draining NATS connection: %v", err)
	}
}

func (e *Events) publish(subject string, v interface{}) {
	if !e.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Errorf("Failed to marshal %s event: %v", subject, err)
		return
	}
	if _, err := e.js.PublishAsync(subject, data); err != nil {
		e.logger.Errorf("Failed to publish %s to NATS: %v", subject, err)
	}
}

// PublishRoom publishes a room lifecycle change on rooms.<status>.<room>.
func (e *Events) PublishRoom(roomID, status string) {
	e.publish(fmt.Sprintf("rooms.%s.%s", status, roomID), map[string]interface{}{
		"room_id":   roomID,
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// GameEvent is the payload published for a finished game.
type GameEvent struct {
	Game           string          `json:"game_type"`
	RoomID         string          `json:"room_id"`
	Winner         string          `json:"winner"`
	Moves          json.RawMessage `json:"moves,omitempty"`
	PlayerCount    int             `json:"player_count"`
	SpectatorCount int             `json:"spectator_count"`
	Duration       int             `json:"duration"`
	Timestamp      int64           `json:"timestamp"`
}

// PublishGame publishes a finished game on games.<game>.<room>.
func (e *Events) PublishGame(f game.Finish) {
	e.publish(fmt.Sprintf("games.%s.%s", f.Game, f.RoomID), GameEvent{
		Game:           string(f.Game),
		RoomID:         f.RoomID,
		Winner:         f.Winner,
		Moves:          f.Moves,
		PlayerCount:    f.PlayerCount,
		SpectatorCount: f.SpectatorCount,
		Duration:       int(f.Duration / time.Second),
		Timestamp:      f.EndedAt.Unix(),
	})
}

// PublishComment publishes an accepted comment on comments.<room>.
func (e *Events) PublishComment(c chat.Comment) {
	e.publish("comments."+c.RoomID, c)
}

// Replay reads the archived comments of a room back from JetStream, oldest first. It creates a
// short lived consumer and removes it afterwards.
func (e *Events) Replay(roomID string) ([]chat.Comment, error) {
	if !e.Enabled() {
		return nil, ErrEventsDisabled
	}
	subject := "comments." + roomID
	consumerName := fmt.Sprintf("%s%s_%d", archiveConsumerPrefix, roomID, time.Now().UnixNano())

	_, err := e.js.AddConsumer(StreamComments, &nats.ConsumerConfig{
		Name:          consumerName,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: subject,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	sub, err := e.js.PullSubscribe(subject, consumerName, nats.Bind(StreamComments, consumerName))
	if err != nil {
		e.js.DeleteConsumer(StreamComments, consumerName) // Attempt cleanup
		return nil, fmt.Errorf("subscribe %s: %w", consumerName, err)
	}
	defer func() {
		if unsubErr := sub.Unsubscribe(); unsubErr != nil {
			e.logger.Warnf("Error unsubscribing archive reader %s: %v", consumerName, unsubErr)
		}
		if delErr := e.js.DeleteConsumer(StreamComments, consumerName); delErr != nil && !errors.Is(delErr, nats.ErrConsumerNotFound) {
			e.logger.Warnf("Error deleting archive consumer %s: %v", consumerName, delErr)
		}
	}()

	msgs, err := sub.Fetch(archiveFetchMax, nats.MaxWait(archiveFetchMaxWait))
	if err != nil && !errors.Is(err, nats.ErrTimeout) {
		return nil, fmt.Errorf("fetch archive of %s: %w", roomID, err)
	}

	comments := make([]chat.Comment, 0, len(msgs))
	for _, msg := range msgs {
		var c chat.Comment
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			e.logger.Errorf("Error unmarshaling archived comment: %v", err)
			continue
		}
		comments = append(comments, c)
		msg.Ack()
	}
	return comments, nil
}
