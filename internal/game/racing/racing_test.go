package racing

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*game.Table, *room.Registry, string) {
	t.Helper()
	rooms := room.NewRegistry()
	comments := chat.NewService(chat.Config{}, chat.NewMemoryLimiter(3, 10*time.Second, nil), nil, nil)
	tbl := game.NewTable(New(), rooms, comments, nil)

	out := &game.Outbox{}
	require.NoError(t, tbl.Create("a", out))
	ev, _ := out.Last("a", message.EventRoomCreated)
	id := ev.Data.(map[string]interface{})["room_id"].(string)

	out.Reset()
	require.NoError(t, tbl.Join("b", id, false, out))
	assert.Contains(t, out.Events("a"), message.EventGameStart)
	return tbl, rooms, id
}

func score(v int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"room_id":"r","score":%d}`, v))
}

func TestScoreUpdates(t *testing.T) {
	tbl, _, id := setup(t)

	out := &game.Outbox{}
	require.NoError(t, tbl.Handle("a", id, message.TypeUpdateScore, score(120), out))
	ev, ok := out.Last("b", message.EventScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"position": 0, "score": 120}, ev.Data)

	err := tbl.Handle("a", id, message.TypeUpdateScore, score(-1), out)
	rej, _ := message.AsRejection(err)
	assert.Equal(t, message.CodeInvalidInput, rej.Code)

	err = tbl.Handle("a", id, message.TypeUpdateScore, score(1000001), out)
	rej, _ = message.AsRejection(err)
	assert.Equal(t, message.CodeInvalidInput, rej.Code)
}

func TestRaceFinishesWhenBothDeclare(t *testing.T) {
	tbl, rooms, id := setup(t)

	out := &game.Outbox{}
	require.NoError(t, tbl.Handle("a", id, message.TypeGameOver, score(300), out))
	assert.Contains(t, out.Events("b"), message.EventPlayerFinished)
	assert.NotContains(t, out.Events("b"), message.EventGameOver)
	assert.Empty(t, out.Finishes())

	err := tbl.Handle("a", id, message.TypeUpdateScore, score(310), out)
	rej, _ := message.AsRejection(err)
	assert.Equal(t, message.CodeWrongPhase, rej.Code)

	out.Reset()
	require.NoError(t, tbl.Handle("b", id, message.TypeGameOver, score(250), out))
	ev, ok := out.Last("a", message.EventGameOver)
	require.True(t, ok)
	assert.Equal(t, []int{300, 250}, ev.Data.(map[string]interface{})["scores"])

	require.Len(t, out.Finishes(), 1)
	assert.Empty(t, out.Finishes()[0].Winner)
	snap, _ := rooms.Get(id)
	assert.Equal(t, room.StatusFinished, snap.Status)
}

func TestRejoinReplaysScores(t *testing.T) {
	tbl, _, id := setup(t)
	out := &game.Outbox{}
	require.NoError(t, tbl.Handle("b", id, message.TypeUpdateScore, score(42), out))

	out.Reset()
	require.NoError(t, tbl.Rejoin("a", id, out))
	assert.Equal(t, []string{
		message.EventRoomJoined,
		message.EventGameStart,
		message.EventScoreUpdate,
		message.EventScoreUpdate,
	}, out.Events("a"))
	ev, _ := out.Last("a", message.EventScoreUpdate)
	assert.Equal(t, 42, ev.Data.(map[string]interface{})["score"])
}
