package game

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

type fakeState struct{}

func (fakeState) Game() room.GameType { return room.Racing }

func TestTranslate(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{room.ErrRoomNotFound, message.CodeRoomNotFound},
		{fmt.Errorf("join: %w", room.ErrRoomFull), message.CodeRoomFull},
		{room.ErrSessionBusy, message.CodeAlreadyInRoom},
		{room.ErrSpectating, message.CodeAlreadyInRoom},
		{room.ErrSeated, message.CodeAlreadyInRoom},
		{room.ErrUnknownGame, message.CodeUnknownGame},
		{message.Reject(message.CodeNotYourTurn, "wait"), message.CodeNotYourTurn},
	}
	for _, tc := range cases {
		rej, ok := message.AsRejection(Translate(tc.err))
		require.True(t, ok, tc.err.Error())
		assert.Equal(t, tc.code, rej.Code)
	}

	assert.NoError(t, Translate(nil))
	other := errors.New("disk full")
	assert.Same(t, other, Translate(other))
}

func TestOutboxRecipients(t *testing.T) {
	reg := room.NewRegistry()
	snap, err := reg.Create(room.Racing, fakeState{})
	require.NoError(t, err)
	_, err = reg.AddPlayer(snap.ID, "p1")
	require.NoError(t, err)
	_, err = reg.AddPlayer(snap.ID, "p2")
	require.NoError(t, err)
	require.NoError(t, reg.AddSpectator(snap.ID, "watcher"))

	out := &Outbox{}
	require.NoError(t, reg.With(snap.ID, func(r *room.Room) error {
		out.Room(r, "all", nil)
		out.Others(r, "p1", "others", nil)
		out.Spectators(r, "watchers", nil)
		out.Reject("p2", message.Reject(message.CodeNotYourTurn, "wait"))
		// later membership changes do not touch queued recipients
		r.RemoveSpectator("watcher")
		return nil
	}))

	assert.Equal(t, []string{"all"}, out.Events("p1"))
	assert.Equal(t, []string{"all", "others", "error"}, out.Events("p2"))
	assert.Equal(t, []string{"all", "others", "watchers"}, out.Events("watcher"))

	ev, ok := out.Last("p2", message.EventError)
	require.True(t, ok)
	assert.Equal(t, message.CodeNotYourTurn, ev.Data.(message.ErrorData).Code)

	out.Closed(snap.ID)
	out.Finished(Finish{Game: room.Racing, RoomID: snap.ID})
	assert.Equal(t, []string{snap.ID}, out.ClosedRooms())
	assert.Len(t, out.Finishes(), 1)

	out.Reset()
	assert.Empty(t, out.Deliveries())
	assert.Empty(t, out.ClosedRooms())
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Lookup(room.Gomoku)
	assert.False(t, ok)
}
