package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"make_move","game":"gomoku","data":{"room_id":"ab12cd34","row":7,"col":7}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeMakeMove, in.Type)
	assert.Equal(t, "gomoku", in.Game)
	assert.JSONEq(t, `{"room_id":"ab12cd34","row":7,"col":7}`, string(in.Data))

	_, err = DecodeInbound([]byte(`not json`))
	r, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidInput, r.Code)

	_, err = DecodeInbound([]byte(`{"data":{}}`))
	r, ok = AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidInput, r.Code)
}

func TestDecode(t *testing.T) {
	type movePayload struct {
		RoomID string `json:"room_id" validate:"required,max=64,roomid"`
		Row    *int   `json:"row" validate:"required,min=0,max=14"`
	}

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "valid", data: `{"room_id":"ab12-cd34","row":0}`},
		{name: "missing room", data: `{"row":3}`, wantErr: "room_id is required"},
		{name: "bad room id", data: `{"room_id":"../etc","row":3}`, wantErr: "room_id must contain only letters, digits and dashes"},
		{name: "row out of range", data: `{"room_id":"abc","row":15}`, wantErr: "row must be at most 14"},
		{name: "negative row", data: `{"room_id":"abc","row":-1}`, wantErr: "row must be at least 0"},
		{name: "missing row", data: `{"room_id":"abc"}`, wantErr: "row is required"},
		{name: "wrong shape", data: `{"room_id":"abc","row":"seven"}`, wantErr: "malformed payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p movePayload
			err := Decode(json.RawMessage(tt.data), &p)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			r, ok := AsRejection(err)
			require.True(t, ok)
			assert.Equal(t, CodeInvalidInput, r.Code)
			assert.Equal(t, tt.wantErr, r.Message)
		})
	}
}

func TestValidRoomID(t *testing.T) {
	assert.True(t, ValidRoomID("ab12cd34"))
	assert.True(t, ValidRoomID("room-1"))
	assert.False(t, ValidRoomID(""))
	assert.False(t, ValidRoomID("room 1"))
	assert.False(t, ValidRoomID("<script>"))
}

func TestEventEncode(t *testing.T) {
	data, err := ErrorEvent(Reject(CodeNotYourTurn, "wait for seat %d", 2)).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0","type":"error","data":{"code":"not_your_turn","message":"wait for seat 2"}}`, string(data))
}

func TestAsRejection_InternalFallback(t *testing.T) {
	r, ok := AsRejection(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, CodeInternal, r.Code)
}
