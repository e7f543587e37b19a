package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "join as overlay",
			raw:  `{"type":"join","sessionId":"ABC123","teamSide":"overlay"}`,
			want: Join{SessionID: "ABC123", Role: RoleOverlay},
		},
		{
			name: "ready",
			raw:  `{"type":"ready","sessionId":"ABC123","teamSide":"red","payload":{"ready":true}}`,
			want: Ready{SessionID: "ABC123", Team: engine.TeamRed, Ready: true},
		},
		{
			name: "ban",
			raw:  `{"type":"ban","sessionId":"ABC123","teamSide":"blue","payload":{"championId":64}}`,
			want: Action{SessionID: "ABC123", Team: engine.TeamBlue, Action: engine.ActionBan, ChampionID: 64},
		},
		{
			name: "pick",
			raw:  `{"type":"pick","sessionId":"ABC123","teamSide":"red","payload":{"championId":157}}`,
			want: Action{SessionID: "ABC123", Team: engine.TeamRed, Action: engine.ActionPick, ChampionID: 157},
		},
		{
			name: "hover null champion",
			raw:  `{"type":"hover","sessionId":"ABC123","teamSide":"blue","payload":{"championId":null,"actionType":"pick"}}`,
			want: Hover{SessionID: "ABC123", Team: engine.TeamBlue, Action: engine.ActionPick},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{name: "not json", raw: `{"type":`, code: CodeMalformed},
		{name: "no session", raw: `{"type":"join","teamSide":"blue"}`, code: CodeMalformed},
		{name: "unknown side", raw: `{"type":"join","sessionId":"x","teamSide":"green"}`, code: CodeRoleMismatch},
		{name: "unknown type", raw: `{"type":"dance","sessionId":"x","teamSide":"blue"}`, code: CodeUnknownType},
		{name: "spectator acting", raw: `{"type":"ban","sessionId":"x","teamSide":"spectator","payload":{"championId":1}}`, code: CodeRoleMismatch},
		{name: "ready without flag", raw: `{"type":"ready","sessionId":"x","teamSide":"blue","payload":{}}`, code: CodeMalformed},
		{name: "pick without payload", raw: `{"type":"pick","sessionId":"x","teamSide":"blue"}`, code: CodeMalformed},
		{name: "pick zero champion", raw: `{"type":"pick","sessionId":"x","teamSide":"blue","payload":{"championId":0}}`, code: CodeMalformed},
		{name: "hover bad action", raw: `{"type":"hover","sessionId":"x","teamSide":"blue","payload":{"championId":3,"actionType":"finalize"}}`, code: CodeMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			var perr *Error
			require.True(t, errors.As(err, &perr), "want *Error, got %v", err)
			assert.Equal(t, tc.code, perr.Code)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	msg := ErrorMessage(fmt.Errorf("%w: 64", engine.ErrChampionUnavailable))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"champion unavailable: 64","code":"CHAMPION_UNAVAILABLE"}}`, string(data))

	msg = ErrorMessage(Errorf(CodeNotJoined, "join first"))
	assert.Equal(t, ErrorPayload{Message: "join first", Code: CodeNotJoined}, msg.Payload)
}

func TestGameStateFrame(t *testing.T) {
	s := engine.NewState("ABC123", engine.DefaultRules(), []int{1, 2})
	data, err := json.Marshal(GameState(s))
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, TypeGameState, f.Type)

	var got engine.State
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	assert.Equal(t, "ABC123", got.SessionID)
	assert.Equal(t, engine.PhaseConfig, got.Phase)
	assert.Empty(t, got.Pool, "pool is not broadcast")
}
