package broadcast

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

func newTestHub(t *testing.T) (*Service, *httptest.Server) {
	s := NewService(context.Background())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		srv.Close()
	})
	return s, srv
}

func dialObserver(t *testing.T, srv *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		require.NoError(t, resp.Body.Close())
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *api.BroadcastMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg := &api.BroadcastMessage{}
	require.NoError(t, conn.ReadJSON(msg))
	return msg
}

// expectSilence asserts no frame arrives within a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	msg := &api.BroadcastMessage{}
	err := conn.ReadJSON(msg)
	if err == nil {
		t.Fatalf("expected no message, received type %q", msg.Type)
	}
}

func authenticate(t *testing.T, s *Service, conn *websocket.Conn, userID string, wantSessions int) {
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": api.MsgAuthenticate,
		"data": map[string]string{"userId": userID},
	}))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.lock.RLock()
		n := len(s.byUser[userID])
		s.lock.RUnlock()
		if n >= wantSessions {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session did not authenticate as %q", userID)
}

func TestHandler_SendsWelcome(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)

	msg := readFrame(t, conn)
	require.Equal(t, api.MsgWelcome, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.Equal(t, true, ok)
	clientID, ok := data["clientId"].(string)
	require.Equal(t, true, ok)
	require.NotEqual(t, "", clientID)
	assert.Equal(t, false, msg.Timestamp.IsZero())
	assert.Equal(t, 1, s.SessionCount())
}

func TestBroadcast_RequiresAuthentication(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn) // welcome

	s.SendValidatorUpdate("user-1", "validator-1", "unhealthy", nil)
	expectSilence(t, conn)
}

func TestBroadcast_ScopedToUser(t *testing.T) {
	s, srv := newTestHub(t)
	owner := dialObserver(t, srv)
	stranger := dialObserver(t, srv)
	readFrame(t, owner)
	readFrame(t, stranger)

	authenticate(t, s, owner, "user-1", 1)
	authenticate(t, s, stranger, "user-2", 1)

	s.SendValidatorUpdate("user-1", "validator-1", "unhealthy", map[string]interface{}{"alertId": "alert-1"})

	msg := readFrame(t, owner)
	require.Equal(t, api.MsgValidatorUpdate, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.Equal(t, true, ok)
	assert.Equal(t, "validator-1", data["validatorId"])
	assert.Equal(t, "unhealthy", data["status"])

	expectSilence(t, stranger)
}

func TestBroadcast_AllSessionsOfUserReceive(t *testing.T) {
	s, srv := newTestHub(t)
	first := dialObserver(t, srv)
	second := dialObserver(t, srv)
	readFrame(t, first)
	readFrame(t, second)

	authenticate(t, s, first, "user-1", 1)
	authenticate(t, s, second, "user-1", 2)

	s.SendAgentUpdate("user-1", &api.AgentUpdate{
		AgentID: "agent-1", ValidatorID: "validator-1", Status: "active", LastSeen: time.Now().UTC(),
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readFrame(t, conn)
		require.Equal(t, api.MsgAgentUpdate, msg.Type)
	}
}

func TestAuthenticate_RebindMovesScope(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)

	authenticate(t, s, conn, "user-1", 1)
	authenticate(t, s, conn, "user-2", 1)

	s.SendValidatorUpdate("user-1", "validator-1", "healthy", nil)
	expectSilence(t, conn)

	s.SendValidatorUpdate("user-2", "validator-2", "healthy", nil)
	msg := readFrame(t, conn)
	data, ok := msg.Data.(map[string]interface{})
	require.Equal(t, true, ok)
	assert.Equal(t, "validator-2", data["validatorId"])
}

func TestSendAlertNotification(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)
	authenticate(t, s, conn, "user-1", 1)

	s.SendAlertNotification("user-1", &types.Alert{
		ID: "alert-1", ValidatorID: "validator-1", UserID: "user-1",
		Status: types.AlertPending, Message: "Validator v is unhealthy.",
	})

	msg := readFrame(t, conn)
	require.Equal(t, api.MsgAlert, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.Equal(t, true, ok)
	assert.Equal(t, "alert-1", data["id"])
	assert.Equal(t, string(types.AlertPending), data["status"])
}

func TestSendConsensusUpdate_StampsValidator(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)
	authenticate(t, s, conn, "user-1", 1)

	s.SendConsensusUpdate("user-1", "validator-1", &api.ConsensusUpdate{
		TotalReports:     2,
		UnhealthyReports: 2,
		Threshold:        2,
		ConsensusReached: true,
	})

	msg := readFrame(t, conn)
	require.Equal(t, api.MsgConsensusUpdate, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.Equal(t, true, ok)
	assert.Equal(t, "validator-1", data["validatorId"])
	assert.Equal(t, true, data["consensusReached"])
}

func TestReadPump_IgnoresUnknownFrames(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)

	// Garbage and unknown types must not break the session.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	authenticate(t, s, conn, "user-1", 1)

	s.SendValidatorUpdate("user-1", "validator-1", "healthy", nil)
	msg := readFrame(t, conn)
	assert.Equal(t, api.MsgValidatorUpdate, msg.Type)
}

func TestDisconnect_Unregisters(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)
	require.Equal(t, 1, s.SessionCount())

	require.NoError(t, conn.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.SessionCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session was not unregistered after disconnect")
}

func TestStop_ClosesSessions(t *testing.T) {
	s, srv := newTestHub(t)
	conn := dialObserver(t, srv)
	readFrame(t, conn)

	require.NoError(t, s.Stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
