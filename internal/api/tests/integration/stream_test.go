package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/api/tests/testutils"
	"github.com/PxPatel/p2p-swap/internal/types"
)

func dialStream(t *testing.T, ts *testutils.TestServer, wallet string) *websocket.Conn {
	t.Helper()
	before := ts.Hub.Subscribers()

	conn, resp, err := websocket.DefaultDialer.Dial(ts.WebSocketURL("/trades/stream?wallet="+wallet), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return ts.Hub.Subscribers() > before },
		2*time.Second, 10*time.Millisecond, "stream never subscribed")
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.TradeEventMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.TradeEventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// TestTradeStreamDeliversLifecycle follows one trade over the websocket
func TestTradeStreamDeliversLifecycle(t *testing.T) {
	ts := testutils.NewTestServer(t)
	bobStream := dialStream(t, ts, bob)
	carolStream := dialStream(t, ts, carol)

	trade := ts.CreateTrade(t, alice, bob, testutils.SolOffer("3"), types.TradeOffer{})

	created := readEvent(t, bobStream)
	assert.Equal(t, types.EventTradeCreated, created.Type)
	assert.Equal(t, trade.ID, created.Trade.ID)
	assert.Equal(t, types.StatusPending, created.Trade.Status)

	resp := ts.Post("/trade/"+trade.ID+"/accept", testutils.NewTransition(bob))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	accepted := readEvent(t, bobStream)
	assert.Equal(t, types.EventTradeAccepted, accepted.Type)
	assert.Equal(t, types.StatusAccepted, accepted.Trade.Status)
	assert.Equal(t, accepted.Trade.UpdatedAt, accepted.OccurredAt)

	// Carol is not part of the trade and hears nothing
	require.NoError(t, carolStream.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := carolStream.ReadMessage()
	assert.Error(t, err)
}

func TestTradeStreamRequiresWallet(t *testing.T) {
	ts := testutils.NewTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.WebSocketURL("/trades/stream"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTradeStreamClosesOnShutdown(t *testing.T) {
	ts := testutils.NewTestServer(t)
	conn := dialStream(t, ts, alice)

	ts.Hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
