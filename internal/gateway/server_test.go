package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

type memberSet map[[2]uuid.UUID]bool

func (m memberSet) IsMember(_ context.Context, channelID, userID uuid.UUID) (bool, error) {
	return m[[2]uuid.UUID{channelID, userID}], nil
}

func startServer(t *testing.T, cfg *config.Config, members MemberChecker) (*Server, *bus.MessageBus, string) {
	t.Helper()
	b := bus.New()
	s := NewServer(cfg, b, prometheus.NewRegistry())
	if members != nil {
		s.SetMemberChecker(members)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr, start := StartTestServer(s, ctx)
	go start()
	return s, b, addr
}

func dial(t *testing.T, addr, query string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?"+query, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestServer_Health(t *testing.T) {
	_, _, addr := startServer(t, config.Default(), nil)
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","protocol":1}`, string(body))
}

func TestServer_Metrics(t *testing.T) {
	_, _, addr := startServer(t, config.Default(), nil)
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "botchat_gateway_clients_connected")
}

func TestWebSocket_HelloAndPing(t *testing.T) {
	_, _, addr := startServer(t, config.Default(), nil)
	user := uuid.NewString()
	conn := dial(t, addr, "user_id="+user, nil)

	hello := readFrame(t, conn)
	assert.Equal(t, protocol.FrameTypeHello, hello["type"])
	assert.Equal(t, float64(protocol.ProtocolVersion), hello["protocol"])
	assert.Equal(t, user, hello["user_id"])

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{Type: protocol.FrameTypePing, ID: "7"}))
	pong := readFrame(t, conn)
	assert.Equal(t, protocol.FrameTypePong, pong["type"])
	assert.Equal(t, "7", pong["id"])

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{Type: "chat.send"}))
	errFrame := readFrame(t, conn)
	assert.Equal(t, protocol.FrameTypeError, errFrame["type"])
}

func TestWebSocket_ChannelFiltering(t *testing.T) {
	_, b, addr := startServer(t, config.Default(), nil)
	mine, other := uuid.NewString(), uuid.NewString()
	conn := dial(t, addr, "channel_id="+mine, nil)
	readFrame(t, conn)

	b.Broadcast(bus.Event{Name: protocol.EventMessageCreated, Payload: protocol.MessagePayload{ID: "skip", ChannelID: other}})
	b.Broadcast(bus.Event{Name: "internal.tick", Payload: map[string]string{"x": "y"}})
	b.Broadcast(bus.Event{Name: protocol.EventMessageCreated, Payload: protocol.MessagePayload{ID: "keep", ChannelID: mine}})

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.FrameTypeEvent, frame["type"])
	assert.Equal(t, protocol.EventMessageCreated, frame["event"])
	payload := frame["payload"].(map[string]interface{})
	assert.Equal(t, "keep", payload["id"])
}

func TestWebSocket_UserScopedEvents(t *testing.T) {
	_, b, addr := startServer(t, config.Default(), nil)
	user := uuid.NewString()
	conn := dial(t, addr, "user_id="+user, nil)
	readFrame(t, conn)

	b.Broadcast(bus.Event{Name: protocol.EventMemberAdded, Payload: protocol.MemberPayload{ChannelID: uuid.NewString(), UserID: uuid.NewString()}})
	b.Broadcast(bus.Event{Name: protocol.EventChannelCreated, Payload: protocol.ChannelPayload{ID: "c1", MemberIDs: []string{user}}})

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.EventChannelCreated, frame["event"])
}

func TestWebSocket_RequiresScope(t *testing.T) {
	_, _, addr := startServer(t, config.Default(), nil)
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_MembershipEnforced(t *testing.T) {
	ch, user := uuid.New(), uuid.New()
	_, _, addr := startServer(t, config.Default(), memberSet{{ch, user}: true})

	query := "channel_id=" + ch.String() + "&user_id=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?"+query, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, addr, "channel_id="+ch.String()+"&user_id="+user.String(), nil)
	assert.Equal(t, protocol.FrameTypeHello, readFrame(t, conn)["type"])
}

func TestWebSocket_Token(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = "s3cret"
	_, _, addr := startServer(t, cfg, nil)
	user := uuid.NewString()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?user_id="+user, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := dial(t, addr, "user_id="+user, http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, protocol.FrameTypeHello, readFrame(t, conn)["type"])
}

func TestCheckOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.AllowedOrigins = config.FlexibleStringSlice{"https://chat.example.com"}
	s := NewServer(cfg, bus.New(), nil)

	req := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/ws", strings.NewReader(""))
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, s.checkOrigin(req("https://chat.example.com")))
	assert.True(t, s.checkOrigin(req("")))
	assert.False(t, s.checkOrigin(req("https://evil.example.com")))
}

func TestClient_WantsBotEvents(t *testing.T) {
	c := &Client{channelID: uuid.NewString()}
	assert.True(t, c.Wants(bus.Event{Name: protocol.EventBotCreated, Payload: protocol.BotPayload{ID: "b"}}))
	assert.False(t, c.Wants(bus.Event{Name: "x", Payload: json.RawMessage(`{}`)}))
}
