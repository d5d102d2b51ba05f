package websocket_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/websocket"
	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishJSONReachesSubscriber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/templates", websocket.WebSocketHandler(hub, []string{"*"}))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/templates"
	conn, _, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishJSON(map[string]string{"type": "template.created", "templateId": "T1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]string
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "template.created", event["type"])
	assert.Equal(t, "T1", event["templateId"])
}

func TestHub_RegisterAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub()

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &websocket.Client{ID: "c1", Hub: hub, Send: make(chan []byte, 1)}
	require.True(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.GetClientCount())

	returned := make(chan bool, 1)
	go func() {
		hub.Unregister(client)
		returned <- hub.Register(&websocket.Client{ID: "c2", Hub: hub, Send: make(chan []byte, 1)})
	}()
	select {
	case ok := <-returned:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked after the hub stopped")
	}
}

func TestHub_PublishJSONDoesNotBlock(t *testing.T) {
	hub := websocket.NewHub()

	// 未运行 Run 时队列满后返回错误
	var err error
	for i := 0; i < 300 && err == nil; i++ {
		err = hub.PublishJSON(i)
	}
	assert.ErrorIs(t, err, websocket.ErrBroadcastFull)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := websocket.NewUpgrader([]string{"https://allowed.example"})

	req := httptest.NewRequest("GET", "/ws/templates", nil)
	req.Header.Set("Origin", "https://allowed.example")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))
}
