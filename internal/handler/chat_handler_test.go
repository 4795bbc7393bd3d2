package handler

import (
	"net/http/httptest"
	"querybot-go/internal/service"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketAnswersEachQuestion(t *testing.T) {
	app := newTestApp(t, "structured")
	tok := app.login(t, "alice")
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws/" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"question":"How many employees?"}`)))

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "error", first.Type)
	require.NotNil(t, first.Response)
	assert.Equal(t, service.ConnectFirstText, first.Response.Text)

	var done wsMessage
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "completion", done.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	var blank wsMessage
	require.NoError(t, conn.ReadJSON(&blank))
	assert.Equal(t, "error", blank.Type)
	assert.Equal(t, "question is required", blank.Error)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	app := newTestApp(t, "structured")
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws/not-a-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestParseQuestion(t *testing.T) {
	assert.Equal(t, "hi", parseQuestion([]byte("  hi ")))
	assert.Equal(t, "hi", parseQuestion([]byte(`{"question":" hi "}`)))
	assert.Equal(t, "{broken", parseQuestion([]byte("{broken")))
}
