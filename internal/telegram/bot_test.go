package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feasibility-bot/internal/config"
	"feasibility-bot/internal/feasibility"
)

const testToken = "123:abc"

type sentPhoto struct {
	chatID  string
	caption string
	data    []byte
}

// fakeAPI serves the Bot API methods the bot uses. Queued updates are handed
// out by the first getUpdates call.
type fakeAPI struct {
	mu       sync.Mutex
	updates  []Update
	messages map[int64][]string
	photos   []sentPhoto
	polls    int
}

func newFakeAPI(t *testing.T, updates ...Update) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{updates: updates, messages: map[int64][]string{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var result any = true
	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "getUpdates":
		a.polls++
		updates := a.updates
		if updates == nil {
			updates = []Update{}
		}
		a.updates = nil
		result = updates
	case "sendMessage":
		var req struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.messages[req.ChatID] = append(a.messages[req.ChatID], req.Text)
	case "sendPhoto":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("photo")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		a.photos = append(a.photos, sentPhoto{
			chatID:  r.FormValue("chat_id"),
			caption: r.FormValue("caption"),
			data:    data,
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Not Found"}`)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (a *fakeAPI) texts(chatID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages[chatID]...)
}

type fakeChecker struct {
	mu     sync.Mutex
	inputs []string
	block  chan struct{}
}

func (c *fakeChecker) Run(ctx context.Context, input string, m feasibility.Messenger) *feasibility.Report {
	c.mu.Lock()
	c.inputs = append(c.inputs, input)
	c.mu.Unlock()

	if c.block != nil {
		<-c.block
	}
	_ = m.SendText(ctx, "✅ listo")
	_ = m.SendImage(ctx, []byte("png"), "resultado")
	return &feasibility.Report{RunID: "run-1", Outcome: feasibility.StateReported}
}

func (c *fakeChecker) Inputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

func newTestBot(srv *httptest.Server, checker Checker, limit int, allowed ...int64) *Bot {
	cfg := config.Telegram{
		BotToken:     testToken,
		APIBase:      srv.URL,
		AllowedChats: allowed,
		PollTimeout:  0,
	}
	b := NewBot(cfg, checker, feasibility.NewLimiter(limit), nil)
	b.retryDelay = time.Millisecond
	return b
}

func textMessage(chatID int64, text string) *Message {
	return &Message{MessageID: 1, Text: text, Chat: Chat{ID: chatID}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
	}{
		{"/factibilidad RM, Santiago, Libertad, 100", "factibilidad", "RM, Santiago, Libertad, 100"},
		{"  /CHECK@wom_bot   RM, Santiago, X, 1 ", "check", "RM, Santiago, X, 1"},
		{"/start", "start", ""},
		{"hola", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		cmd, args := parseCommand(tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestHandleCheckRelaysOutput(t *testing.T) {
	api, srv := newFakeAPI(t)
	checker := &fakeChecker{}
	b := newTestBot(srv, checker, 2)

	b.handle(context.Background(), textMessage(42, "/factibilidad Metropolitana, Santiago, Av. Libertad, 100"))
	b.Wait()

	assert.Equal(t, []string{"Metropolitana, Santiago, Av. Libertad, 100"}, checker.Inputs())
	assert.Equal(t, []string{"✅ listo"}, api.texts(42))
	require.Len(t, api.photos, 1)
	assert.Equal(t, "42", api.photos[0].chatID)
	assert.Equal(t, "resultado", api.photos[0].caption)
	assert.Equal(t, []byte("png"), api.photos[0].data)
	assert.Equal(t, int64(0), b.limiter.Active())
}

func TestHandleCheckWithoutAddress(t *testing.T) {
	api, srv := newFakeAPI(t)
	checker := &fakeChecker{}
	b := newTestBot(srv, checker, 2)

	b.handle(context.Background(), textMessage(42, "/check"))
	b.Wait()

	assert.Empty(t, checker.Inputs())
	require.Len(t, api.texts(42), 1)
	assert.Contains(t, api.texts(42)[0], "Región, Comuna, Calle y Número")
}

func TestHandleHelp(t *testing.T) {
	api, srv := newFakeAPI(t)
	b := newTestBot(srv, &fakeChecker{}, 1)

	b.handle(context.Background(), textMessage(7, "/start"))
	b.handle(context.Background(), textMessage(7, "no es un comando"))

	assert.Equal(t, []string{helpText}, api.texts(7))
}

func TestHandleRejectsUnknownChat(t *testing.T) {
	api, srv := newFakeAPI(t)
	checker := &fakeChecker{}
	b := newTestBot(srv, checker, 1, 100, 200)

	b.handle(context.Background(), textMessage(300, "/factibilidad RM, Santiago, Libertad, 100"))
	b.Wait()

	assert.Empty(t, checker.Inputs())
	assert.Equal(t, []string{unauthorizedText}, api.texts(300))

	b.handle(context.Background(), textMessage(200, "/factibilidad RM, Santiago, Libertad, 100"))
	b.Wait()
	assert.Len(t, checker.Inputs(), 1)
}

func TestHandleBusy(t *testing.T) {
	api, srv := newFakeAPI(t)
	checker := &fakeChecker{block: make(chan struct{})}
	b := newTestBot(srv, checker, 1)

	b.handle(context.Background(), textMessage(1, "/factibilidad RM, Santiago, Libertad, 100"))
	b.handle(context.Background(), textMessage(2, "/factibilidad RM, Santiago, Nueva, 5"))

	assert.Equal(t, []string{busyText}, api.texts(2))

	close(checker.block)
	b.Wait()
	assert.Len(t, checker.Inputs(), 1)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	api, srv := newFakeAPI(t, Update{UpdateID: 10, Message: textMessage(5, "/help")})
	b := newTestBot(srv, &fakeChecker{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.texts(5)) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Equal(t, []string{helpText}, api.texts(5))
}

func TestClientAPIError(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := NewClient(srv.URL, "wrong", 0)

	err := c.SendMessage(context.Background(), 1, "hola")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthorized", apiErr.Description)
}
