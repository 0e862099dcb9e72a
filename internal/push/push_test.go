package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func TestNotifySkipsWithoutDeviceToken(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, nil)

	n.Notify("Compra", "ok", nil)
	n.Wait()

	assert.Empty(t, sender.sent())
}

func TestNotifyDeliversToRegisteredDevice(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, nil)
	n.Register(" ExponentPushToken[abc] ")

	n.Notify("Compra confirmada", "Tu pedido está en camino", map[string]any{"total": "60"})
	n.Wait()

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ExponentPushToken[abc]", msgs[0].To)
	assert.Equal(t, "Compra confirmada", msgs[0].Title)
}

func TestNotifySwallowsSenderErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("expo down")}
	n := NewNotifier(sender, nil)
	n.Register("tok")

	assert.NotPanics(t, func() {
		n.Notify("t", "b", nil)
		n.Wait()
	})
	assert.Len(t, sender.sent(), 1)
}

func TestExpoSender(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer srv.Close()

	sender := NewExpoSender(srv.URL, "access")
	require.NoError(t, sender.Send(context.Background(), Message{To: "tok", Title: "hola"}))
	assert.Equal(t, "hola", got.Title)
}

func TestExpoSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewExpoSender(srv.URL, "").Send(context.Background(), Message{To: "tok"})
	assert.Error(t, err)
}
