package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/safar/mute-store/internal/logger"
)

const (
	defaultEndpoint         = "https://exp.host/--/api/v2/push/send"
	sendTimeout             = 10 * time.Second
	responseReadLimit int64 = 1024
)

var ErrNoDeviceToken = errors.New("no device token registered")

type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ExpoSender posts messages to the Expo push service.
type ExpoSender struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
}

func NewExpoSender(endpoint, accessToken string) *ExpoSender {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	return &ExpoSender{
		httpClient:  &http.Client{Timeout: sendTimeout},
		endpoint:    endpoint,
		accessToken: accessToken,
	}
}

func (s *ExpoSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return fmt.Errorf("push status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Notifier keeps the device token obtained at registration and delivers
// notifications without making callers wait on the outcome.
type Notifier struct {
	sender Sender
	log    *logger.Logger

	mu          sync.RWMutex
	deviceToken string
	wg          sync.WaitGroup
}

func NewNotifier(sender Sender, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{sender: sender, log: log}
}

func (n *Notifier) Register(deviceToken string) {
	n.mu.Lock()
	n.deviceToken = strings.TrimSpace(deviceToken)
	n.mu.Unlock()
}

func (n *Notifier) DeviceToken() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceToken
}

// Notify sends in the background. Failures are logged and dropped.
func (n *Notifier) Notify(title, body string, data map[string]any) {
	if n == nil || n.sender == nil {
		return
	}
	token := n.DeviceToken()
	if token == "" {
		n.log.Debug(context.Background(), "push skipped: "+ErrNoDeviceToken.Error())
		return
	}

	msg := Message{To: token, Title: title, Body: body, Data: data, Sound: "default"}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, msg); err != nil {
			n.log.Error(n.log.WithField(ctx, "title", title), "push notification failed", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish. Used at shutdown.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
