package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const serverChanAPI = "https://sctapi.ftqq.com"

// ServerChanNotifier pushes messages to WeChat through the ServerChan relay.
type ServerChanNotifier struct {
	SendKey string
	baseURL string
	client  *http.Client
}

func NewServerChanNotifier(sendKey, baseURL string) (*ServerChanNotifier, error) {
	if sendKey == "" {
		return nil, errors.New("serverchan send key is required")
	}
	if baseURL == "" {
		baseURL = serverChanAPI
	}
	return &ServerChanNotifier{
		SendKey: sendKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *ServerChanNotifier) Name() string { return "serverchan" }

// Send posts the first line as the title and the whole message as the
// markdown body. Single newlines are doubled so they survive rendering.
func (s *ServerChanNotifier) Send(ctx context.Context, message string) error {
	title, _, _ := strings.Cut(message, "\n")
	form := url.Values{
		"title": {strings.TrimSpace(title)},
		"desp":  {strings.ReplaceAll(message, "\n", "\n\n")},
	}
	apiURL := fmt.Sprintf("%s/%s.send", s.baseURL, url.PathEscape(s.SendKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serverchan send failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var reply struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("serverchan send failed: decode reply: %w", err)
	}
	if reply.Code != 0 {
		return fmt.Errorf("serverchan send failed: code %d: %s", reply.Code, reply.Message)
	}
	return nil
}
