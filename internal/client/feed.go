package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zulandar/switchboard/internal/presence"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// maxFrameSize bounds one pushed event.
const maxFrameSize = 1 << 20

// Feed is a WebSocket push connection to the relay.
type Feed struct {
	conn *websocket.Conn
}

type subscribeFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId,omitempty"`
	All      bool   `json:"all,omitempty"`
}

// FeedTarget selects the initial subscription. Empty means none.
type FeedTarget struct {
	ThreadID string
	All      bool
}

// DialFeed opens /ws on the server at baseURL.
func DialFeed(ctx context.Context, baseURL, token string, target FeedTarget) (*Feed, error) {
	u, err := feedURL(baseURL, target)
	if err != nil {
		return nil, err
	}
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, resp, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &APIError{Status: resp.StatusCode, Type: TypeUnauthorized, Message: "feed refused credentials"}
		}
		return nil, fmt.Errorf("client: dial feed: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &Feed{conn: conn}, nil
}

// feedURL maps an http(s) base URL to the ws(s) feed endpoint.
func feedURL(baseURL string, target FeedTarget) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("client: server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: server url %q must be http or https", baseURL)
	}
	u.Path += "/ws"
	q := url.Values{}
	switch {
	case target.All:
		q.Set("all", "1")
	case target.ThreadID != "":
		q.Set("threadId", target.ThreadID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Next blocks for the next pushed event.
func (f *Feed) Next(ctx context.Context) (presence.Event, error) {
	var ev presence.Event
	if err := wsjson.Read(ctx, f.conn, &ev); err != nil {
		return presence.Event{}, err
	}
	return ev, nil
}

// Subscribe moves the connection to threadID's feed.
func (f *Feed) Subscribe(ctx context.Context, threadID string) error {
	return wsjson.Write(ctx, f.conn, subscribeFrame{Type: "subscribe", ThreadID: threadID})
}

// SubscribeAll moves the connection to the all-threads feed.
func (f *Feed) SubscribeAll(ctx context.Context) error {
	return wsjson.Write(ctx, f.conn, subscribeFrame{Type: "subscribe", All: true})
}

// Close closes the connection.
func (f *Feed) Close() error {
	return f.conn.Close(websocket.StatusNormalClosure, "")
}
