package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
)

// Snapshot is one authoritative collection state delivered by the
// subscription feed. The payload is the full collection, in server order;
// it replaces the local cache wholesale.
type Snapshot struct {
	Collection string          `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
	SentAt     time.Time       `json:"sent_at"`
}

// Feed is the websocket subscription client delivering collection
// snapshots pushed by the backend.
type Feed struct {
	baseURL string
	token   string
	logger  *log.Logger
}

// NewFeed creates a subscription feed client for the given websocket base
// URL (ws:// or wss://).
//
// If logger is nil, a default logger writing to stderr is used.
func NewFeed(baseURL, token string, logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	return &Feed{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
	}
}

// Subscribe opens a subscription for the given collection key and returns a
// channel of snapshots. The channel is closed when ctx is cancelled or the
// connection drops; callers decide whether to resubscribe.
func (f *Feed) Subscribe(ctx context.Context, collectionKey string) (<-chan Snapshot, error) {
	wsURL := fmt.Sprintf("%s/v1/subscribe?collection=%s", f.baseURL, url.QueryEscape(collectionKey))

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open subscription for %q: %w", collectionKey, err)
	}

	if f.token != "" {
		auth, _ := json.Marshal(map[string]string{"token": f.token})
		if err := conn.Write(ctx, websocket.MessageText, auth); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "auth write failed")
			return nil, fmt.Errorf("failed to authenticate subscription: %w", err)
		}
	}

	snapshots := make(chan Snapshot, 16)
	go f.readLoop(ctx, conn, collectionKey, snapshots)
	return snapshots, nil
}

// readLoop reads snapshot messages until the context is cancelled or the
// connection fails. Malformed messages are logged and skipped.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, collectionKey string, snapshots chan<- Snapshot) {
	defer close(snapshots)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Printf("Subscription for %q closed: %v", collectionKey, err)
			}
			return
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			f.logger.Printf("Warning: malformed snapshot on %q: %v", collectionKey, err)
			continue
		}
		if snap.Collection == "" {
			snap.Collection = collectionKey
		}

		select {
		case snapshots <- snap:
		case <-ctx.Done():
			return
		}
	}
}
