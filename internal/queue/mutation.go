// Package queue provides the durable queue of write operations attempted
// while offline.
//
// Each pending write is a Mutation: a closed, enumerated operation kind plus
// the typed arguments for that kind. The whole queue is persisted to the
// key-value store as a single JSON array after every change, so the durable
// copy is always the source of truth and survives process restarts mid-drain.
package queue

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies one of the supported mutation operations.
// The set is closed: the orchestrator dispatches over it exhaustively and
// unknown kinds are rejected at decode time.
type Kind int

const (
	// KindCreateItem adds a new item to a list.
	KindCreateItem Kind = iota
	// KindToggleItem flips an item's checked state.
	KindToggleItem
	// KindUpdateItem rewrites an item's content fields.
	KindUpdateItem
	// KindDeleteItem removes an item from its list.
	KindDeleteItem
	// KindCreateList creates a new list in a household.
	KindCreateList
	// KindArchiveList archives a list.
	KindArchiveList
	// KindUpdateList rewrites a list's content fields.
	KindUpdateList
)

// String returns the wire tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindCreateItem:
		return "create-item"
	case KindToggleItem:
		return "toggle-item"
	case KindUpdateItem:
		return "update-item"
	case KindDeleteItem:
		return "delete-item"
	case KindCreateList:
		return "create-list"
	case KindArchiveList:
		return "archive-list"
	case KindUpdateList:
		return "update-list"
	default:
		return "unknown"
	}
}

// ParseKind converts a wire tag back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "create-item":
		return KindCreateItem, nil
	case "toggle-item":
		return KindToggleItem, nil
	case "update-item":
		return KindUpdateItem, nil
	case "delete-item":
		return KindDeleteItem, nil
	case "create-list":
		return KindCreateList, nil
	case "archive-list":
		return KindArchiveList, nil
	case "update-list":
		return KindUpdateList, nil
	default:
		return 0, fmt.Errorf("unknown mutation kind %q", s)
	}
}

// MarshalJSON encodes the kind as its wire tag.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the kind from its wire tag.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Args is the typed payload of a mutation. The concrete type is determined
// by the mutation's Kind.
type Args interface {
	isArgs()
}

// CreateItemArgs creates a new item on a list.
type CreateItemArgs struct {
	ListID   string `json:"list_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Note     string `json:"note,omitempty"`
}

// ToggleItemArgs flips an item's checked state.
type ToggleItemArgs struct {
	ListID  string `json:"list_id"`
	ItemID  string `json:"item_id"`
	Checked bool   `json:"checked"`
}

// UpdateItemArgs rewrites an item's content fields.
type UpdateItemArgs struct {
	ListID   string `json:"list_id"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Note     string `json:"note,omitempty"`
}

// DeleteItemArgs removes an item.
type DeleteItemArgs struct {
	ListID string `json:"list_id"`
	ItemID string `json:"item_id"`
}

// CreateListArgs creates a new list in a household.
type CreateListArgs struct {
	HouseholdID string `json:"household_id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
}

// ArchiveListArgs archives a list.
type ArchiveListArgs struct {
	ListID string `json:"list_id"`
}

// UpdateListArgs rewrites a list's content fields.
type UpdateListArgs struct {
	ListID string `json:"list_id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
}

func (CreateItemArgs) isArgs()  {}
func (ToggleItemArgs) isArgs()  {}
func (UpdateItemArgs) isArgs()  {}
func (DeleteItemArgs) isArgs()  {}
func (CreateListArgs) isArgs()  {}
func (ArchiveListArgs) isArgs() {}
func (UpdateListArgs) isArgs()  {}

// Mutation is a single queued write operation.
type Mutation struct {
	// ID is the correlation handle for this mutation: generated at enqueue
	// time, unique for the lifetime of the queue, never reused.
	ID string `json:"id"`

	// Kind selects the remote call and the concrete Args type.
	Kind Kind `json:"kind"`

	// Args is the typed payload; its shape is determined by Kind.
	Args Args `json:"args"`

	// EnqueuedAt defines processing order within the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// RetryCount tracks failed drain attempts. At the retry ceiling the
	// mutation is dropped and reported as a failure.
	RetryCount int `json:"retry_count"`
}

// mutationEnvelope is the raw JSON shape of Mutation, used to defer Args
// decoding until the kind is known.
type mutationEnvelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// UnmarshalJSON decodes a mutation, selecting the Args type by Kind.
// An unknown kind is a decode error: the set of operations is closed.
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var env mutationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	args, err := decodeArgs(env.Kind, env.Args)
	if err != nil {
		return fmt.Errorf("failed to decode args for %s mutation %s: %w", env.Kind, env.ID, err)
	}

	m.ID = env.ID
	m.Kind = env.Kind
	m.Args = args
	m.EnqueuedAt = env.EnqueuedAt
	m.RetryCount = env.RetryCount
	return nil
}

// decodeArgs decodes the raw args payload into the concrete type for kind.
func decodeArgs(kind Kind, raw json.RawMessage) (Args, error) {
	switch kind {
	case KindCreateItem:
		var a CreateItemArgs
		return a, json.Unmarshal(raw, &a)
	case KindToggleItem:
		var a ToggleItemArgs
		return a, json.Unmarshal(raw, &a)
	case KindUpdateItem:
		var a UpdateItemArgs
		return a, json.Unmarshal(raw, &a)
	case KindDeleteItem:
		var a DeleteItemArgs
		return a, json.Unmarshal(raw, &a)
	case KindCreateList:
		var a CreateListArgs
		return a, json.Unmarshal(raw, &a)
	case KindArchiveList:
		var a ArchiveListArgs
		return a, json.Unmarshal(raw, &a)
	case KindUpdateList:
		var a UpdateListArgs
		return a, json.Unmarshal(raw, &a)
	default:
		return nil, fmt.Errorf("unknown mutation kind %d", kind)
	}
}

// newMutationID generates a unique correlation handle: enqueue time in
// nanoseconds plus a random suffix.
func newMutationID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("m_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("m_%d_%s", time.Now().UnixNano(), hex.EncodeToString(buf))
}
