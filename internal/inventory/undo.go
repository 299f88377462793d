package inventory

import (
	"sync"

	"github.com/agentoven/larder/pkg/models"
)

// UndoKind says how an UndoAction is reversed.
type UndoKind string

const (
	// UndoRestore re-inserts a deleted row.
	UndoRestore UndoKind = "restore"
	// UndoDelete removes an inserted row.
	UndoDelete UndoKind = "delete"
	// UndoRevertQuantity puts back a previous quantity.
	UndoRevertQuantity UndoKind = "revert-quantity"
	// UndoRevertLocation puts back a previous location.
	UndoRevertLocation UndoKind = "revert-location"
)

// UndoAction reverses one mutation. Which fields are set depends on Kind.
type UndoAction struct {
	Kind UndoKind
	// Item is the deleted row for UndoRestore.
	Item models.Item
	// Tags were attached to Item when it was deleted.
	Tags               []models.TagInfo
	ItemID             int64
	PreviousQuantity   int
	PreviousLocationID int64
	// Description completes "Undone: ..." in the reply.
	Description string
}

// UndoStack holds the single most recent action per chat. A newer mutation
// overwrites the pending one.
type UndoStack struct {
	mu      sync.Mutex
	actions map[int64]UndoAction
}

// NewUndoStack creates an empty stack.
func NewUndoStack() *UndoStack {
	return &UndoStack{actions: make(map[int64]UndoAction)}
}

// Push records a for chatID, replacing any pending action.
func (u *UndoStack) Push(chatID int64, a UndoAction) {
	u.mu.Lock()
	u.actions[chatID] = a
	u.mu.Unlock()
}

// Pop removes and returns the pending action for chatID.
func (u *UndoStack) Pop(chatID int64) (UndoAction, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a, ok := u.actions[chatID]
	if ok {
		delete(u.actions, chatID)
	}
	return a, ok
}

// Peek returns the pending action without consuming it.
func (u *UndoStack) Peek(chatID int64) (UndoAction, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a, ok := u.actions[chatID]
	return a, ok
}
