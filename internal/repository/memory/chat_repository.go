package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"promochat/internal/dto"
	"promochat/pkg/chat/state"

	"github.com/patrickmn/go-cache"
)

// Chat is one simulated backend conversation. Fields are guarded by Mu.
type Chat struct {
	Mu sync.Mutex

	ID       string
	UserID   string
	Messages []dto.ChatMessageDTO

	// Polls counts status requests per stage in the current turn.
	Polls map[state.Stage]int
	// Triggered records stages started through their create endpoint.
	Triggered map[state.Stage]bool
	// Turn increments on every user message.
	Turn int

	cancel context.CancelFunc
}

// ResetTurn clears per-turn progress. Callers hold Mu.
func (c *Chat) ResetTurn() {
	c.Turn++
	c.Polls = make(map[state.Stage]int)
	c.Triggered = make(map[state.Stage]bool)
}

// ReplacePlayback cancels the previous push playback and remembers the new
// one. Callers hold Mu.
func (c *Chat) ReplacePlayback(cancel context.CancelFunc) {
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
}

type ChatRepository struct {
	cache  *cache.Cache
	nextID atomic.Int64
}

func NewChatRepository(ttl time.Duration) *ChatRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	// Chats expire after ttl; expired items are purged every 10 minutes.
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(_ string, v interface{}) {
		if chat, ok := v.(*Chat); ok {
			chat.Mu.Lock()
			chat.ReplacePlayback(nil)
			chat.Mu.Unlock()
		}
	})
	return &ChatRepository{cache: c}
}

// Create stores a new chat under the next numeric id.
func (r *ChatRepository) Create(userID string) *Chat {
	chat := &Chat{
		ID:        strconv.FormatInt(r.nextID.Add(1), 10),
		UserID:    userID,
		Polls:     make(map[state.Stage]int),
		Triggered: make(map[state.Stage]bool),
	}
	r.cache.Set(chat.ID, chat, cache.DefaultExpiration)
	return chat
}

func (r *ChatRepository) Get(chatID string) (*Chat, bool) {
	if x, found := r.cache.Get(chatID); found {
		return x.(*Chat), true
	}
	return nil, false
}

// Delete removes the chat and stops its playback.
func (r *ChatRepository) Delete(chatID string) bool {
	if _, found := r.cache.Get(chatID); !found {
		return false
	}
	r.cache.Delete(chatID)
	return true
}

func (r *ChatRepository) Count() int {
	return r.cache.ItemCount()
}

// Flush drops every chat.
func (r *ChatRepository) Flush() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
