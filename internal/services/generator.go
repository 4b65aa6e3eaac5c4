package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// Turn is one prior exchange passed to the model as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type GenerationRequest struct {
	System      string
	History     []Turn
	Prompt      string
	ImageURL    string
	Temperature float32
	Vision      bool
}

type Generation struct {
	ID      string
	Model   string
	Content string
}

// Generator performs one synchronous completion against the generative provider.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)
}

var ErrNoAPIKeys = errors.New("no generative API keys configured")

// KeyPool hands out configured API keys in round-robin order.
type KeyPool struct {
	keys []string
	next atomic.Uint64
}

func NewKeyPool(keys []string) (*KeyPool, error) {
	pool := &KeyPool{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			pool.keys = append(pool.keys, k)
		}
	}
	if len(pool.keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return pool, nil
}

// Next returns the index and value of the next key.
func (p *KeyPool) Next() (int, string) {
	i := int((p.next.Add(1) - 1) % uint64(len(p.keys)))
	return i, p.keys[i]
}

func (p *KeyPool) Len() int {
	return len(p.keys)
}
