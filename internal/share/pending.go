package share

import (
	"sync"

	"program-chat-service/internal/models"
)

// PendingShare buffers a share that arrived before a chat and identity were
// bound. It holds exactly one item: a later share overwrites an earlier one
// (last wins), a documented simplification rather than a deep queue.
type PendingShare struct {
	mu   sync.Mutex
	item *models.ShareItem
}

// Put stores the item, replacing any pending one.
func (p *PendingShare) Put(item models.ShareItem) {
	p.mu.Lock()
	p.item = &item
	p.mu.Unlock()
}

// Take removes and returns the pending item, if any.
func (p *PendingShare) Take() (models.ShareItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.item == nil {
		return models.ShareItem{}, false
	}
	item := *p.item
	p.item = nil
	return item, true
}
