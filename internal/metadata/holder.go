// Package metadata keeps the CDR register status of data recipients and
// their software products, refreshed periodically from the register.
package metadata

import (
	"sync"
	"time"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// Holder is the process-wide status cache keyed by OAuth client id.  The
// two maps are replaced independently; readers may briefly observe a new
// data recipient map with the previous software product map.
type Holder struct {
	mu               sync.RWMutex
	dataRecipients   map[string]string
	softwareProducts map[string]string
	updatedAt        time.Time
}

func NewHolder() *Holder {
	return &Holder{dataRecipients: map[string]string{}, softwareProducts: map[string]string{}}
}

func (h *Holder) SetDataRecipients(statuses map[string]string) {
	h.mu.Lock()
	h.dataRecipients = statuses
	h.updatedAt = time.Now()
	h.mu.Unlock()
}

func (h *Holder) SetSoftwareProducts(statuses map[string]string) {
	h.mu.Lock()
	h.softwareProducts = statuses
	h.updatedAt = time.Now()
	h.mu.Unlock()
}

func (h *Holder) DataRecipientStatus(clientID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.dataRecipients[clientID]
	return s, ok
}

func (h *Holder) SoftwareProductStatus(clientID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.softwareProducts[clientID]
	return s, ok
}

// UpdatedAt is the time of the last replacement, zero before the first.
func (h *Holder) UpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updatedAt
}

// Active reports whether clientID may access data.  Clients unknown to
// the cache are allowed; otherwise both the data recipient and the
// software product must be ACTIVE.  The returned detail names the failing
// status.
func (h *Holder) Active(clientID string) (bool, string) {
	if s, ok := h.DataRecipientStatus(clientID); ok && s != model.DataRecipientActive {
		return false, "ADR status is " + s
	}
	if s, ok := h.SoftwareProductStatus(clientID); ok && s != model.SoftwareProductActive {
		return false, "software product status is " + s
	}
	return true, ""
}
