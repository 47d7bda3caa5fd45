package api

import (
	"strings"
	"sync"
	"time"

	"weighgate/internal/model"
)

// DraftCache stores in-progress weighing entries per tenant/order/station
// so an interrupted session can resume from the server instead of
// whatever the browser kept.
type DraftCache struct {
	mu sync.Mutex
	// key: tenant|orderId|station
	m map[string]model.Draft
}

// NewDraftCache constructs a DraftCache.
func NewDraftCache() *DraftCache { return &DraftCache{m: map[string]model.Draft{}} }

func (c *DraftCache) key(tenant, orderID, station string) string {
	return tenant + "|" + orderID + "|" + station
}

// Save stores or updates the draft for an order and station.
func (c *DraftCache) Save(tenant, orderID, station string, entry model.WeighEntry) model.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := model.Draft{OrderID: orderID, Station: station, WeighEntry: entry, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	c.m[c.key(tenant, orderID, station)] = d
	return d
}

// Load returns the stored draft, preferring an exact station match and
// falling back to any station's draft for the order.
func (c *DraftCache) Load(tenant, orderID, station string) (model.Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.m[c.key(tenant, orderID, station)]; ok {
		return d, true
	}
	prefix := tenant + "|" + orderID + "|"
	for k, d := range c.m {
		if strings.HasPrefix(k, prefix) {
			return d, true
		}
	}
	return model.Draft{}, false
}

// Clear removes all drafts for an order (any station).
func (c *DraftCache) Clear(tenant, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := tenant + "|" + orderID + "|"
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
		}
	}
}
