package source

import (
	"strings"
	"sync"

	"github.com/moonwatch/signalrun/internal/models"
)

// Directory tracks what the transport client has told us about channels. It
// answers the accessibility and metadata questions the pipeline asks before
// trusting a channel's traffic.
type Directory struct {
	mu     sync.RWMutex
	byID   map[int64]models.ChannelInfo
	byName map[string]models.ChannelInfo
}

// NewDirectory builds an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:   make(map[int64]models.ChannelInfo),
		byName: make(map[string]models.ChannelInfo),
	}
}

// Update records (or refreshes) one channel's metadata.
func (d *Directory) Update(info models.ChannelInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[info.ID] = info
	if info.Username != "" {
		d.byName[strings.ToLower(info.Username)] = info
	}
	if info.Title != "" {
		d.byName[strings.ToLower(info.Title)] = info
	}
}

// IsChannelAccessible reports whether the transport has announced the
// channel. Unannounced channels still flow through the pipeline; they just
// carry no metadata.
func (d *Directory) IsChannelAccessible(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byName[strings.ToLower(name)]
	return ok
}

// GetChannelInfo returns the channel's metadata by username or title.
func (d *Directory) GetChannelInfo(name string) (models.ChannelInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.byName[strings.ToLower(name)]
	return info, ok
}

// GetChannelByID returns the channel's metadata by transport ID.
func (d *Directory) GetChannelByID(id int64) (models.ChannelInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.byID[id]
	return info, ok
}

// Len reports how many channels have been announced.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
