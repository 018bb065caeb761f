package chargepoint

import (
	"sync"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
)

var (
	ErrListTooLong   = errors.New("local authorization list exceeds its maximum length")
	ErrUnknownIdTag  = errors.New("id tag is not in the local authorization list")
	ErrListDuplicate = errors.New("id tag appears more than once in the update")
)

// LocalList is the local authorization list pushed by the CSMS with SendLocalList.
type LocalList struct {
	mu      sync.RWMutex
	version int
	entries []localauth.AuthorizationData
}

func NewLocalList(version int, entries []localauth.AuthorizationData) *LocalList {
	return &LocalList{version: version, entries: entries}
}

func (l *LocalList) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.version
}

func (l *LocalList) Entries() []localauth.AuthorizationData {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]localauth.AuthorizationData, len(l.entries))
	copy(entries, l.entries)

	return entries
}

// Status returns the stored authorization status of idTag.
func (l *LocalList) Status(idTag string) (types.AuthorizationStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.entries {
		if entry.IdTag == idTag && entry.IdTagInfo != nil {
			return entry.IdTagInfo.Status, true
		}
	}

	return "", false
}

// ReplaceAll installs a full update. The list is left untouched on error.
func (l *LocalList) ReplaceAll(version int, entries []localauth.AuthorizationData, maxLength int) error {
	if len(entries) > maxLength {
		return errors.Wrapf(ErrListTooLong, "%d entries, max %d", len(entries), maxLength)
	}
	if err := checkDuplicates(entries); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]localauth.AuthorizationData(nil), entries...)
	l.version = version

	return nil
}

// ApplyDifferential merges entries into the current list. Every id tag must already be
// present; an entry without IdTagInfo removes its id tag. The list is left untouched on error.
func (l *LocalList) ApplyDifferential(version int, entries []localauth.AuthorizationData, maxLength int) error {
	if err := checkDuplicates(entries); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	updates := make(map[string]localauth.AuthorizationData, len(entries))
	for _, entry := range entries {
		updates[entry.IdTag] = entry
	}

	present := make(map[string]bool, len(l.entries))
	for _, entry := range l.entries {
		present[entry.IdTag] = true
	}
	for idTag := range updates {
		if !present[idTag] {
			return errors.Wrap(ErrUnknownIdTag, idTag)
		}
	}

	merged := make([]localauth.AuthorizationData, 0, len(l.entries))
	for _, entry := range l.entries {
		update, ok := updates[entry.IdTag]
		switch {
		case !ok:
			merged = append(merged, entry)
		case update.IdTagInfo != nil:
			merged = append(merged, update)
		}
	}
	if len(merged) > maxLength {
		return errors.Wrapf(ErrListTooLong, "%d entries, max %d", len(merged), maxLength)
	}

	l.entries = merged
	l.version = version

	return nil
}

func checkDuplicates(entries []localauth.AuthorizationData) error {
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.IdTag] {
			return errors.Wrap(ErrListDuplicate, entry.IdTag)
		}
		seen[entry.IdTag] = true
	}

	return nil
}
