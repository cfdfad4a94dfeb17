package model

import "time"

// Phase is the state of the sync state machine.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseRecent  Phase = "RECENT"
	PhaseBacklog Phase = "BACKLOG"
)

// FolderCursor marks how far the backlog walk has progressed in one
// folder. Messages with a UID at or above Before have been visited.
type FolderCursor struct {
	Folder      string    `db:"folder" json:"folder"`
	UIDValidity uint32    `db:"uid_validity" json:"uid_validity"`
	Before      uint32    `db:"before_uid" json:"before_uid"`
	Exhausted   bool      `db:"exhausted" json:"exhausted"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SyncCheckpoint is the single persisted sync state. It survives process
// restarts so an interrupted backlog walk resumes where it stopped.
type SyncCheckpoint struct {
	Phase          Phase                   `json:"phase"`
	ProcessedCount int                     `json:"processed_count"`
	TotalEstimate  int                     `json:"total_estimate"`
	Folders        map[string]FolderCursor `json:"folders"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// NewSyncCheckpoint returns an idle checkpoint with no folder cursors.
func NewSyncCheckpoint() *SyncCheckpoint {
	return &SyncCheckpoint{
		Phase:   PhaseIdle,
		Folders: make(map[string]FolderCursor),
	}
}

// Cursor returns the cursor for folder, or false when the folder has
// never been walked.
func (c *SyncCheckpoint) Cursor(folder string) (FolderCursor, bool) {
	cur, ok := c.Folders[folder]
	return cur, ok
}

// Advance records a new position for a folder. A position is only
// moved towards older messages; an attempt to move it back is ignored
// unless the folder's UIDVALIDITY changed.
func (c *SyncCheckpoint) Advance(cur FolderCursor) {
	if c.Folders == nil {
		c.Folders = make(map[string]FolderCursor)
	}
	prev, ok := c.Folders[cur.Folder]
	if ok && prev.UIDValidity == cur.UIDValidity {
		if prev.Exhausted {
			return
		}
		if !cur.Exhausted && cur.Before >= prev.Before && prev.Before != 0 {
			return
		}
	}
	c.Folders[cur.Folder] = cur
}
