package config

// Config is the full bot configuration, decoded strictly: unknown fields are
// rejected so stale keys are caught at load or hot-reload time.
//
// All durations are Go duration strings (e.g. "1.5s", "2m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Roster    RosterConfig    `json:"roster"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// CommunityID is the group chat whose members are the broadcast audience.
	CommunityID int64 `json:"community_id"`

	// AdminUserIDs may drive broadcasts and receive lifecycle notices.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// InviteLink is appended to every delivered broadcast.
	InviteLink string `json:"invite_link"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// BroadcastConfig tunes the confirmation/delivery core.
//
// Defaults (when omitted/zero):
//   - pace: "1.5s"
//   - confirm_timeout: "2m"
//   - progress_every: 5
type BroadcastConfig struct {
	Pace           string `json:"pace,omitempty"`
	ConfirmTimeout string `json:"confirm_timeout,omitempty"`
	ProgressEvery  int    `json:"progress_every,omitempty"`
}

// RosterConfig controls the recipient directory store.
type RosterConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
