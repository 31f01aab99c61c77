// Package ops is the operator-facing command surface: it consumes the
// transport update stream, keeps the archive and roster fed from observed
// traffic, and drives the broadcast confirmation cycle.
package ops

import (
	"context"
	"strings"
	"sync"
	"time"

	"heraldbot/internal/archive"
	"heraldbot/internal/broadcast"
	"heraldbot/internal/roster"
	kit "heraldbot/internal/transport"
	logx "heraldbot/pkg/logx"
)

// Settings is the hot-reloadable slice of configuration the service needs.
type Settings struct {
	CommunityID    int64
	AdminUserIDs   []int64
	InviteLink     string
	Brand          string
	ConfirmTimeout time.Duration
	Pace           time.Duration
	ProgressEvery  int
}

// StopFunc asks the host process to shut down; restart selects the exit
// intent the supervisor acts on.
type StopFunc func(restart bool)

type Service struct {
	adapter kit.Adapter
	archive *archive.Archive
	roster  *roster.Store
	stats   *broadcast.Cell
	log     logx.Logger
	stop    StopFunc

	// Go runs delivery and timeout work under the app supervisor.
	Go func(name string, fn func(ctx context.Context))

	mu        sync.Mutex
	settings  Settings
	startedAt time.Time
	runs      map[string]*pendingRun
	runSeq    int
}

type pendingRun struct {
	run     *broadcast.Run
	surface kit.MessageRef // confirmation message owning the controls
	timer   *time.Timer
}

func New(adapter kit.Adapter, arch *archive.Archive, ros *roster.Store, stats *broadcast.Cell, st Settings, log logx.Logger, stop StopFunc) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter:   adapter,
		archive:   arch,
		roster:    ros,
		stats:     stats,
		log:       log,
		stop:      stop,
		settings:  withDefaults(st),
		startedAt: time.Now(),
		runs:      map[string]*pendingRun{},
	}
	s.Go = func(name string, fn func(ctx context.Context)) { go fn(context.Background()) }
	return s
}

func withDefaults(st Settings) Settings {
	if st.ConfirmTimeout <= 0 {
		st.ConfirmTimeout = 2 * time.Minute
	}
	if st.Pace <= 0 {
		st.Pace = broadcast.DefaultPace
	}
	if st.ProgressEvery <= 0 {
		st.ProgressEvery = broadcast.DefaultProgressEvery
	}
	if st.Brand == "" {
		st.Brand = "Announcement"
	}
	return st
}

// Apply swaps in new settings on hot-reload. In-flight runs keep the
// settings they were created with.
func (s *Service) Apply(st Settings) {
	s.mu.Lock()
	s.settings = withDefaults(st)
	s.mu.Unlock()
}

func (s *Service) currentSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.settings
	st.AdminUserIDs = append([]int64(nil), st.AdminUserIDs...)
	return st
}

func (s *Service) isAdmin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.settings.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (s *Service) Run(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			s.dispatch(ctx, up)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			s.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, up.Callback)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, m *kit.Message) {
	s.observe(ctx, m)

	cmd, args := parseCommand(m.Text)
	if cmd == "" {
		return
	}

	switch cmd {
	case "start":
		s.handleStart(ctx, m)
	case "broadcast":
		s.handleBroadcast(ctx, m, args)
	case "status":
		s.handleStatus(ctx, m)
	case "restart":
		s.handleRestart(ctx, m)
	case "help":
		s.handleHelp(ctx, m)
	}
}

// observe feeds the archive and roster from regular traffic. Group messages
// register both the community and the author; the message itself becomes a
// broadcast candidate.
func (s *Service) observe(ctx context.Context, m *kit.Message) {
	if !m.IsGroup {
		return
	}
	s.archive.Put(m)

	if err := s.roster.UpsertCommunity(ctx, m.ChatID, ""); err != nil {
		s.log.Warn("community upsert failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return
	}
	member := roster.Member{UserID: m.FromID, Username: m.FromUsername, Name: m.FromName}
	if err := s.roster.UpsertMember(ctx, m.ChatID, member, m.FromIsBot); err != nil {
		s.log.Warn("member upsert failed", logx.Int64("user", m.FromID), logx.Err(err))
	}
}

// handleStart registers a user who opened a private chat as an addressable
// member of the configured community.
func (s *Service) handleStart(ctx context.Context, m *kit.Message) {
	if m.IsGroup {
		return
	}
	st := s.currentSettings()
	if st.CommunityID == 0 {
		return
	}
	if err := s.roster.UpsertCommunity(ctx, st.CommunityID, ""); err == nil {
		member := roster.Member{UserID: m.FromID, Username: m.FromUsername, Name: m.FromName}
		_ = s.roster.UpsertMember(ctx, st.CommunityID, member, m.FromIsBot)
	}
	s.reply(ctx, m, infoPanel("Hello", "You will now receive community announcements here."))
}

// parseCommand splits "/cmd arg1 arg2" (with optional @botname suffix) into
// its name and arguments. Returns "" for non-command text.
func parseCommand(text string) (cmd string, args []string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil
	}
	cmd = fields[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}
