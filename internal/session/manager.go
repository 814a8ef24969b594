package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/audio"
	"github.com/skypro1111/whisper-stream-service/internal/metrics"
	"github.com/skypro1111/whisper-stream-service/internal/protocol"
	"github.com/skypro1111/whisper-stream-service/internal/segment"
)

// cleanupInterval is how often the manager scans for idle sessions.
const cleanupInterval = 30 * time.Second

// ManagerConfig contains everything a new session's pipeline needs.
type ManagerConfig struct {
	SampleRate    int
	EnergyRatio   float32
	FreqThreshold float32

	KeepMs              int
	MaxTalking          time.Duration
	DefaultMinSilenceMs int
	DefaultMaxSilenceMs int

	MaxChunkGap    uint32
	QueueSize      int
	MaxSessions    int
	SessionTimeout time.Duration
	ProcessTimeout time.Duration
}

// Manager owns all live sessions. Hello creates, Audio routes, Bye
// finalizes, and an idle reaper removes sessions whose client went away
// without a Bye.
type Manager struct {
	cfg         ManagerConfig
	transcriber segment.Transcriber
	logger      *slog.Logger
	metrics     *metrics.Metrics

	sessions map[uint32]*Session
	mu       sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager creates a session manager. transcriber is shared by every
// session; it must be safe for concurrent use. m is required: sessions
// record loss and lifecycle events through it unconditionally.
func NewManager(cfg ManagerConfig, transcriber segment.Transcriber, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}

	if m == nil {
		return nil, fmt.Errorf("metrics registry is required")
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}

	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Minute
	}

	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	mgr := &Manager{
		cfg:         cfg,
		transcriber: transcriber,
		logger:      logger,
		metrics:     m,
		sessions:    make(map[uint32]*Session),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	go mgr.cleanupLoop()

	return mgr, nil
}

// HandleHello opens a session, or refreshes the metadata of an existing one
// so a duplicated hello packet is harmless.
func (m *Manager) HandleHello(sessionID uint32, hello *protocol.HelloPayload) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sessionID]; ok {
		m.logger.Warn("Session already exists, refreshing activity",
			slog.Uint64("session_id", uint64(sessionID)),
			slog.String("client_id", existing.ClientID),
		)

		existing.mu.Lock()
		existing.lastActivity = time.Now()
		existing.mu.Unlock()

		return existing, nil
	}

	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("session limit reached: %d", m.cfg.MaxSessions)
	}

	sess, err := newSession(sessionID, hello, m.cfg, m.transcriber, m.metrics, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.sessions[sessionID] = sess
	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info("Session created",
		slog.Uint64("session_id", uint64(sessionID)),
		slog.String("client_id", sess.ClientID),
		slog.String("language", sess.Language),
		slog.Uint64("mode", uint64(sess.Mode)),
	)

	return sess, nil
}

// HandleAudio decodes one audio payload and enqueues it on its session.
func (m *Manager) HandleAudio(sessionID uint32, header *protocol.Header, payload *protocol.AudioPayload) error {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("audio for unknown session %d", sessionID)
	}

	samples, err := audio.SamplesFromPCM16(payload.AudioData)
	if err != nil {
		return fmt.Errorf("failed to decode audio payload: %w", err)
	}

	return sess.Enqueue(&audio.Chunk{
		Sequence:     payload.Sequence,
		Samples:      samples,
		Flush:        header.FlushRequested(),
		MinSilenceMs: int(payload.MinSilenceMs),
		MaxSilenceMs: int(payload.MaxSilenceMs),
		Received:     time.Now(),
	})
}

// HandleBye finalizes a session: the worker drains its queue, flushes the
// remaining audio, and the session is removed.
func (m *Manager) HandleBye(sessionID uint32) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("bye for unknown session %d", sessionID)
	}

	sess.close()

	duration := time.Since(sess.StartTime)
	m.metrics.RecordSessionFinalized(duration.Seconds())

	m.logger.Info("Session finalized",
		slog.Uint64("session_id", uint64(sessionID)),
		slog.String("client_id", sess.ClientID),
		slog.Duration("duration", duration),
		slog.Int("transcripts", len(sess.Transcripts())),
	)

	return nil
}

// GetSession retrieves a live session.
func (m *Manager) GetSession(sessionID uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// GetActiveSessionCount returns the number of live sessions.
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessionInfo returns monitoring snapshots of every live session.
func (m *Manager) GetAllSessionInfo() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.GetInfo())
	}

	return infos
}

// Stop finalizes every live session and stops the reaper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping session manager...")

		close(m.stop)
		<-m.done

		m.mu.Lock()
		ids := make([]uint32, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.Unlock()

		for _, id := range ids {
			if err := m.HandleBye(id); err != nil {
				m.logger.Warn("Error finalizing session on shutdown",
					slog.Uint64("session_id", uint64(id)),
					slog.String("error", err.Error()),
				)
			}
		}

		m.logger.Info("Session manager stopped",
			slog.Int("finalized_sessions", len(ids)),
		)
	})
}

// cleanupLoop reaps sessions whose client stopped sending without a bye.
func (m *Manager) cleanupLoop() {
	defer close(m.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

func (m *Manager) cleanupIdleSessions() {
	now := time.Now()

	m.mu.RLock()
	expired := make([]uint32, 0)
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > m.cfg.SessionTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.logger.Info("Reaping idle session",
			slog.Uint64("session_id", uint64(id)),
			slog.Duration("timeout", m.cfg.SessionTimeout),
		)

		if err := m.HandleBye(id); err != nil {
			m.logger.Warn("Error reaping idle session",
				slog.Uint64("session_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}
}
