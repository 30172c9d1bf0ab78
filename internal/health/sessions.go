package health

import (
	"sync"

	"github.com/postalsys/udpblast/internal/blast"
)

// Session is the part of *blast.Blaster the registry needs.
type Session interface {
	Stats() blast.Stats
	Err() error
}

// Sessions is a StatsProvider over a set of blasters.
type Sessions struct {
	mu       sync.RWMutex
	sessions []Session
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{}
}

// Add registers a session.
func (s *Sessions) Add(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
}

// IsRunning reports whether any session has not reached a terminal state.
func (s *Sessions) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if !sess.Stats().State.Terminal() {
			return true
		}
	}
	return false
}

// Stats snapshots every registered session.
func (s *Sessions) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Stats{Sessions: make([]SessionStats, 0, len(s.sessions))}
	for _, sess := range s.sessions {
		out.Sessions = append(out.Sessions, sessionStats(sess))
	}
	return out
}

func sessionStats(sess Session) SessionStats {
	st := sess.Stats()

	ss := SessionStats{
		Destination: st.Destination.String(),
		LocalAddr:   st.LocalAddr,
		State:       st.State.String(),
		Multicast:   st.Multicast,
		Datagrams:   st.Datagrams,
		Bytes:       st.Bytes,
		SendErrors:  st.SendErrors,
		Buffered:    st.Buffered,
	}
	if st.Destination.ResolvedAddress.IsValid() {
		ss.ResolvedAddress = st.Destination.ResolvedAddress.String()
	}
	if err := sess.Err(); err != nil {
		ss.Error = err.Error()
	}
	return ss
}
