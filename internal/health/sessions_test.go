package health

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/postalsys/udpblast/internal/blast"
)

type fakeSession struct {
	stats blast.Stats
	err   error
}

func (f *fakeSession) Stats() blast.Stats { return f.stats }
func (f *fakeSession) Err() error { return f.err }

func TestSessions_Empty(t *testing.T) {
	s := NewSessions()

	if s.IsRunning() {
		t.Error("empty registry should not be running")
	}
	if got := len(s.Stats().Sessions); got != 0 {
		t.Errorf("Stats().Sessions has %d entries, want 0", got)
	}
}

func TestSessions_Stats(t *testing.T) {
	s := NewSessions()
	s.Add(&fakeSession{stats: blast.Stats{
		State: blast.StateReady,
		Destination: blast.Destination{
			Host:            "example.test",
			Port:            1234,
			ResolvedAddress: netip.MustParseAddr("10.0.0.1"),
		},
		LocalAddr: "0.0.0.0:40000",
		Datagrams: 2,
		Bytes:     1024,
	}})
	s.Add(&fakeSession{
		stats: blast.Stats{State: blast.StateErrored, Destination: blast.Destination{Host: "nowhere.test", Port: 1}},
		err:   errors.New("blast: resolve failed"),
	})

	if !s.IsRunning() {
		t.Error("registry with a READY session should be running")
	}

	stats := s.Stats()
	if len(stats.Sessions) != 2 {
		t.Fatalf("Stats().Sessions has %d entries, want 2", len(stats.Sessions))
	}

	first := stats.Sessions[0]
	if first.Destination != "example.test:1234" || first.ResolvedAddress != "10.0.0.1" || first.State != "READY" {
		t.Errorf("first session = %+v", first)
	}
	if first.Error != "" {
		t.Errorf("first session error = %q, want empty", first.Error)
	}

	second := stats.Sessions[1]
	if second.ResolvedAddress != "" {
		t.Errorf("unresolved session should have no address, got %q", second.ResolvedAddress)
	}
	if second.Error != "blast: resolve failed" || second.State != "ERRORED" {
		t.Errorf("second session = %+v", second)
	}
}

func TestSessions_NotRunningWhenAllTerminal(t *testing.T) {
	s := NewSessions()
	s.Add(&fakeSession{stats: blast.Stats{State: blast.StateClosed}})
	s.Add(&fakeSession{stats: blast.Stats{State: blast.StateErrored}})

	if s.IsRunning() {
		t.Error("registry with only terminal sessions should not be running")
	}
}

func TestSessions_RealBlaster(t *testing.T) {
	b, err := blast.NewPort(1234, blast.Options{})
	if err != nil {
		t.Fatalf("NewPort() error = %v", err)
	}

	s := NewSessions()
	s.Add(b)

	if !s.IsRunning() {
		t.Error("fresh blaster should count as running")
	}
	if got := s.Stats().Sessions[0].State; got != "UNRESOLVED" {
		t.Errorf("State = %s, want UNRESOLVED", got)
	}

	b.Close()
	if s.IsRunning() {
		t.Error("closed blaster should not count as running")
	}
}
