package control

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

// Service is the UDP face of one engine: a read loop turning datagrams into
// engine calls, and a Broadcaster sending every settled change to the
// configured destination. Engine methods post onto the runner, so the read
// loop never touches engine state itself.
type Service struct {
	engine *sequencer.Engine
	conn   net.PacketConn
	dest   *net.UDPAddr

	listening bool
	stopped   atomic.Bool
	doneChan  chan struct{}
}

// NewService binds the control socket. An empty listenAddr disables inbound
// commands (a send-only socket is opened for broadcasts); an empty destAddr
// disables outbound snapshots.
func NewService(engine *sequencer.Engine, listenAddr, destAddr string) (*Service, error) {
	s := &Service{
		engine:   engine,
		doneChan: make(chan struct{}),
	}
	if destAddr != "" {
		dest, err := net.ResolveUDPAddr("udp", destAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination %s: %w", destAddr, err)
		}
		s.dest = dest
	}

	bind := listenAddr
	s.listening = bind != ""
	if !s.listening {
		if s.dest == nil {
			return s, nil // nothing to do on the wire at all
		}
		bind = ":0"
	}
	conn, err := net.ListenPacket("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", bind, err)
	}
	s.conn = conn
	return s, nil
}

// Start launches the read loop, if this service listens.
func (s *Service) Start() {
	if !s.listening {
		return
	}
	debug.Log("control", "listening on %s", s.conn.LocalAddr())
	go s.readLoop()
}

// Stop closes the socket and waits for the read loop to exit.
func (s *Service) Stop() {
	s.stopped.Store(true)
	if s.conn != nil {
		s.conn.Close()
	}
	if s.listening {
		<-s.doneChan
	}
}

func (s *Service) readLoop() {
	defer close(s.doneChan)
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.stopped.Load() {
				return
			}
			debug.Log("control", "read failed: %v", err)
			continue
		}
		line := string(buf[:n])
		cmd, err := ParseCommand(line)
		if err != nil {
			debug.Log("control", "dropping line from %s: %v", addr, err)
			continue
		}
		if cmd.Instance != s.engine.Instance() {
			debug.Log("control", "dropping command for instance %d (we are %d)", cmd.Instance, s.engine.Instance())
			continue
		}
		Dispatch(cmd, s.engine)
	}
}

// Broadcast implements sequencer.Broadcaster. It runs on the engine
// goroutine; a UDP write never blocks on the receiver.
func (s *Service) Broadcast(ch sequencer.Change, snap sequencer.Snapshot) {
	if s.conn == nil || s.dest == nil {
		return
	}
	line := EncodeSnapshot(ch, snap)
	if _, err := s.conn.WriteTo([]byte(line), s.dest); err != nil {
		debug.Log("control", "broadcast failed: %v", err)
	}
}

// Dispatch routes one parsed command to the engine as a network-origin
// change, echoing the sender's sequence tag.
func Dispatch(cmd Command, e *sequencer.Engine) {
	origin := sequencer.OriginNetwork
	switch cmd.Verb {
	case VerbMuteStep:
		e.SetMuteStep(cmd.Index, cmd.Value, origin, cmd.Seq)
	case VerbPitchStep:
		e.SetPitchStep(cmd.Index, cmd.Value, origin, cmd.Seq)
	case VerbMuteLength:
		e.SetMuteLength(cmd.Length, origin, cmd.Seq)
	case VerbPitchLength:
		e.SetPitchLength(cmd.Length, origin, cmd.Seq)
	case VerbMuteRate:
		e.SetMuteDivision(cmd.Division, origin, cmd.Seq)
	case VerbPitchRate:
		e.SetPitchDivision(cmd.Division, origin, cmd.Seq)
	case VerbTemperature:
		e.SetTemperature(cmd.Scalar, origin, cmd.Seq)
	case VerbChance:
		e.SetChance(cmd.Scalar, origin, cmd.Seq)
	case VerbShuffle:
		e.ForceReshuffle()
	case VerbReset:
		e.ResetToBaseline()
	case VerbSet:
		e.BulkSet(cmd.Bulk, origin, cmd.Seq)
	}
}
