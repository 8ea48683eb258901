package gameserver

import (
	"github.com/roguetalk/roguetalk/pkg/wire"
)

// handlePositionUpdate validates a movement intent and always answers
// with a POSITION_ACK carrying the authoritative post-commit position.
// Invalid moves are silently dropped; the unchanged ack is the client's
// reconciliation signal. Landing on a door tile follows through: a
// same-level teleporter changes the position before the ack, a
// cross-level door emits DOOR_TRANSITION first, a door to a missing
// level is a no-op.
func (s *Server) handlePositionUpdate(p *player, m *wire.PositionUpdate) {
	x, y := int(m.X), int(m.Y)

	// Messages to the mover, in order, sent after the lock is released.
	var out []wire.Message

	s.mu.Lock()
	lv, ok := s.Levels.Get(p.level)
	valid := ok &&
		abs(x-p.x) <= 1 && abs(y-p.y) <= 1 &&
		lv.IsWalkable(x, y)
	if valid {
		p.x, p.y = x, y
		if door, ok := lv.DoorAt(x, y); ok {
			if door.TargetLevel == "" || door.TargetLevel == p.level {
				// Same-level teleporter.
				p.x, p.y = door.TargetX, door.TargetY
				s.m().moves_total.teleport.Inc()
			} else if _, ok := s.Levels.Get(door.TargetLevel); ok {
				p.level = door.TargetLevel
				p.x, p.y = door.TargetX, door.TargetY
				out = append(out, &wire.DoorTransition{
					LevelName: p.level,
					SpawnX:    uint16(p.x),
					SpawnY:    uint16(p.y),
				})
				s.m().moves_total.door.Inc()
			} else {
				p.log.Warn().Str("target", door.TargetLevel).Msg("door to unknown level")
			}
		}
		s.m().moves_total.accepted.Inc()
	} else {
		s.m().moves_total.rejected.Inc()
	}
	ack := &wire.PositionAck{Seq: m.Seq, X: uint16(p.x), Y: uint16(p.y)}
	s.mu.Unlock()

	out = append(out, ack)
	for _, msg := range out {
		p.send(msg)
	}
	s.broadcastWorldState()
}

// worldState snapshots every live player under the shared lock.
func (s *Server) worldState() *wire.WorldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := &wire.WorldState{Players: make([]wire.PlayerState, 0, len(s.players))}
	for _, p := range s.players {
		ws.Players = append(ws.Players, wire.PlayerState{
			PlayerID:   p.id,
			X:          uint16(p.x),
			Y:          uint16(p.y),
			Muted:      p.muted,
			Name:       p.name,
			LevelName:  p.level,
			PingMillis: p.ping,
		})
	}
	return ws
}

func (s *Server) broadcastWorldState() {
	s.broadcast(s.worldState(), 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
