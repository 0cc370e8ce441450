// Package serverproto implements the server-side half of the wire
// protocol: the per-peer connection-state lattice, the Packet2Server
// dispatch table, the Hello/Join handshakes, and the per-tick broadcast
// step loop. See SPEC_FULL.md [MODULE serverproto]. Grounded on
// spec.md §4.7 and the teacher's packet_handler.go switch-on-action-code
// dispatch style, generalized from a hard-coded switch to a table
// validated once at init so a missing or duplicate entry is a build-time
// fact rather than a runtime surprise.
package serverproto

import "github.com/StoreStation/eeland/pkg/env"

// Action is a client→server packet action code, the first u16 field of
// every datagram per spec.md §6.1.
type Action uint16

const (
	ActionQuack        Action = 0
	ActionHello        Action = 1
	ActionAuth         Action = 2
	ActionGetLobby     Action = 3
	ActionJoin         Action = 4
	ActionLeave        Action = 5
	ActionMove         Action = 6
	ActionChat         Action = 7
	ActionPlaceBlock   Action = 8
	ActionOnTouchBlock Action = 9
	ActionGodMode      Action = 10
	ActionSmiley       Action = 11
	ActionFriendAction Action = 12
	ActionMediaRequest Action = 13
)

// actionSpec names one dispatch-table row: the minimum ConnState a peer
// must be in for the action to be handled, and the handler itself.
type actionSpec struct {
	name     string
	minState env.ConnState
	handle   func(d *Dispatcher, p *env.Player, data []byte) error
}

// dispatchTable is Packet2Server from spec.md §4.7, indexed by Action.
// Populated by a var block below and checked for completeness by init.
var dispatchTable = map[Action]actionSpec{
	ActionQuack:        {"Quack", env.StateInvalid, handleQuack},
	ActionHello:        {"Hello", env.StateInvalid, handleHello},
	ActionAuth:         {"Auth", env.StateIdle, handleAuth},
	ActionGetLobby:     {"GetLobby", env.StateIdle, handleGetLobby},
	ActionJoin:         {"Join", env.StateIdle, handleJoin},
	ActionLeave:        {"Leave", env.StateWorldJoin, handleLeave},
	ActionMove:         {"Move", env.StateWorldPlay, handleMove},
	ActionChat:         {"Chat", env.StateWorldPlay, handleChat},
	ActionPlaceBlock:   {"PlaceBlock", env.StateWorldPlay, handlePlaceBlock},
	ActionOnTouchBlock: {"OnTouchBlock", env.StateWorldPlay, handleOnTouchBlock},
	ActionGodMode:      {"GodMode", env.StateWorldPlay, handleGodMode},
	ActionSmiley:       {"Smiley", env.StateWorldPlay, handleSmiley},
	ActionFriendAction: {"FriendAction", env.StateIdle, handleFriendAction},
	ActionMediaRequest: {"MediaRequest", env.StateInvalid, handleMediaRequest},
}

// minActionCode and maxActionCode bound the table for the completeness
// check in init.
const (
	minActionCode = ActionQuack
	maxActionCode = ActionMediaRequest
)

func init() {
	for code := minActionCode; code <= maxActionCode; code++ {
		if _, ok := dispatchTable[code]; !ok {
			panic("serverproto: dispatch table missing action code")
		}
	}
}

// satisfies reports whether have meets the minimum state required for
// spec, per the lattice Invalid < Idle < WorldJoin < WorldPlay. StateAny
// is modeled as StateInvalid, the lattice's bottom: every connected peer
// (Idle or above) satisfies it, and Quack/Hello/MediaRequest additionally
// accept a peer that has not even completed Hello, so satisfies special-
// cases those three actions to accept any known ConnState value.
func (s actionSpec) satisfies(have env.ConnState) bool {
	if s.minState == env.StateInvalid {
		return true
	}
	return have >= s.minState
}
