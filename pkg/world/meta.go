package world

import (
	"errors"
	"sort"
	"time"

	"github.com/StoreStation/eeland/pkg/wire"
)

// Type distinguishes the four ID-prefix-encoded world kinds. Grounded on
// original_source/src/core/worldmeta.h's WorldMeta::Type and idToType.
type Type int

const (
	TypeInvalid Type = iota
	TypeTmpSimple
	TypeTmpDraw
	TypePersistent
	TypeReadonly
)

// IDToType classifies a world ID by its first character: 'P'ersistent,
// 'T'mp (simple or draw; disambiguated elsewhere by the room's config),
// 'I'mport/readonly.
func IDToType(id string) Type {
	if id == "" {
		return TypeInvalid
	}
	switch id[0] {
	case 'P':
		return TypePersistent
	case 'T':
		return TypeTmpDraw
	case 'I':
		return TypeReadonly
	}
	return TypeInvalid
}

// ChatLine is one entry in a world's bounded chat-history ring.
type ChatLine struct {
	Timestamp time.Time
	Name      string
	Message   string
}

const defaultChatHistoryLimit = 50

// Meta is a world's shared, persistable metadata: identity, permissions,
// gate timers, and chat history. Grounded on
// original_source/src/core/worldmeta.h/.cpp.
type Meta struct {
	ID       string
	Title    string
	Owner    string
	IsPublic bool
	Type     Type
	EditCode string

	SpawnIndex  int
	OnlineCount int
	Plays       int

	// Keys holds the activation state of the three coloured gate timers.
	Keys [3]bool
	// SwitchState is the shared on/off toggle driven by switch blocks.
	SwitchState bool

	ChatHistory      []ChatLine
	chatHistoryLimit int

	PendingScriptEvents map[string][]ScriptEvent

	playerFlags map[string]PlayerFlags
}

// ScriptEvent is a typed tuple queued for delivery to a world's Lua host
// (U8, STR16, or three U8s), mirroring the reference's ScriptEventMap entries.
type ScriptEvent struct {
	Name string
	U8   []uint8
	Str  string
}

// NewMeta creates metadata for a freshly created world.
func NewMeta(id, owner string) *Meta {
	return &Meta{
		ID:                  id,
		Owner:               owner,
		Type:                IDToType(id),
		SpawnIndex:          -1,
		chatHistoryLimit:    defaultChatHistoryLimit,
		PendingScriptEvents: make(map[string][]ScriptEvent),
		playerFlags:         make(map[string]PlayerFlags),
	}
}

// GetPlayerFlags returns name's flags in this world, falling back to the
// code-gated default grant (edit or edit-draw) when no edit code is set
// and the world is a temporary room. Mirrors WorldMeta::getPlayerFlags.
func (m *Meta) GetPlayerFlags(name string) PlayerFlags {
	if pf, ok := m.playerFlags[name]; ok {
		return pf
	}
	if m.EditCode == "" {
		switch m.Type {
		case TypeTmpSimple:
			return PFEdit
		case TypeTmpDraw:
			return PFEditDraw
		}
	}
	return PFNone
}

// SetPlayerFlags overwrites name's stored flags outright.
func (m *Meta) SetPlayerFlags(name string, pf PlayerFlags) {
	m.playerFlags[name] = pf
}

// ChangePlayerFlags applies a masked update to name's flags, leaving bits
// outside mask untouched.
func (m *Meta) ChangePlayerFlags(name string, changed, mask PlayerFlags) {
	pf := m.GetPlayerFlags(name)
	m.playerFlags[name] = pf.Set(changed, mask)
}

// AllPlayerFlags returns the live flag table; callers must not retain it
// past the caller's own lock scope.
func (m *Meta) AllPlayerFlags() map[string]PlayerFlags {
	return m.playerFlags
}

// TrimChatHistory removes the oldest entries until at most nelements remain.
func (m *Meta) TrimChatHistory(nelements int) {
	if len(m.ChatHistory) <= nelements {
		return
	}
	m.ChatHistory = m.ChatHistory[len(m.ChatHistory)-nelements:]
}

// PushChat appends a chat line, trimming to the configured history limit.
func (m *Meta) PushChat(name, message string, at time.Time) {
	m.ChatHistory = append(m.ChatHistory, ChatLine{Timestamp: at, Name: name, Message: message})
	m.TrimChatHistory(m.chatHistoryLimit)
}

var errIncompatiblePlayerFlagsVersion = errors.New("world: incompatible player-flags version")

// flagsVersion is the on-disk encoding version, bumped whenever the
// persisted bit layout changes. Mirrors readPlayerFlags' version gate.
const flagsVersion = 5

// ReadPlayerFlags decodes the versioned flag table written by
// WritePlayerFlags. An empty buffer (a manually created world) leaves
// the table untouched.
func (m *Meta) ReadPlayerFlags(buf *wire.Buffer) error {
	if buf.Remaining() == 0 {
		return nil
	}
	version, err := buf.ReadU8()
	if err != nil {
		return err
	}
	if version != flagsVersion {
		return errIncompatiblePlayerFlagsVersion
	}

	mask, err := buf.ReadU32()
	if err != nil {
		return err
	}

	m.playerFlags = make(map[string]PlayerFlags)
	for {
		name, err := buf.ReadStr16()
		if err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		flags, err := buf.ReadU32()
		if err != nil {
			return err
		}
		m.playerFlags[name] = PlayerFlags(flags) & PlayerFlags(mask)
	}
}

// WritePlayerFlags encodes every player's persisted flag bits (PFMaskWorld),
// skipping the world owner (whose rights are implicit, not stored) and
// anyone with no persisted bits set.
func (m *Meta) WritePlayerFlags(buf *wire.Buffer) {
	buf.WriteU8(flagsVersion)
	buf.WriteU32(uint32(PFMaskWorld))

	names := make([]string, 0, len(m.playerFlags))
	for name := range m.playerFlags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		masked := m.playerFlags[name] & PFMaskWorld
		if masked == 0 || name == m.Owner {
			continue
		}
		_ = buf.WriteStr16(name)
		buf.WriteU32(uint32(masked))
	}
	_ = buf.WriteStr16("")
}
