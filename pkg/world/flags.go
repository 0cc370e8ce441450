package world

import "strings"

// PlayerFlags is a 32-bit permission bitfield, scoped to a single world
// unless a flag is explicitly marked server-level. Grounded on
// original_source/src/core/playerflags.cpp's Role table (Admin,
// Moderator, Owner, Co-owner, Collaborator) and the bit-composition idiom
// of playerflags.h (each rung built by OR-ing in the one below it). The
// two retrieved source snapshots disagreed on the exact rung list — the
// header's draft also named a "Helper" rung the later .cpp's ROLES table
// dropped — so this port follows spec.md §3's literal flag list (banned,
// edit, edit-draw, godmode, helper, owner, coowner, collab, muted,
// temporary variants, admin/moderator) as the authoritative contract,
// reinserting helper as the rung between collab and coowner.
type PlayerFlags uint32

const (
	PFNone PlayerFlags = 0

	PFMuted    PlayerFlags = 0x00000001
	PFGodmode  PlayerFlags = 0x00000008
	PFEdit     PlayerFlags = 0x00000020
	PFEditDraw PlayerFlags = 0x00000040 | PFEdit
	PFCollab   PlayerFlags = 0x00000080 | PFEditDraw | PFGodmode
	PFHelper   PlayerFlags = 0x00000100 | PFCollab
	PFCoowner  PlayerFlags = 0x00000200 | PFHelper
	PFOwner    PlayerFlags = 0x00000400 | PFCoowner // not persisted for the actual owner account
	PFBanned   PlayerFlags = 0x00000800

	// Temporary (world-session-scoped) variants, cleared on disconnect or /setcode -f.
	PFTmpHeavykick PlayerFlags = 0x00100000
	PFTmpMuted     PlayerFlags = 0x00200000
	PFTmpEdit      PlayerFlags = 0x02000000
	PFTmpEditDraw  PlayerFlags = 0x04000000 | PFTmpEdit
	PFTmpGodmode   PlayerFlags = 0x08000000

	// Server-level, not world-scoped.
	PFModerator PlayerFlags = 0x10000000
	PFAdmin     PlayerFlags = 0x20000000

	PFMaskEdit     = PFEdit | PFTmpEdit
	PFMaskEditDraw = PFEditDraw | PFTmpEditDraw
	PFMaskGodmode  = PFGodmode | PFTmpGodmode
	PFMaskServer   = PFModerator | PFAdmin
	PFMaskTmp      = PFTmpHeavykick | PFTmpMuted | PFTmpEdit | PFTmpEditDraw | PFTmpGodmode

	// Persisted to the world's player-flag table.
	PFMaskWorld = PFBanned | PFOwner | PFCoowner | PFHelper | PFCollab | PFEditDraw | PFGodmode | PFMuted
	// Sent per-player over the wire (persisted bits plus live temporaries).
	PFMaskSendPlayer = PFMaskWorld | PFMaskTmp
)

// Check reports whether every bit in mask is set.
func (f PlayerFlags) Check(mask PlayerFlags) bool { return f&mask == mask }

// Any reports whether at least one bit in mask is set, the right test for
// the PFMask* unions (persisted grant OR live temporary grant) where
// either source alone should satisfy the permission.
func (f PlayerFlags) Any(mask PlayerFlags) bool { return f&mask != 0 }

// Set replaces the bits covered by mask with those from nf, leaving the rest untouched.
func (f PlayerFlags) Set(nf, mask PlayerFlags) PlayerFlags {
	return (f &^ mask) | (nf & mask)
}

type role struct {
	name            string
	main            PlayerFlags
	defaults        PlayerFlags
	allowedToChange PlayerFlags
}

// roleLadder is checked top-down; the first matching main bit wins. The
// final entry (main == PFNone) always matches, mirroring get_role's
// sentinel-terminated scan in the reference. allowedToChange lists the
// bits a role may toggle on ANOTHER player via MayManipulate — this is
// role-grant rights, not a copy of the visual/edit mask the role itself holds.
var roleLadder = []role{
	{"admin", PFAdmin, 0, PFMaskServer | PFMaskWorld | PFMaskTmp},
	{"moderator", PFModerator, 0, PFMaskWorld | PFMaskTmp},
	{"owner", PFOwner, PFCoowner | PFHelper | PFEditDraw | PFGodmode, PFCoowner | PFHelper | PFMaskTmp},
	{"coowner", PFCoowner, PFHelper | PFEditDraw | PFGodmode, PFHelper | PFMaskTmp},
	{"helper", PFHelper, PFCollab | PFEditDraw | PFGodmode, PFMaskTmp},
	{"collab", PFCollab, PFEditDraw | PFGodmode, 0},
	{"normal", PFNone, 0, 0},
}

func getRole(flags PlayerFlags) role {
	for _, r := range roleLadder {
		if r.main == PFNone {
			return r
		}
		if flags&r.main == r.main {
			return r
		}
	}
	return roleLadder[len(roleLadder)-1]
}

// RoleName returns the highest-ranked role name for flags.
func (f PlayerFlags) RoleName() string { return getRole(f).name }

// MayManipulate reports the subset of mask that the actor (f) is allowed
// to change on target, or 0 if the actor lacks sufficient rank. The actor
// must hold change-bits the target's own role does not already hold,
// mirroring PlayerFlags::mayManipulate: a role can never countermand bits
// a peer or superior of the target already has standing to grant.
func (f PlayerFlags) MayManipulate(target PlayerFlags, mask PlayerFlags) PlayerFlags {
	ra := getRole(f)
	rt := getRole(target)
	if ra.allowedToChange&^rt.allowedToChange&mask != 0 {
		return ra.allowedToChange & mask
	}
	return 0
}

// Repair grants the default flags implied by the highest-ranked bit already set.
func (f PlayerFlags) Repair() PlayerFlags {
	return f | getRole(f).defaults
}

// ToHumanReadable renders a short role/flag summary for chat feedback.
func (f PlayerFlags) ToHumanReadable() string {
	r := getRole(f)
	var b strings.Builder
	if r.main != PFNone {
		b.WriteString("[Role: ")
		b.WriteString(r.name)
		b.WriteString("] ")
	}
	if f.Check(PFMuted) || f.Check(PFTmpMuted) {
		b.WriteString("muted ")
	}
	if r.main == PFNone {
		if f.Check(PFEditDraw) {
			b.WriteString("edit-draw ")
		} else if f.Any(PFMaskEdit) {
			b.WriteString("edit-simple ")
		}
		if f.Any(PFMaskGodmode) {
			b.WriteString("godmode ")
		}
	}
	return strings.TrimSpace(b.String())
}

// flagNameLUT mirrors STRING_TO_FLAGS_LUT, the chat-command vocabulary
// accepted by /fset, /fdel, and /ffilter.
var flagNameLUT = []struct {
	name string
	flag PlayerFlags
}{
	{"muted", PFMuted},
	{"edit-simple", PFEdit},
	{"edit-draw", PFEditDraw},
	{"godmode", PFGodmode},
	{"collaborator", PFCollab},
	{"helper", PFHelper},
	{"co-owner", PFCoowner},
	{"owner", PFOwner},
}

// FlagList returns the space-separated vocabulary accepted by the chat
// commands that grant or revoke named flags.
func FlagList() string {
	names := make([]string, len(flagNameLUT))
	for i, v := range flagNameLUT {
		names[i] = v.name
	}
	return strings.Join(names, " ")
}

// ParseFlagName resolves a chat-command flag name to its bit, or ok=false
// if input isn't recognised.
func ParseFlagName(input string) (PlayerFlags, bool) {
	for _, v := range flagNameLUT {
		if v.name == input {
			return v.flag, true
		}
	}
	return 0, false
}
