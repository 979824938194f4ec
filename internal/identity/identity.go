// Package identity maps anonymous speaker labels to the user's profiles.
package identity

import (
	"log/slog"
	"sort"

	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// OwnerRelationship marks the profile that belongs to the account owner.
const OwnerRelationship = "自己"

// Profile is the subset of a contact record the resolver needs.
type Profile struct {
	ID           string
	Name         string
	Relationship string
}

// IsOwner reports whether p is the account owner's own profile.
func (p Profile) IsOwner() bool { return p.Relationship == OwnerRelationship }

// DisplayName renders "name（relationship）", or just the name.
func (p Profile) DisplayName() string {
	if p.Relationship == "" || p.IsOwner() {
		return p.Name
	}
	return p.Name + "（" + p.Relationship + "）"
}

// Owner returns the first owner profile.
func Owner(profiles []Profile) (Profile, bool) {
	for _, p := range profiles {
		if p.IsOwner() {
			return p, true
		}
	}
	return Profile{}, false
}

// Resolve returns speaker label -> profile id.
//
// One speaker and one profile map to each other. Otherwise only the
// self-flagged speaker is mapped, and only onto the owner profile. Every other
// label stays unmapped: an unrecognized voice is never attached to an existing
// contact.
func Resolve(turns []transcript.Turn, profiles []Profile) map[string]string {
	mapping := make(map[string]string)
	speakers := transcript.Speakers(turns)

	if len(speakers) == 1 && len(profiles) == 1 {
		mapping[speakers[0]] = profiles[0].ID
		return mapping
	}

	self := transcript.SelfSpeaker(turns)
	if self == "" {
		return mapping
	}
	if owner, ok := Owner(profiles); ok {
		mapping[self] = owner.ID
	}
	return mapping
}

// Names returns profile id -> display name for every mapped profile.
func Names(mapping map[string]string, profiles []Profile) map[string]string {
	byID := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	names := make(map[string]string, len(mapping))
	for _, id := range mapping {
		if p, ok := byID[id]; ok && p.Name != "" {
			names[id] = p.DisplayName()
		}
	}
	return names
}

// ProfileIDs returns the distinct mapped profile ids, sorted.
func ProfileIDs(mapping map[string]string) []string {
	seen := make(map[string]bool, len(mapping))
	ids := make([]string, 0, len(mapping))
	for _, id := range mapping {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RegisterVoiceprint enrolls a profile's reference audio and returns the
// voiceprint id. No biometric backend is wired yet, so the id is derived from
// the profile. An empty audio reference enrolls nothing.
func RegisterVoiceprint(profileID, audioRef string) string {
	if audioRef == "" {
		slog.Warn("voiceprint registration skipped", "profile_id", profileID, "reason", "no audio")
		return ""
	}
	id := "mock_vp_" + profileID
	slog.Info("voiceprint registered", "profile_id", profileID, "voiceprint_id", id)
	return id
}
