package battle

import (
	"encoding/json"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// SnapshotVersion is the current snapshot format
const SnapshotVersion = 1

type snapshot struct {
	Version int      `json:"version"`
	Session *Session `json:"session"`
}

// Encode serializes a session into a versioned snapshot blob
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.InvalidArgument("session is required")
	}
	data, err := json.Marshal(snapshot{Version: SnapshotVersion, Session: s})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode session %s", s.ID)
	}
	return data, nil
}

// Decode restores a session from a snapshot blob
func Decode(blob []byte) (*Session, error) {
	if len(blob) == 0 {
		return nil, errors.InvalidArgument("snapshot is empty")
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeDataLoss, "failed to decode snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, errors.InvalidArgumentf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Session == nil {
		return nil, errors.DataLoss("snapshot has no session")
	}

	s := snap.Session
	if s.Participants == nil {
		s.Participants = make(map[string]*Participant)
	}
	if s.Groups == nil {
		s.Groups = make(map[string]*SharingGroup)
	}
	return s, nil
}
