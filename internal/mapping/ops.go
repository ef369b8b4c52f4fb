package mapping

import "context"

// SetIndex binds roomID to index.
func SetIndex(ctx context.Context, s Store, roomID, index string) error {
	if index == "" {
		return ErrEmptyIndex
	}
	return s.Update(ctx, roomID, func(m *RoomMapping) error {
		m.IndexName = index
		return nil
	})
}

// SetName records the display name of roomID.
func SetName(ctx context.Context, s Store, roomID, name string) error {
	return s.Update(ctx, roomID, func(m *RoomMapping) error {
		m.DisplayName = name
		return nil
	})
}

// SetEntry writes index and name together. A nil argument leaves that field
// unchanged. When an index is given and no name exists yet, the room id is
// stored as the name.
func SetEntry(ctx context.Context, s Store, roomID string, index, name *string) error {
	if index != nil && *index == "" {
		return ErrEmptyIndex
	}
	return s.Update(ctx, roomID, func(m *RoomMapping) error {
		if index != nil {
			m.IndexName = *index
		}
		switch {
		case name != nil && *name != "":
			m.DisplayName = *name
		case index != nil && m.DisplayName == "":
			m.DisplayName = roomID
		}
		return nil
	})
}

// GetIndex returns the index bound to roomID, or "" with ok false.
func GetIndex(ctx context.Context, s Store, roomID string) (string, bool, error) {
	m, ok, err := s.Lookup(ctx, roomID)
	if err != nil || !ok || m.IndexName == "" {
		return "", false, err
	}
	return m.IndexName, true, nil
}

// GetName returns the stored display name of roomID, or "" with ok false.
func GetName(ctx context.Context, s Store, roomID string) (string, bool, error) {
	m, ok, err := s.Lookup(ctx, roomID)
	if err != nil || !ok || m.DisplayName == "" {
		return "", false, err
	}
	return m.DisplayName, true, nil
}
