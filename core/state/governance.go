package state

// Authority returns the current governance identity.
func (m *Manager) Authority() ([20]byte, bool, error) {
	var addr [20]byte
	ok, err := m.KVGet(govAuthorityKey, &addr)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return addr, true, nil
}

// SetAuthority stores the governance identity. Also used at genesis to seed
// the initial authority.
func (m *Manager) SetAuthority(addr [20]byte) error {
	return m.KVPut(govAuthorityKey, addr)
}

// PendingAuthority returns the nominated successor, if any.
func (m *Manager) PendingAuthority() ([20]byte, bool, error) {
	var stored storedPendingAuthority
	ok, err := m.KVGet(govPendingKey, &stored)
	if err != nil || !ok || !stored.Set {
		return [20]byte{}, false, err
	}
	return stored.Addr, true, nil
}

// SetPendingAuthority nominates a successor.
func (m *Manager) SetPendingAuthority(addr [20]byte) error {
	return m.KVPut(govPendingKey, storedPendingAuthority{Addr: addr, Set: true})
}

// ClearPendingAuthority removes the nomination after acceptance.
func (m *Manager) ClearPendingAuthority() error {
	return m.KVPut(govPendingKey, storedPendingAuthority{})
}

type storedPendingAuthority struct {
	Addr [20]byte
	Set  bool
}
