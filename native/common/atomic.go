package common

// Journal is the snapshot surface of the state manager.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(int)
}

// Atomic runs fn and reverts every state change it made when it fails. A nil
// journal runs fn without protection.
func Atomic(j Journal, fn func() error) error {
	if j == nil {
		return fn()
	}
	snap := j.Snapshot()
	if err := fn(); err != nil {
		j.RevertToSnapshot(snap)
		return err
	}
	return nil
}
