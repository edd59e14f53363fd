package discussion

// GuardCount reports the number of live serialization guards. Tests use it
// to check that terminal sessions release their guard.
func (e *Engine) GuardCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.guards)
}
