package session

// Held exposes the number of live per-session locks.
func Held(l *Locker) int { return l.held() }
