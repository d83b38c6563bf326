package cache

// Flush blocks until pending cache writes are visible.
func Flush(e *Embedder) { e.cache.Wait() }
