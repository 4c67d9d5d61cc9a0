package translate

// Poison marks the pipeline poisoned, standing in for a worker panic that
// tests cannot provoke deterministically.
func (p *Pipeline) Poison() { p.poisoned.Store(true) }
