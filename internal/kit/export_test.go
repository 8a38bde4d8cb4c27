package kit

// RetiredPools is the number of replaced pools still draining.
func (k *Kit) RetiredPools() int {
	k.poolMx.RLock()
	defer k.poolMx.RUnlock()
	return len(k.retired)
}
