package cohook

// noCopy is embedded in types that hold task or heap state by address
// and must not be copied after first use. go vet's copylocks check
// flags copies because it implements sync.Locker.
type noCopy struct{}

// Lock is a no-op implementation of sync.Locker.Lock.
func (*noCopy) Lock() {}

// Unlock is a no-op implementation of sync.Locker.Unlock.
func (*noCopy) Unlock() {}
