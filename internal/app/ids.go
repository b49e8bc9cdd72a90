package app

import "github.com/google/uuid"

func newID() string {
	return uuid.NewString()
}

// tokenIDFor derives a stable id for catalog entries seeded without one, so
// repeated seeding of the same symbol/network pair is a no-op.
func tokenIDFor(network, symbol string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("token:"+network+":"+symbol)).String()
}
