package engine

// Seeds is a server/client seed pair. Both are opaque ASCII strings and
// are hashed as-is, never hex-decoded.
type Seeds struct {
	Server string `json:"serverSeed"`
	Client string `json:"clientSeed"`
}

// NewSeeds generates a fresh server/client pair.
func NewSeeds() Seeds {
	return Seeds{Server: NewServerSeed(), Client: NewClientSeed()}
}

// Triple is a fully specified derivation input: the seed pair plus the
// nonce. A triple always reproduces the same derived numbers, and is
// recorded verbatim with every settled outcome for later verification.
type Triple struct {
	Seeds
	Nonce uint64 `json:"nonce"`
}

// Hash returns the fairness digest for the triple.
func (t Triple) Hash() string {
	return FairnessHash(t.Server, t.Client, t.Nonce)
}
