package core

// SecurityOracle signs login challenges and supplies the brand-specific half
// of the certificate. It is assumed to be safe for concurrent use.
type SecurityOracle interface {
	Ready() bool
	BrandCertFragment(brand Brand) ([]byte, error)
	SignChallenge(challenge []byte) ([]byte, error)
}

// MangleFunc merges a brand certificate with the oracle's fragment.
// It must be pure.
type MangleFunc func(brandCert, fragment []byte) []byte
