// Diffie-Hellman group for the OTR AKE, as fixed by the OTR protocol
// notes section 4 (1536-bit MODP group, RFC 3526 group 5, generator 2).

package crypto

import (
	"crypto/rand"
	"math/big"
)

// DH constants from RFC 3526 group 5.
const (
	// DHPrivateKeySizeBytes is the minimum entropy of a freshly generated
	// DH private exponent.
	DHPrivateKeySizeBytes = 40

	// dhGeneratorValue is the group generator (g).
	dhGeneratorValue = 2
)

var dhPrime *big.Int
var dhGenerator *big.Int
var dhOrderMinusOne *big.Int

func init() {
	dhPrime, _ = new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD"+
			"129024E088A67CC74020BBEA63B139B22514A08798E3404"+
			"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C"+
			"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406"+
			"B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE"+
			"45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD"+
			"24CF5F83655D23DCA3AD961C62F356208552BB9ED529077"+
			"096966D670C354E4ABC9804F1746C08CA18217C32905E46"+
			"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF"+
			"06F4C52C9DE2BCBF6955817183995497CEA956AE515D226"+
			"18985FA782CE5A71E6B1AFCFB4CB3C9AB86A4FC53F44BB8"+
			"70DB6C88FDBDE987FB51DE3D7840C2F3A2BD2BF49DCC4A6D"+
			"C8A2AAC00FA7FC2E05CED91C61A92E77C5DF2D37AFC2F3C"+
			"46C7A637DBCED4BD34D0A4E4FF72F8B4A06CA91289AE6E0"+
			"FD5A89C7F6FD5E0D0D43F1FF4D2225F5EB6868C9D87F2EE"+
			"FAB39F4DBE4D2F6DCA5CFAA7DBE3D56B7432D0E99FE5F67"+
			"F3BC6A66001B8C87E6F73A6ED8A3D2A8AAA34E6F24B00F3",
		16)
	dhGenerator = big.NewInt(dhGeneratorValue)
	dhOrderMinusOne = new(big.Int).Sub(dhPrime, big.NewInt(2))
}

// DHKeyPair is an ephemeral Diffie-Hellman key pair in the OTR group.
type DHKeyPair struct {
	private *big.Int
	public  *big.Int
}

// DHPublicKey returns the public value g^x mod p.
func (kp *DHKeyPair) DHPublicKey() *big.Int {
	return new(big.Int).Set(kp.public)
}

// DHPrivateKey returns the private exponent x.
func (kp *DHKeyPair) DHPrivateKey() *big.Int {
	return new(big.Int).Set(kp.private)
}

// DHGenerateKeyPair generates a fresh ephemeral DH key pair.
func DHGenerateKeyPair() (*DHKeyPair, error) {
	x, err := rand.Int(rand.Reader, dhOrderMinusOne)
	if err != nil {
		return nil, err
	}
	x.Add(x, big.NewInt(1))

	pub := new(big.Int).Exp(dhGenerator, x, dhPrime)
	return &DHKeyPair{private: x, public: pub}, nil
}

// DHKeyPairFromPrivate rebuilds a key pair from a known private exponent,
// recomputing the public value, for callers that need deterministic keys.
func DHKeyPairFromPrivate(x *big.Int) *DHKeyPair {
	pub := new(big.Int).Exp(dhGenerator, x, dhPrime)
	return &DHKeyPair{private: new(big.Int).Set(x), public: pub}
}

// DHValidatePublicValue checks that a received public value is in the
// required range 2 <= y <= p-2, rejecting the small subgroup values that
// would otherwise let a peer force a degenerate shared secret.
func DHValidatePublicValue(y *big.Int) error {
	if y == nil {
		return ErrInvalidPublicValue
	}
	if y.Cmp(big.NewInt(2)) < 0 || y.Cmp(dhOrderMinusOne) > 0 {
		return ErrInvalidPublicValue
	}
	return nil
}

// DHSharedSecret computes g^(xy) mod p given our private exponent and the
// peer's public value.
func DHSharedSecret(kp *DHKeyPair, peerPublic *big.Int) (*big.Int, error) {
	if err := DHValidatePublicValue(peerPublic); err != nil {
		return nil, err
	}
	return new(big.Int).Exp(peerPublic, kp.private, dhPrime), nil
}

// DHPrime returns the group prime, exposed for wire encode/decode length
// calculations.
func DHPrime() *big.Int {
	return new(big.Int).Set(dhPrime)
}
