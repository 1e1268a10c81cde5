package externalapi

import "encoding/hex"

// HashSize is the number of bytes in a Hash.
const HashSize = 32

// Hash is a 32-byte content digest, the identifier of a checkpoint block
// (by baseHash or soeHash) or of any other hashed artifact in the system.
type Hash [HashSize]byte

// String returns the Hash as a lowercase hexadecimal string.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// Clone returns a copy of the hash.
func (hash *Hash) Clone() *Hash {
	if hash == nil {
		return nil
	}
	clone := *hash
	return &clone
}

// If this doesn't compile, the type definition changed and Equal/Clone need updating.
var _ Hash = [HashSize]byte{}

// Equal returns whether hash equals other.
func (hash *Hash) Equal(other *Hash) bool {
	if hash == nil || other == nil {
		return hash == other
	}
	return *hash == *other
}

// NewHashFromString parses a hex-encoded hash string.
func NewHashFromString(s string) (*Hash, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(bytes) != HashSize {
		return nil, hashLengthError(len(bytes))
	}
	var hash Hash
	copy(hash[:], bytes)
	return &hash, nil
}

type hashLengthError int

func (e hashLengthError) Error() string {
	return "invalid hash length"
}

// HashesEqual returns whether the given hash slices are equal, element-wise.
func HashesEqual(a, b []*Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i, hash := range a {
		if !hash.Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneHashes returns a clone of the given hash slice.
func CloneHashes(hashes []*Hash) []*Hash {
	clone := make([]*Hash, len(hashes))
	for i, hash := range hashes {
		clone[i] = hash.Clone()
	}
	return clone
}

// HashesToStrings returns the hex representation of every hash in the slice.
func HashesToStrings(hashes []*Hash) []string {
	strings := make([]string, len(hashes))
	for i, hash := range hashes {
		strings[i] = hash.String()
	}
	return strings
}

// HashesContain reports whether needle is present in haystack.
func HashesContain(haystack []*Hash, needle *Hash) bool {
	for _, hash := range haystack {
		if hash.Equal(needle) {
			return true
		}
	}
	return false
}
