package types

// LeafHash computes the Merkle leaf hash for an encoded log entry
func LeafHash(leafBytes []byte) Hash {
	return HashBytes(leafBytes)
}

// hashNode hashes two child nodes: H(left || right)
func hashNode(a, b Hash) Hash {
	buf := make([]byte, 0, 2*HashSize)
	buf = append(buf, a.Data...)
	buf = append(buf, b.Data...)
	return HashBytes(buf)
}

// MerkleRoot computes the Merkle root of the given leaves.
// An empty set hashes to H(""). A level with an odd number of nodes
// duplicates its last node.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return HashBytes(nil)
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashNode(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}
