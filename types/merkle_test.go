package types

import (
	"testing"
)

func makeLeaves(n int) []Hash {
	leaves := make([]Hash, n)
	for i := range leaves {
		leaves[i] = HashBytes([]byte{byte(i)})
	}
	return leaves
}

func TestMerkleRootEmpty(t *testing.T) {
	root := MerkleRoot(nil)
	if !HashEqual(root, HashBytes(nil)) {
		t.Error("empty tree root should be the hash of the empty string")
	}
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	leaf := HashBytes([]byte("leaf"))
	root := MerkleRoot([]Hash{leaf})
	if !HashEqual(root, leaf) {
		t.Error("single-leaf root should equal the leaf")
	}
}

func TestMerkleRootTwoLeaves(t *testing.T) {
	leaves := makeLeaves(2)
	root := MerkleRoot(leaves)

	expected := hashNode(leaves[0], leaves[1])
	if !HashEqual(root, expected) {
		t.Error("two-leaf root should be H(left || right)")
	}
}

func TestMerkleRootOddLeaves(t *testing.T) {
	// An odd level duplicates its last node
	leaves := makeLeaves(3)
	root := MerkleRoot(leaves)

	left := hashNode(leaves[0], leaves[1])
	right := hashNode(leaves[2], leaves[2])
	expected := hashNode(left, right)
	if !HashEqual(root, expected) {
		t.Error("three-leaf root should duplicate the last leaf")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	leaves := makeLeaves(7)
	r1 := MerkleRoot(leaves)
	r2 := MerkleRoot(leaves)
	if !HashEqual(r1, r2) {
		t.Error("same leaves should produce the same root")
	}
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	leaves := makeLeaves(4)
	r1 := MerkleRoot(leaves)

	swapped := make([]Hash, len(leaves))
	copy(swapped, leaves)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	r2 := MerkleRoot(swapped)

	if HashEqual(r1, r2) {
		t.Error("reordered leaves should change the root")
	}
}

func TestMerkleRootDoesNotMutateInput(t *testing.T) {
	leaves := makeLeaves(3)
	before := make([]Hash, len(leaves))
	copy(before, leaves)

	MerkleRoot(leaves)

	for i := range leaves {
		if !HashEqual(leaves[i], before[i]) {
			t.Fatalf("leaf %d mutated", i)
		}
	}
	if len(leaves) != 3 {
		t.Error("leaf slice length changed")
	}
}
