// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// hashMerkleBranches returns the double SHA256 of the concatenation of left
// and right.
func hashMerkleBranches(left, right *chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// MerkleRoot reduces hashes pairwise until one remains.  A level with an odd
// count pairs its last hash with itself.  An empty list yields the zero hash
// and a single hash is its own root.
func MerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}

	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashMerkleBranches(&level[i], &level[i+1]))
		}
		level = next
	}
	return level[0]
}

// TxMerkleRoot returns the merkle root over the transaction hashes of txns.
func TxMerkleRoot(txns []*btcutil.Tx) chainhash.Hash {
	hashes := make([]chainhash.Hash, len(txns))
	for i, tx := range txns {
		hashes[i] = *tx.Hash()
	}
	return MerkleRoot(hashes)
}
