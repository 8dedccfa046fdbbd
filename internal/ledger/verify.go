package ledger

import (
	"bytes"
	"context"
	"fmt"
)

// VerifyChain walks the manifests table in insertion order and checks
// that each row's row_hash matches chainHash(previous row_hash, raw_json).
// It returns the commit tree hashes of any rows whose chain link is
// broken, which can only happen from direct database tampering or
// corruption: application code never updates a row after insertion.
func (s *Store) VerifyChain(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_tree_hash, raw_json, prev_hash, row_hash
		FROM manifests
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: query chain: %w", err)
	}
	defer rows.Close()

	var broken []string
	expectedPrev := [32]byte{}

	for rows.Next() {
		var treeHash string
		var rawJSON, prevHash, rowHash []byte
		if err := rows.Scan(&treeHash, &rawJSON, &prevHash, &rowHash); err != nil {
			return nil, fmt.Errorf("ledger: scan chain row: %w", err)
		}

		if !bytes.Equal(prevHash, expectedPrev[:]) {
			broken = append(broken, treeHash)
		} else {
			want := chainHash(expectedPrev, rawJSON)
			if !bytes.Equal(want[:], rowHash) {
				broken = append(broken, treeHash)
			}
		}

		copy(expectedPrev[:], rowHash)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate chain: %w", err)
	}
	return broken, nil
}

// Count returns the total number of recorded manifests.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM manifests`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}
