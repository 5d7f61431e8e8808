package store

import "fmt"

// CommitBatch writes every buffered snapshot and asset row within a single
// transaction. Units are written before assets; a failure rolls back the
// whole batch.
func (s *Store) CommitBatch(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range batch.Units {
		if err := recordUnitTx(tx, &batch.Units[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	for i := range batch.Assets {
		if err := recordAssetTx(tx, &batch.Assets[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
