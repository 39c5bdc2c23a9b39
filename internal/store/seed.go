package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// SeedFromFile loads product records from a JSON array file and upserts them.
// Run via the -seed flag; products are read-only reference data afterwards.
func SeedFromFile(ctx context.Context, s Store, filePath string) (int, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file %s: %w", filePath, err)
	}

	var products []Product
	if err := json.Unmarshal(contentBytes, &products); err != nil {
		return 0, fmt.Errorf("failed to parse seed file %s: %w", filePath, err)
	}

	count := 0
	for i := range products {
		if err := s.UpsertProduct(ctx, &products[i]); err != nil {
			return count, fmt.Errorf("failed to seed product %s: %w", products[i].ID, err)
		}
		count++
	}
	return count, nil
}
