package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ashureev/classgrade/internal/cache"
	"github.com/ashureev/classgrade/internal/domain"
	"github.com/spf13/cobra"
)

// seedRecord is one course in a seed file. A file holds a single record or
// an array of them.
type seedRecord struct {
	CourseID   string          `json:"courseId"`
	Assessment json.RawMessage `json:"assessment"`
}

type seedStats struct {
	Stored  int
	Skipped int
}

func newSeedCmd(g *globals) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "seed FILE...",
		Short: "Load assessments from JSON files into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wire(cmd.Context(), g.cfg, g.logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := seedFiles(cmd.Context(), a.cache, args, replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d, skipped %d\n", stats.Stored, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite courses that are already cached")
	return cmd
}

func seedFiles(ctx context.Context, c *cache.Cache, paths []string, replace bool) (seedStats, error) {
	var stats seedStats
	for _, path := range paths {
		records, err := readSeedFile(path)
		if err != nil {
			return stats, err
		}
		for _, rec := range records {
			stored, err := seedOne(ctx, c, rec, replace)
			if err != nil {
				return stats, fmt.Errorf("%s: %w", path, err)
			}
			if stored {
				stats.Stored++
			} else {
				stats.Skipped++
			}
		}
	}
	return stats, nil
}

func readSeedFile(path string) ([]seedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	data = bytes.TrimSpace(data)

	var records []seedRecord
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &records)
	} else {
		var rec seedRecord
		err = json.Unmarshal(data, &rec)
		records = []seedRecord{rec}
	}
	if err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return records, nil
}

func seedOne(ctx context.Context, c *cache.Cache, rec seedRecord, replace bool) (bool, error) {
	id, err := domain.NormalizeCourseID(rec.CourseID)
	if err != nil {
		return false, err
	}
	if !replace {
		if _, _, found, err := c.Lookup(ctx, id); err != nil {
			return false, err
		} else if found {
			return false, nil
		}
	}

	a, err := domain.DecodeAssessment(rec.Assessment)
	if err != nil {
		return false, fmt.Errorf("course %s: %w", id, err)
	}
	if _, err := c.Store(ctx, id, a); err != nil {
		return false, fmt.Errorf("course %s: %w", id, err)
	}
	return true, nil
}
