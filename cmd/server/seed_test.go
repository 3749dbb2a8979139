package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/classgrade/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedAssessment = `{"score":70,"creditHours":3,"summary":"Steady problem sets.","timeLoadHours":3.5,` +
	`"rigor":60,"assessmentIntensity":55,"projectIntensity":20,"prerequisites":[],"corequisites":[],` +
	`"tags":["Proofs"],"evidenceSnippets":["weekly psets"],"confidence":0.8}`

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedFiles(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(0), time.Hour)

	single := writeSeed(t, "one.json", `{"courseId":"cse 2331","assessment":`+seedAssessment+`}`)
	many := writeSeed(t, "many.json", `[
		{"courseId":"MATH2568","assessment":`+seedAssessment+`},
		{"courseId":"CSE2331","assessment":`+seedAssessment+`}
	]`)

	stats, err := seedFiles(ctx, c, []string{single, many}, false)
	require.NoError(t, err)
	assert.Equal(t, seedStats{Stored: 2, Skipped: 1}, stats)

	e, fresh, found, err := c.Lookup(ctx, "CSE2331")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, 70, e.Assessment.Score)
	assert.Equal(t, 50, e.Assessment.Pace, "absent optional fields get defaults")

	stats, err = seedFiles(ctx, c, []string{many}, true)
	require.NoError(t, err)
	assert.Equal(t, seedStats{Stored: 2}, stats)
}

func TestSeedRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(0), time.Hour)

	badID := writeSeed(t, "bad-id.json", `{"courseId":"??","assessment":`+seedAssessment+`}`)
	_, err := seedFiles(ctx, c, []string{badID}, false)
	require.Error(t, err)

	badScore := writeSeed(t, "bad-score.json", `{"courseId":"CSE2331","assessment":{"score":500}}`)
	_, err = seedFiles(ctx, c, []string{badScore}, false)
	require.Error(t, err)

	_, err = seedFiles(ctx, c, []string{filepath.Join(t.TempDir(), "missing.json")}, false)
	require.Error(t, err)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
