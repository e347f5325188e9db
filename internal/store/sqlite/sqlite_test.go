package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store/sqlite"
	"github.com/rshade/carbon-offload/internal/store/storetest"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return open(t, filepath.Join(t.TempDir(), "carbon.db"))
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carbon.db")
	ctx := context.Background()

	first, err := sqlite.Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = first.ReplaceRegions(ctx, []regions.CloudRegion{{
		ID:              "aws:eu-north-1",
		Provider:        "aws",
		Region:          "eu-north-1",
		RegionName:      "Europe (Stockholm)",
		Country:         "Sweden",
		CarbonIntensity: 8,
		Available:       true,
		Metadata:        &regions.Metadata{Timezone: "Europe/Stockholm"},
	}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := open(t, path)
	r, err := second.GetRegion(ctx, "aws", "eu-north-1")
	require.NoError(t, err)
	assert.Equal(t, "Sweden", r.Country)
	require.NotNil(t, r.Metadata)
	assert.Equal(t, "Europe/Stockholm", r.Metadata.Timezone)
}
