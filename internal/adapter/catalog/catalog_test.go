package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func product(id, site string, scan time.Time) domain.ProductEvent {
	return domain.ProductEvent{
		ID:             id,
		Site:           site,
		ScanTime:       scan,
		RadarFile:      "/data/" + id + ".nc",
		SoundingSource: "/data/sonde.nc",
		OutputPath:     "/out/" + id + ".nc",
		Rays:           72,
		Gates:          120,
		GateCounts:     map[string]int{"rain": 40, "no_scatter": 100},
		RainRate:       domain.RainStats{Gates: 40, Mean: 3.5, Max: 21.25},
		ProcessedAt:    scan.Add(2 * time.Minute),
	}
}

func TestRecordAndGet(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	scan := time.Date(2024, 5, 20, 21, 3, 0, 0, time.UTC)
	want := product("scan-1", "sgp", scan)

	require.NoError(t, c.Record(ctx, []domain.ProductEvent{want}))

	got, err := c.Get(ctx, "scan-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("product mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_Upsert(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	ev := product("scan-1", "sgp", time.Date(2024, 5, 20, 21, 3, 0, 0, time.UTC))
	require.NoError(t, c.Record(ctx, []domain.ProductEvent{ev}))

	ev.OutputPath = "/out/reprocessed.nc"
	require.NoError(t, c.Record(ctx, []domain.ProductEvent{ev}))

	got, err := c.Get(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "/out/reprocessed.nc", got.OutputPath)

	all, err := c.List(ctx, "sgp", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGet_NotFound(t *testing.T) {
	_, err := testCatalog(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_OrderAndFilter(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 20, 21, 0, 0, 0, time.UTC)
	require.NoError(t, c.Record(ctx, []domain.ProductEvent{
		product("a", "sgp", base),
		product("b", "sgp", base.Add(10*time.Minute)),
		product("c", "cor", base.Add(5*time.Minute)),
		product("d", "sgp", base.Add(20*time.Minute)),
	}))

	got, err := c.List(ctx, "sgp", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	none, err := c.List(ctx, "ena", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecord_Empty(t *testing.T) {
	require.NoError(t, testCatalog(t).Record(context.Background(), nil))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Record(context.Background(), []domain.ProductEvent{product("x", "sgp", time.Unix(0, 0).UTC())}))
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(context.Background()))
	_, err = reopened.Get(context.Background(), "x")
	assert.NoError(t, err)
}
