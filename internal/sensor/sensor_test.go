package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/nvm"
)

func TestRecordUpdateWidensExtrema(t *testing.T) {
	rec := NewRecord(1)
	rec.Update(10)
	assert.Equal(t, int16(10), rec.Value)
	assert.Equal(t, int16(10), rec.Max)
	assert.Equal(t, int16(10), rec.Min)

	rec.Update(5)
	assert.Equal(t, int16(10), rec.Max)
	assert.Equal(t, int16(5), rec.Min)

	rec.Update(20)
	assert.Equal(t, int16(20), rec.Max)
	assert.Equal(t, int16(5), rec.Min)
	assert.True(t, rec.Valid)
}

func TestExtremaStoreRoundTrips(t *testing.T) {
	region := nvm.NewMemRegion(6)
	store, err := OpenExtremaStore(region)
	require.NoError(t, err)

	rec := NewRecord(7)
	rec.Update(100)
	rec.Update(-50)
	require.NoError(t, store.Save(rec))

	var loaded Record
	ok, err := store.Load(&loaded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int16(100), loaded.Max)
	assert.Equal(t, int16(-50), loaded.Min)
}

func TestExtremaStoreRejectsCorruptCRC(t *testing.T) {
	region := nvm.NewMemRegion(6)
	store, err := OpenExtremaStore(region)
	require.NoError(t, err)

	rec := NewRecord(1)
	rec.Update(42)
	require.NoError(t, store.Save(rec))

	buf := make([]byte, 6)
	require.NoError(t, region.ReadAt(0, buf))
	buf[0] ^= 0xFF
	require.NoError(t, region.WriteAt(0, buf))

	var loaded Record
	ok, err := store.Load(&loaded)
	require.NoError(t, err)
	assert.False(t, ok)
}
