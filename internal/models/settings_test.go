package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_RoundTrip(t *testing.T) {
	db := setupTestDBWithSilentLogger(t, &Setting{})

	require.NoError(t, SetValue(db, "theme", "dark"))

	value, err := GetValue(db, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", value)
}

func TestSettings_MissingKeyReturnsEmpty(t *testing.T) {
	db := setupTestDBWithSilentLogger(t, &Setting{})

	value, err := GetValue(db, "nope")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestSettings_SetValueOverwrites(t *testing.T) {
	db := setupTestDBWithSilentLogger(t, &Setting{})

	require.NoError(t, SetValue(db, "theme", "dark"))
	require.NoError(t, SetValue(db, "theme", "light"))

	value, err := GetValue(db, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)

	var count int64
	db.Model(&Setting{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSettings_DeleteValue(t *testing.T) {
	db := setupTestDBWithSilentLogger(t, &Setting{})

	require.NoError(t, SetValue(db, "theme", "dark"))
	require.NoError(t, DeleteValue(db, "theme"))

	value, err := GetValue(db, "theme")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, DeleteValue(db, "theme"))
}
