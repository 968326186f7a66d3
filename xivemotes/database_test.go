package xivemotes

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbPath := filepath.Join(tmpdir, "test.sqlite3")
	db, err := CreateDB(
		context.Background(),
		"sqlite",
		dbPath,
	)
	if err != nil {
		t.Fatalf("error creating test database: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

func setupTestStore(t testing.TB) *Store {
	t.Helper()
	db := setupTestDB(t)
	return NewStore(db, slog.Default(), false)
}

// registerTestEmote inserts an emote row directly, for tests that need
// one to already exist.
func registerTestEmote(t testing.TB, s *Store, xivID int, command string) Emote {
	t.Helper()
	require.NoError(
		t,
		s.RegisterEmote(context.Background(), xivID, command),
	)
	var emote Emote
	require.NoError(
		t,
		s.DB().Where("xiv_id = ?", xivID).First(&emote).Error,
	)
	return emote
}

func TestCreateDBMigratesModels(t *testing.T) {
	db := setupTestDB(t)

	mg := db.Migrator()
	assert.True(t, mg.HasTable(&User{}))
	assert.True(t, mg.HasTable(&Guild{}))
	assert.True(t, mg.HasTable(&Emote{}))
	assert.True(t, mg.HasTable(&EmoteLog{}))
	assert.True(t, mg.HasTable(&EmoteLogTag{}))
}

func TestCreateDBRejectsUnknownType(t *testing.T) {
	_, err := CreateDB(context.Background(), "mssql", "whatever")
	require.Error(t, err)
}

func TestUserDiscordIDUnique(t *testing.T) {
	db := setupTestDB(t)

	u1 := User{DiscordID: PadDiscordID("123")}
	require.NoError(t, db.Create(&u1).Error)

	u2 := User{DiscordID: PadDiscordID("123")}
	err := db.Create(&u2).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
