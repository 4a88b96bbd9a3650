package guild

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prasetya0/guildlore/internal/log"
)

// fakeRow implements pgx.Row over string columns.
type fakeRow struct {
	values []string
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		*(dest[i].(*string)) = r.values[i]
	}
	return nil
}

// fakeRows implements pgx.Rows over single-column string rows.
type fakeRows struct {
	values []string
	idx    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.values[r.idx-1]
	return nil
}

// fakeDB implements DB, recording executed statements.
type fakeDB struct {
	row     *fakeRow
	rows    *fakeRows
	execSQL []string
	execTag pgconn.CommandTag
	execErr error
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	return db.execTag, db.execErr
}

func (db *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return db.rows, nil
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return db.row
}

func TestGetGuild(t *testing.T) {
	db := &fakeDB{row: &fakeRow{values: []string{"g1", "cat-1"}}}
	store := NewStore(db, log.NewNop())

	cfg, err := store.GetGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetGuild() = %v", err)
	}
	if cfg.GuildID != "g1" || cfg.CategoryID != "cat-1" {
		t.Errorf("GetGuild() = %+v", cfg)
	}
}

func TestGetGuild_NoRowsIsNotFound(t *testing.T) {
	db := &fakeDB{row: &fakeRow{err: pgx.ErrNoRows}}
	store := NewStore(db, log.NewNop())

	if _, err := store.GetGuild(context.Background(), "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGuild() = %v, want ErrNotFound", err)
	}
}

func TestCreateGuild_UsesProcedure(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	if err := store.CreateGuild(context.Background(), "g1", "cat-1"); err != nil {
		t.Fatalf("CreateGuild() = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "create_guild_data") {
		t.Errorf("exec = %v, want create_guild_data call", db.execSQL)
	}
}

func TestUpdateGuild_NoRowsIsNotFound(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
	store := NewStore(db, log.NewNop())

	if err := store.UpdateGuild(context.Background(), "g1", "cat-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateGuild() = %v, want ErrNotFound", err)
	}
}

func TestGetChatSession_NoRowsIsNotFound(t *testing.T) {
	db := &fakeDB{row: &fakeRow{err: pgx.ErrNoRows}}
	store := NewStore(db, log.NewNop())

	if _, err := store.GetChatSession(context.Background(), "g1", "m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChatSession() = %v, want ErrNotFound", err)
	}
}

func TestListModeratorRoles(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{values: []string{"r1", "r2", "r3"}}}
	store := NewStore(db, log.NewNop())

	roleIDs, err := store.ListModeratorRoles(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ListModeratorRoles() = %v", err)
	}
	if len(roleIDs) != 3 || roleIDs[2] != "r3" {
		t.Errorf("ListModeratorRoles() = %v", roleIDs)
	}
}

func TestAddModeratorRole_UsesProcedure(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	if err := store.AddModeratorRole(context.Background(), "g1", "r1"); err != nil {
		t.Fatalf("AddModeratorRole() = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "create_guild_moderator") {
		t.Errorf("exec = %v, want create_guild_moderator call", db.execSQL)
	}
}
