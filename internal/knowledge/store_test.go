package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prasetya0/guildlore/internal/log"
)

// fakeRows implements pgx.Rows over an in-memory result set.
type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, src := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = src.(string)
		case *bool:
			*d = src.(bool)
		case *float32:
			*d = src.(float32)
		case *int64:
			*d = src.(int64)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

// fakeRow implements pgx.Row for single-value queries.
type fakeRow struct {
	value int64
	err   error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

// fakeBatchResults implements pgx.BatchResults, failing after failAt
// successful Execs when failAt >= 0.
type fakeBatchResults struct {
	execs  int
	failAt int
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if b.failAt >= 0 && b.execs == b.failAt {
		return pgconn.CommandTag{}, errors.New("duplicate key")
	}
	b.execs++
	return pgconn.CommandTag{}, nil
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (b *fakeBatchResults) Close() error             { return nil }

// fakeDB implements the DB interface.
type fakeDB struct {
	execSQL      []string
	execArgs     [][]any
	execTag      pgconn.CommandTag
	execErr      error
	queryRows    *fakeRows
	queryErr     error
	queryRow     *fakeRow
	batches      []*pgx.Batch
	batchResults *fakeBatchResults
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	return db.execTag, db.execErr
}

func (db *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.queryRows, nil
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return db.queryRow
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.batches = append(db.batches, b)
	if db.batchResults == nil {
		db.batchResults = &fakeBatchResults{failAt: -1}
	}
	return db.batchResults
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("msg42", 0); got != "msg42_chunk_0" {
		t.Errorf("ChunkID() = %q, want %q", got, "msg42_chunk_0")
	}
	if got := AttachmentChunkID("msg42", "att7", 3); got != "msg42_att_att7_chunk_3" {
		t.Errorf("AttachmentChunkID() = %q, want %q", got, "msg42_att_att7_chunk_3")
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	if err := store.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("UpsertBatch(nil) = %v, want nil", err)
	}
	if len(db.batches) != 0 {
		t.Error("empty batch should not reach the database")
	}
}

func TestUpsertBatch_QueuesAllChunks(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	chunks := []Chunk{
		{ID: ChunkID("m1", 0), ParentID: "m1", ChannelID: "c1", Content: "a", Embedding: []float32{0.1}},
		{ID: ChunkID("m1", 1), ParentID: "m1", ChannelID: "c1", Content: "b", Embedding: []float32{0.2}},
	}
	if err := store.UpsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("UpsertBatch() = %v", err)
	}

	if len(db.batches) != 1 {
		t.Fatalf("sent %d batches, want 1", len(db.batches))
	}
	if got := db.batches[0].Len(); got != 2 {
		t.Errorf("batch length = %d, want 2", got)
	}
}

func TestUpsertBatch_MissingID(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	err := store.UpsertBatch(context.Background(), []Chunk{{ParentID: "m1"}})
	if err == nil {
		t.Fatal("UpsertBatch() = nil, want error for chunk without id")
	}
	if len(db.batches) != 0 {
		t.Error("invalid batch should not reach the database")
	}
}

func TestUpsertBatch_ExecFailure(t *testing.T) {
	db := &fakeDB{batchResults: &fakeBatchResults{failAt: 1}}
	store := NewStore(db, log.NewNop())

	chunks := []Chunk{
		{ID: "m1_chunk_0", ParentID: "m1"},
		{ID: "m1_chunk_1", ParentID: "m1"},
	}
	err := store.UpsertBatch(context.Background(), chunks)
	if err == nil {
		t.Fatal("UpsertBatch() = nil, want error from failing exec")
	}
	if !strings.Contains(err.Error(), "m1_chunk_1") {
		t.Errorf("error %q should name the failing chunk id", err)
	}
}

func TestSearchByVector(t *testing.T) {
	db := &fakeDB{queryRows: &fakeRows{rows: [][]any{
		{"m1_chunk_0", "m1", "c1", "first", false, "", "", float32(0.91)},
		{"m2_chunk_0", "m2", "c1", "second", true, "att1", "notes.txt", float32(0.80)},
	}}}
	store := NewStore(db, log.NewNop())

	results, err := store.SearchByVector(context.Background(), []float32{0.1, 0.2}, 4)
	if err != nil {
		t.Fatalf("SearchByVector() = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Store order is preserved: no re-sorting on the client side.
	if results[0].Chunk.ID != "m1_chunk_0" || results[1].Chunk.ID != "m2_chunk_0" {
		t.Errorf("result order = %q, %q", results[0].Chunk.ID, results[1].Chunk.ID)
	}
	if results[0].Similarity != 0.91 {
		t.Errorf("similarity = %v, want 0.91", results[0].Similarity)
	}
	if !results[1].Chunk.IsAttachment || results[1].Chunk.AttachmentName != "notes.txt" {
		t.Errorf("attachment fields not scanned: %+v", results[1].Chunk)
	}
}

func TestSearchByVector_InvalidK(t *testing.T) {
	store := NewStore(&fakeDB{}, log.NewNop())

	if _, err := store.SearchByVector(context.Background(), []float32{0.1}, 0); err == nil {
		t.Fatal("SearchByVector(k=0) = nil, want error")
	}
}

func TestSearchByVector_QueryError(t *testing.T) {
	db := &fakeDB{queryErr: errors.New("connection reset")}
	store := NewStore(db, log.NewNop())

	if _, err := store.SearchByVector(context.Background(), []float32{0.1}, 4); err == nil {
		t.Fatal("SearchByVector() = nil, want wrapped query error")
	}
}

func TestDeleteByParent(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 3")}
	store := NewStore(db, log.NewNop())

	n, err := store.DeleteByParent(context.Background(), "m1")
	if err != nil {
		t.Fatalf("DeleteByParent() = %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	if len(db.execArgs) != 1 || db.execArgs[0][0] != "m1" {
		t.Errorf("exec args = %v, want [m1]", db.execArgs)
	}
}

func TestDeleteByParent_NoRows(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 0")}
	store := NewStore(db, log.NewNop())

	n, err := store.DeleteByParent(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("DeleteByParent() = %v, want nil for zero rows", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
}

func TestDeleteByParent_EmptyParent(t *testing.T) {
	store := NewStore(&fakeDB{}, log.NewNop())

	if _, err := store.DeleteByParent(context.Background(), ""); err == nil {
		t.Fatal("DeleteByParent(\"\") = nil, want error")
	}
}

func TestCountByParent(t *testing.T) {
	db := &fakeDB{queryRow: &fakeRow{value: 7}}
	store := NewStore(db, log.NewNop())

	n, err := store.CountByParent(context.Background(), "m1")
	if err != nil {
		t.Fatalf("CountByParent() = %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}
