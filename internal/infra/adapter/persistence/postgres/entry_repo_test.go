package postgres_test

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── helpers ──────────────────────────────── */

var entryWithFeedColumns = []string{
	"id", "feed_id", "guid", "url", "title", "author", "content", "summary",
	"published_at", "updated_at", "first_seen", "created_at",
	"feed_title", "feed_site_url",
}

func entryWithFeedRow(entry *entity.Entry, feedTitle, feedSiteURL string) []driver.Value {
	return []driver.Value{
		entry.ID, entry.FeedID, entry.GUID, entry.URL, entry.Title, entry.Author,
		entry.Content, entry.Summary,
		entry.PublishedAt, entry.UpdatedAt, entry.FirstSeen, entry.CreatedAt,
		feedTitle, feedSiteURL,
	}
}

/* ──────────────────────────────── 1. Upsert ──────────────────────────────── */

func TestEntryRepo_Upsert_Insert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	published := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)
	firstSeen := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO entries`)).
		WithArgs(int64(1), "tag:example.com,2026:post-1", "https://blog.example.com/post-1",
			"Post One", "Jane Doe", "<p>hello</p>", "hello",
			published, nil, firstSeen).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_seen", "created_at", "inserted"}).
			AddRow(int64(11), firstSeen, firstSeen, true))

	repo := postgres.NewEntryRepo(db)
	entry := &entity.Entry{
		FeedID:      1,
		GUID:        "tag:example.com,2026:post-1",
		URL:         "https://blog.example.com/post-1",
		Title:       "Post One",
		Author:      "Jane Doe",
		Content:     "<p>hello</p>",
		Summary:     "hello",
		PublishedAt: published,
		FirstSeen:   firstSeen,
	}
	inserted, err := repo.Upsert(context.Background(), entry)
	if err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if !inserted {
		t.Fatal("Upsert inserted = false, want true for a fresh row")
	}
	if entry.ID != 11 {
		t.Fatalf("Upsert did not set ID, got %d", entry.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_Upsert_ConflictUpdate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	// The stored row keeps its original first_seen; the upsert reports it
	// back instead of the value the caller supplied.
	originalFirstSeen := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	published := time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_seen", "created_at", "inserted"}).
			AddRow(int64(11), originalFirstSeen, originalFirstSeen, false))

	repo := postgres.NewEntryRepo(db)
	entry := &entity.Entry{
		FeedID:      1,
		GUID:        "tag:example.com,2026:post-1",
		Title:       "Post One (edited)",
		PublishedAt: published,
		UpdatedAt:   &updated,
		FirstSeen:   time.Now(),
	}
	inserted, err := repo.Upsert(context.Background(), entry)
	if err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if inserted {
		t.Fatal("Upsert inserted = true, want false for a conflict update")
	}
	if !entry.FirstSeen.Equal(originalFirstSeen) {
		t.Fatalf("FirstSeen = %v, want stored %v", entry.FirstSeen, originalFirstSeen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 2. Get / GetByIDs ──────────────────────────────── */

func TestEntryRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id`)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "feed_id", "guid", "url", "title", "author", "content", "summary",
			"published_at", "updated_at", "first_seen", "created_at",
		}))

	repo := postgres.NewEntryRepo(db)
	got, err := repo.Get(context.Background(), 404)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if got != nil {
		t.Fatalf("Get = %+v, want nil for missing entry", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_GetByIDs(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)
	entry := &entity.Entry{
		ID: 11, FeedID: 1, GUID: "g1", URL: "https://blog.example.com/post-1",
		Title: "Post One", Content: "<p>hello</p>", Summary: "hello",
		PublishedAt: now, FirstSeen: now, CreatedAt: now,
	}
	rows := sqlmock.NewRows(entryWithFeedColumns).
		AddRow(entryWithFeedRow(entry, "Example Blog", "https://blog.example.com")...)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN feeds`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	repo := postgres.NewEntryRepo(db)
	got, err := repo.GetByIDs(context.Background(), []int64{11, 404})
	if err != nil {
		t.Fatalf("GetByIDs err=%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetByIDs len=%d, want 1 (missing ids silently absent)", len(got))
	}
	if diff := cmp.Diff(entry, got[0].Entry); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if got[0].FeedTitle != "Example Blog" || got[0].FeedSiteURL != "https://blog.example.com" {
		t.Fatalf("feed metadata = %q %q", got[0].FeedTitle, got[0].FeedSiteURL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_GetByIDs_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	// No ids means no query at all.
	repo := postgres.NewEntryRepo(db)
	got, err := repo.GetByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetByIDs err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetByIDs len=%d, want 0", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 3. ListSince / ListRecent ──────────────────────────────── */

func TestEntryRepo_ListSince(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	cutoff := time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)
	newer := &entity.Entry{
		ID: 2, FeedID: 1, GUID: "g2", Title: "Newer",
		PublishedAt: cutoff.Add(48 * time.Hour),
		FirstSeen:   cutoff, CreatedAt: cutoff,
	}
	older := &entity.Entry{
		ID: 1, FeedID: 1, GUID: "g1", Title: "Older",
		PublishedAt: cutoff.Add(24 * time.Hour),
		FirstSeen:   cutoff, CreatedAt: cutoff,
	}
	rows := sqlmock.NewRows(entryWithFeedColumns).
		AddRow(entryWithFeedRow(newer, "Example Blog", "")...).
		AddRow(entryWithFeedRow(older, "Example Blog", "")...)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN feeds`)).
		WithArgs(cutoff).
		WillReturnRows(rows)

	repo := postgres.NewEntryRepo(db)
	got, err := repo.ListSince(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListSince err=%v", err)
	}
	if len(got) != 2 || got[0].Entry.ID != 2 || got[1].Entry.ID != 1 {
		t.Fatalf("ListSince returned wrong rows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_ListRecent_DefaultsLimit(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	// Non-positive limit falls back to the default window.
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(entryWithFeedColumns))

	repo := postgres.NewEntryRepo(db)
	got, err := repo.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListRecent len=%d, want 0", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 4. Retention ──────────────────────────────── */

func TestEntryRepo_ListRetentionCandidates(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WITH ranked AS`)).
		WithArgs(cutoff, 100, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(3)).
			AddRow(int64(8)).
			AddRow(int64(21)))

	repo := postgres.NewEntryRepo(db)
	ids, err := repo.ListRetentionCandidates(context.Background(), cutoff, 100, 50)
	if err != nil {
		t.Fatalf("ListRetentionCandidates err=%v", err)
	}
	if diff := cmp.Diff([]int64{3, 8, 21}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_DeleteByIDs(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM entries`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := postgres.NewEntryRepo(db)
	n, err := repo.DeleteByIDs(context.Background(), []int64{3, 8})
	if err != nil {
		t.Fatalf("DeleteByIDs err=%v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteByIDs = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEntryRepo_DeleteByIDs_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	repo := postgres.NewEntryRepo(db)
	n, err := repo.DeleteByIDs(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("DeleteByIDs on empty ids = (%d, %v), want (0, nil)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
