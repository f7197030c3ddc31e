package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestSearchLexicalScansRank(t *testing.T) {
	s, mock := newMockStore(t)

	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ts_rank_cd(p.content_tsv, q)")).
		WithArgs("auth middleware", sqlmock.AnyArg(), sqlmock.AnyArg(), 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_id", "title", "url", "snippet", "frameworks", "updated_at", "rank"}).
			AddRow("p1", "src-next", "Middleware", "https://nextjs.org/docs/middleware", "Run code before a request completes.", []byte("{nextjs}"), updated, 0.42).
			AddRow("p2", "src-next", "Authentication", "https://nextjs.org/docs/auth", "Protect routes.", []byte("{nextjs,react}"), updated, 0.31))

	got, err := s.SearchLexical(context.Background(), []string{"auth", "middleware"}, []string{"src-next"}, nil, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "p1", got[0].PageID)
	require.InDelta(t, 0.42, got[0].Scores.Lexical, 1e-9)
	require.Equal(t, []string{"nextjs", "react"}, got[1].Frameworks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchLexicalNoKeywordsSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.SearchLexical(context.Background(), nil, []string{"src"}, nil, 10)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchVectorEncodesLiteral(t *testing.T) {
	s, mock := newMockStore(t)

	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("p.embedding <=> $1::vector")).
		WithArgs("[0.5,0.25,-1]", sqlmock.AnyArg(), sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_id", "title", "url", "snippet", "frameworks", "updated_at", "similarity"}).
			AddRow("p3", "src-next", "App Router", "https://nextjs.org/docs/app", "Routing with the app directory.", []byte("{nextjs}"), updated, 0.91))

	got, err := s.SearchVector(context.Background(), []float32{0.5, 0.25, -1}, []string{"src-next"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.InDelta(t, 0.91, got[0].Scores.Vector, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchVectorRejectsEmptyVector(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.SearchVector(context.Background(), nil, []string{"src"}, nil, 10)
	require.Error(t, err)
}

func TestListSources(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sources")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "domain", "framework", "summary"}).
			AddRow("src-next", "Next.js Docs", "nextjs.org", "nextjs", "Official Next.js documentation."))

	got, err := s.ListSources(context.Background(), []string{"src-next"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "nextjs", got[0].Framework)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackScoresAggregates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM page_feedback")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"page_id", "avg"}).
			AddRow("p1", 0.6).
			AddRow("p2", -1.0))

	got, err := s.FeedbackScores(context.Background(), []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	require.InDelta(t, 0.6, got["p1"], 1e-9)
	require.InDelta(t, -1.0, got["p2"], 1e-9)
	_, ok := got["p3"]
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFeedback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO page_feedback")).
		WithArgs("p1", "u1", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.RecordFeedback(context.Background(), "p1", "u1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeVectorLiteral(t *testing.T) {
	got, err := encodeVectorLiteral([]float32{1, 0.5, -0.25})
	require.NoError(t, err)
	require.Equal(t, "[1,0.5,-0.25]", got)

	_, err = encodeVectorLiteral(nil)
	require.Error(t, err)
}
