package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/cache"
	"bibxml/pkg/models"
)

const crossrefWorkJSON = `{
	"status": "ok",
	"message": {
		"DOI": "10.1109/5.771073",
		"title": ["Toward unique identifiers"],
		"type": "journal-article",
		"URL": "https://doi.org/10.1109/5.771073",
		"container-title": ["Proceedings of the IEEE"],
		"volume": "87",
		"author": [{"given": "Norman", "family": "Paskin"}],
		"issued": {"date-parts": [[1999, 7]]}
	}
}`

func newCrossref(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/works/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/works/10.1109/5.771073":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(crossrefWorkJSON))
		case "/works/10.1000/garbage":
			_, _ = w.Write([]byte(`{"message": "not an object"`))
		case "/works/10.1000/untitled":
			_, _ = w.Write([]byte(`{"status":"ok","message":{"DOI":"10.1000/untitled"}}`))
		case "/works/10.1000/flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAnchorToDOI(t *testing.T) {
	assert.Equal(t, "10.1109/5.771073", AnchorToDOI("DOI.10.1109_5.771073"))
	assert.Equal(t, "10.1109/5.771073", AnchorToDOI("10.1109/5.771073"))
	assert.Equal(t, "10.1000/a_b", AnchorToDOI("doi.10.1000/a_b"))
}

func TestDOIFetcher_Resolve(t *testing.T) {
	srv, _ := newCrossref(t)
	f := NewDOIFetcher(srv.URL, nil, nil)

	item, err := f.Resolve(context.Background(), "DOI.10.1109_5.771073")
	require.NoError(t, err)
	assert.Equal(t, "DOI.10.1109/5.771073", item.ID)
	assert.Equal(t, "Toward unique identifiers", item.Title[0].Content)
	require.Len(t, item.Contributor, 1)
	assert.Equal(t, "N.", item.Contributor[0].Initials)
	assert.Equal(t, "Paskin", item.Contributor[0].Surname)
	assert.Equal(t, []models.BibDate{{Type: "published", Value: "1999-07"}}, item.Date)
	assert.Equal(t, []models.Series{{Title: "Proceedings of the IEEE", Number: "87"}}, item.Series)
	assert.True(t, item.HasDocID("10.1109/5.771073", "doi"))
}

func TestDOIFetcher_Errors(t *testing.T) {
	srv, _ := newCrossref(t)
	f := NewDOIFetcher(srv.URL, nil, nil)
	ctx := context.Background()

	_, err := f.Resolve(ctx, "10.1000/missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.Resolve(ctx, "10.1000/flaky")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.Resolve(ctx, "10.1000/garbage")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = f.Resolve(ctx, "10.1000/untitled")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = f.Resolve(ctx, "RFC1234")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDOIFetcher_Cache(t *testing.T) {
	srv, calls := newCrossref(t)
	c, err := cache.Open(cache.InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()

	f := NewDOIFetcher(srv.URL, c, nil)
	for i := 0; i < 3; i++ {
		_, err := f.Resolve(context.Background(), "10.1109/5.771073")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	// failures are not cached
	for i := 0; i < 2; i++ {
		_, _ = f.Resolve(context.Background(), "10.1000/missing")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestDOIFetcher_TruncatedBodyNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// promise the full body, send half of it, then hang up
			conn, buf, err := w.(http.Hijacker).Hijack()
			if err != nil {
				return
			}
			fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n", len(crossrefWorkJSON))
			_, _ = buf.WriteString(crossrefWorkJSON[:len(crossrefWorkJSON)/2])
			_ = buf.Flush()
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(crossrefWorkJSON))
	}))
	t.Cleanup(srv.Close)

	c, err := cache.Open(cache.InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()

	f := NewDOIFetcher(srv.URL, c, nil)
	ctx := context.Background()

	_, err = f.Resolve(ctx, "10.1109/5.771073")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "crossref: read")

	_, ok, err := c.Get("crossref:10.1109/5.771073")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 2; i++ {
		item, err := f.Resolve(ctx, "10.1109/5.771073")
		require.NoError(t, err)
		assert.Equal(t, "Toward unique identifiers", item.Title[0].Content)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDOIFetcher_OversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat(" ", maxCrossrefBody+1)))
	}))
	t.Cleanup(srv.Close)

	_, err := NewDOIFetcher(srv.URL, nil, nil).Resolve(context.Background(), "10.1109/5.771073")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "exceeds")
}
