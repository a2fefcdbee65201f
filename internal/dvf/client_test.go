package dvf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatedesk/server/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg.BaseURL = server.URL + "/geomutations/"
	return NewClient(logger, cfg, nil), server
}

func apartmentQuery() Query {
	return Query{
		Center:       orb.Point{2.35, 48.85},
		RadiusMeters: 1000,
		PropertyType: models.PropertyTypeApartment,
		From:         time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func apartmentRow(id string) string {
	return fmt.Sprintf(`{"id_mutation":%q,"date_mutation":"2021-06-14","valeur_fonciere":300000,"code_type_local":2,"surface_reelle_bati":50,"latitude":48.85,"longitude":2.35}`, id)
}

func TestFetchQueryParameters(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[]`))
	}, Config{Token: "secret", PageSize: 250})

	_, err := client.Fetch(context.Background(), apartmentQuery())
	require.NoError(t, err)
	require.NotNil(t, got)

	params := got.URL.Query()
	assert.Equal(t, "2015", params.Get("anneemut_min"))
	assert.Equal(t, "2025", params.Get("anneemut_max"))
	assert.Equal(t, "121", params.Get("codtypbien"))
	assert.Equal(t, "250", params.Get("page_size"))
	assert.Len(t, strings.Split(params.Get("in_bbox"), ","), 4)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
}

func TestFetchResponseShapes(t *testing.T) {
	row := apartmentRow("a1")
	tests := []struct {
		name string
		body string
	}{
		{"Top-level array", `[` + row + `]`},
		{"Results", `{"count":1,"results":[` + row + `]}`},
		{"Records", `{"records":[` + row + `]}`},
		{"Data", `{"data":[` + row + `]}`},
		{"Rows", `{"rows":[` + row + `]}`},
		{"Nested result", `{"result":{"rows":[` + row + `]}}`},
		{"Features", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[2.35,48.85]},"properties":{"idmutation":"a1","datemut":"2021-06-14","valeurfonc":"300000","codtypbien":"121","sbati":50}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, Config{})

			rows, err := client.Fetch(context.Background(), apartmentQuery())
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "a1", rows[0].SourceID)
			assert.Equal(t, 300000.0, rows[0].SalePrice)
			assert.Equal(t, 50.0, rows[0].Surface)
		})
	}
}

func TestFetchAcceptsOnlyValidRows(t *testing.T) {
	body := `[` + strings.Join([]string{
		apartmentRow("ok"),
		`{"id_mutation":"old","date_mutation":"2001-01-01","valeur_fonciere":300000,"code_type_local":2,"surface_reelle_bati":50}`,
		`{"id_mutation":"free","date_mutation":"2021-01-01","valeur_fonciere":0,"code_type_local":2,"surface_reelle_bati":50}`,
		`{"id_mutation":"nosurface","date_mutation":"2021-01-01","valeur_fonciere":300000,"code_type_local":2}`,
		`{"id_mutation":"house","date_mutation":"2021-01-01","valeur_fonciere":300000,"code_type_local":1,"surface_reelle_bati":50}`,
		`{"id_mutation":"nodate","valeur_fonciere":300000,"code_type_local":2,"surface_reelle_bati":50}`,
		`"not an object"`,
	}, ",") + `]`

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, Config{})

	q := apartmentQuery()
	rows, err := client.Fetch(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	for _, tx := range rows {
		assert.True(t, tx.SalePrice > 0)
		assert.True(t, tx.Surface > 0)
		assert.False(t, tx.SaleDate.Before(q.From))
		assert.False(t, tx.SaleDate.After(q.To))
		assert.Equal(t, q.PropertyType, tx.PropertyType)
	}
}

func TestFetchPagination(t *testing.T) {
	var calls int32
	var server *httptest.Server
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("page") {
		case "":
			_, _ = fmt.Fprintf(w, `{"next":%q,"results":[%s]}`, "/geomutations/?page=2", apartmentRow("p1"))
		case "2":
			// The advertised scheme differs from the one the client started with.
			next := strings.Replace(server.URL, "http://", "https://", 1) + "/geomutations/?page=3"
			_, _ = fmt.Fprintf(w, `{"next":%q,"results":[%s]}`, next, apartmentRow("p2"))
		default:
			_, _ = fmt.Fprintf(w, `{"next":null,"results":[%s]}`, apartmentRow("p3"))
		}
	}, Config{})

	rows, err := client.Fetch(context.Background(), apartmentQuery())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchPaginationLoopAndCap(t *testing.T) {
	t.Run("Visited URL stops pagination", func(t *testing.T) {
		var calls int32
		var server *httptest.Server
		client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			_, _ = fmt.Fprintf(w, `{"next":%q,"results":[%s]}`, server.URL+"/geomutations/?page=2", apartmentRow(fmt.Sprintf("r%d", n)))
		}, Config{})

		rows, err := client.Fetch(context.Background(), apartmentQuery())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("Max pages caps pagination", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			_, _ = fmt.Fprintf(w, `{"next":"/geomutations/?page=%d","results":[%s]}`, n+1, apartmentRow(fmt.Sprintf("r%d", n)))
		}, Config{MaxPages: 3})

		rows, err := client.Fetch(context.Background(), apartmentQuery())
		require.NoError(t, err)
		assert.Len(t, rows, 3)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("Limit stops pagination", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			_, _ = fmt.Fprintf(w, `{"next":"/geomutations/?page=%d","results":[%s,%s]}`, n+1,
				apartmentRow(fmt.Sprintf("a%d", n)), apartmentRow(fmt.Sprintf("b%d", n)))
		}, Config{})

		q := apartmentQuery()
		q.Limit = 2
		rows, err := client.Fetch(context.Background(), q)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestFetchForcesOriginalScheme(t *testing.T) {
	assert.Equal(t, "http://example.org/next?page=2",
		resolveNext(mustParse(t, "http://example.org/api/"), "http", "https://example.org/next?page=2").String())
	assert.Equal(t, "https://example.org/api/?page=2",
		resolveNext(mustParse(t, "https://example.org/api/"), "https", "http://example.org/api/?page=2").String())
	assert.Nil(t, resolveNext(mustParse(t, "https://example.org/api/"), "https", ""))
}

func TestFetchErrors(t *testing.T) {
	t.Run("HTTP status", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}, Config{})

		_, err := client.Fetch(context.Background(), apartmentQuery())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, KindHTTP, fetchErr.Kind)
		assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
		assert.Equal(t, 1, fetchErr.Page)
		assert.Contains(t, fetchErr.Endpoint, "/geomutations/")
	})

	t.Run("Invalid payload", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		}, Config{})

		_, err := client.Fetch(context.Background(), apartmentQuery())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, KindInvalidPayload, fetchErr.Kind)
	})

	t.Run("Object without rows", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detail":"throttled"}`))
		}, Config{})

		_, err := client.Fetch(context.Background(), apartmentQuery())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, KindInvalidPayload, fetchErr.Kind)
	})

	t.Run("Timeout", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}, Config{Timeout: 50 * time.Millisecond})

		_, err := client.Fetch(context.Background(), apartmentQuery())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, KindTimeout, fetchErr.Kind)
	})

	t.Run("Network", func(t *testing.T) {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		client := NewClient(logger, Config{BaseURL: "http://127.0.0.1:1/geomutations/"}, nil)

		_, err := client.Fetch(context.Background(), apartmentQuery())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, KindNetwork, fetchErr.Kind)
	})

	t.Run("Failure after a page keeps accepted rows", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = fmt.Fprintf(w, `{"next":"/geomutations/?page=2","results":[%s]}`, apartmentRow("first"))
		}, Config{})

		rows, err := client.Fetch(context.Background(), apartmentQuery())
		require.Error(t, err)
		assert.Len(t, rows, 1)
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
