package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/market"
)

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(context.Context, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.html), nil
}

func (f *fakeRenderer) Close() error { return nil }

func newTestSnapshotter(t *testing.T, cfg Config, renderer Renderer) *Snapshotter {
	t.Helper()
	client := fetch.New(fetch.Config{
		Timeout:        2 * time.Second,
		UserAgent:      "trendwatch-test/1.0",
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	}, zap.NewNop())
	return New(client, cfg, NewDetector(0), renderer, zap.NewNop())
}

func storefront(endpoint string) market.Source {
	return market.Source{ID: "shop-a.example", Kind: market.SourceKindStorefront, Endpoint: endpoint}
}

func TestFetchCatalogPublicJSONPagination(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"products":[
				{"id":1,"title":"A","variants":[{"id":10,"price":"5.00","inventory_quantity":3}]},
				{"id":2,"title":"B","variants":[{"id":20,"price":"6.00","inventory_quantity":1}]}
			]}`)
		default:
			fmt.Fprint(w, `{"products":[
				{"id":3,"title":"C","variants":[{"id":30,"price":"7.00","inventory_quantity":0}]}
			]}`)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSnapshotter(t, Config{PageSize: 2, MaxPages: 5}, nil)
	items, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "3", items[2].ProductID)
	require.Equal(t, 7.0, items[2].Price)
}

func TestFetchCatalogAdminAPIPreferred(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(adminAPIPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"products":[{"id":1,"title":"Private","variants":[{"id":10,"price":9,"inventory_quantity":5}]}]}`)
	})
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("public endpoint must not be hit when admin API succeeds")
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := storefront(srv.URL)
	source.Credential = "secret-token"

	s := newTestSnapshotter(t, Config{}, nil)
	items, err := s.FetchCatalog(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Private", items[0].Title)
}

func TestFetchCatalogFallsBackToHTML(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<script type="application/ld+json">
				{"@type":"Product","name":"Linen Shirt","sku":"LS-1","offers":{"price":"39.00"}}
			</script>
			<a href="/products/wool-socks">socks</a>
		</body></html>`)
	})
	mux.HandleFunc("/collections/all", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	mux.HandleFunc("/products/wool-socks.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"product":{"id":7,"title":"Wool Socks","variants":[{"id":70,"price":"12.00","inventory_quantity":2}]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSnapshotter(t, Config{}, nil)
	items, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Linen Shirt", items[0].Title)
	require.Equal(t, 39.0, items[0].Price)
	require.Equal(t, "7", items[1].ProductID)
	require.NotNil(t, items[1].Inventory)
	require.Equal(t, 2, *items[1].Inventory)
}

func TestFetchCatalogPromotesJSShell(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	renderer := &fakeRenderer{html: `<html><body>
		<script type="application/ld+json">{"@type":"Product","name":"Rendered Lamp","offers":{"price":120}}</script>
	</body></html>`}

	s := newTestSnapshotter(t, Config{}, renderer)
	items, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.NoError(t, err)
	require.NotZero(t, renderer.calls)
	require.Len(t, items, 1)
	require.Equal(t, "Rendered Lamp", items[0].Title)
	require.Equal(t, 120.0, items[0].Price)
}

func TestFetchCatalogRenderFailureUsesStaticBody(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div>
			<script type="application/ld+json">{"@type":"Product","name":"Static Vase","offers":{"price":18}}</script>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSnapshotter(t, Config{}, &fakeRenderer{err: errors.New("browser crashed")})
	items, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Static Vase", items[0].Title)
}

func TestFetchCatalogAllStrategiesFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newTestSnapshotter(t, Config{}, nil)
	_, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.Error(t, err)
}

func TestFetchCatalogEmptyStore(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"products":[]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>coming soon</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSnapshotter(t, Config{}, nil)
	items, err := s.FetchCatalog(context.Background(), storefront(srv.URL))
	require.NoError(t, err)
	require.Empty(t, items)
}
