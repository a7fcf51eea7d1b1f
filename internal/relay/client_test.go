package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/budsapp/buds-sync-core/internal/jarsync"
	"github.com/budsapp/buds-sync-core/internal/relay"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

func TestStoreReceiptSendsBearerTokenAndBody(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := relay.NewClient(srv.URL, staticToken("tok-123"), zerolog.Nop())
	env := jarsync.Envelope{JarID: "J1", Sequence: 1, CID: "cid1AAA", PayloadCBOR: []byte("payload"), Signature: []byte("sig")}

	require.NoError(t, c.StoreReceipt(context.Background(), env))
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/v1/jars/J1/receipts", gotPath)
	require.Equal(t, "cid1AAA", gotBody["cid"])
}

func TestFetchRangeDecodesEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("from"))
		require.Equal(t, "5", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"receipts":[{"jar_id":"J1","sequence":2,"cid":"cid1BBB","payload_cbor":"cGF5bG9hZA==","signature":"c2ln"}]}`))
	}))
	defer srv.Close()

	c := relay.NewClient(srv.URL, staticToken("tok"), zerolog.Nop())
	envs, err := c.FetchRange(context.Background(), "J1", 2, 5, 0)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, uint64(2), envs[0].Sequence)
	require.Equal(t, []byte("payload"), envs[0].PayloadCBOR)
	require.Equal(t, []byte("sig"), envs[0].Signature)
}

func TestForbiddenResponseMapsToErrForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := relay.NewClient(srv.URL, staticToken("tok"), zerolog.Nop())
	_, err := c.FetchAfter(context.Background(), "J1", 0, 10)
	require.ErrorIs(t, err, relay.ErrForbidden)
}

func TestServerErrorMapsToHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := relay.NewClient(srv.URL, staticToken("tok"), zerolog.Nop())
	_, err := c.FetchAfter(context.Background(), "J1", 0, 10)
	var httpErr *relay.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusInternalServerError, httpErr.Status)
}
