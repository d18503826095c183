package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"operadoras/internal/core"
)

// fakeSheets records the calls the Sheets API receives.
type fakeSheets struct {
	mu      sync.Mutex
	calls   []string
	written [][]any
	fail    bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`))
		return
	}

	path := r.URL.Path
	if !strings.Contains(path, "/v4/spreadsheets/sheet-id/values/") {
		http.NotFound(w, r)
		return
	}
	rng := path[strings.Index(path, "/values/")+len("/values/"):]

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		f.calls = append(f.calls, "clear "+strings.TrimSuffix(rng, ":clear"))
		fmt.Fprintf(w, `{"spreadsheetId":"sheet-id","clearedRange":%q}`, strings.TrimSuffix(rng, ":clear"))
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update "+rng+" "+r.URL.Query().Get("valueInputOption"))
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.written = vr.Values
		fmt.Fprintf(w, `{"spreadsheetId":"sheet-id","updatedRange":"Estatisticas!A1:E%d","updatedRows":%d}`, len(vr.Values), len(vr.Values))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	c, err := New(context.Background(), "sheet-id", "", nil,
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return c
}

func TestWriteAggregates(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	sd := decimal.RequireFromString("100")
	records := []core.AggregatedRecord{
		{CompanyName: "Alpha", State: "SP", TotalAmount: core.Money{Cents: 60000}, AvgAmount: decimal.RequireFromString("200"), StddevAmount: &sd},
		{CompanyName: "Beta", State: "RJ", TotalAmount: core.Money{Cents: 500}, AvgAmount: decimal.RequireFromString("5")},
	}

	rng, err := c.WriteAggregates(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "Estatisticas!A1:E3", rng)

	assert.Equal(t, []string{"clear Estatisticas!A:E", "update Estatisticas!A1 RAW"}, fake.calls)
	require.Len(t, fake.written, 3)
	assert.Equal(t, []any{"company_name", "state", "total_amount", "avg_amount", "stddev_amount"}, fake.written[0])
	assert.Equal(t, []any{"Alpha", "SP", "600.00", "200.00", "100.00"}, fake.written[1])
	assert.Equal(t, []any{"Beta", "RJ", "5.00", "5.00", ""}, fake.written[2])
}

func TestWriteAggregatesFailure(t *testing.T) {
	c := newTestClient(t, &fakeSheets{fail: true})
	_, err := c.WriteAggregates(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear Estatisticas!A:E")
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "x", nil, goption.WithoutAuthentication())
	assert.Error(t, err)
}

func clearCredentialEnv(t *testing.T) {
	for _, k := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS",
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE", "GOOGLE_OAUTH_TOKEN_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	ctx := context.Background()

	_, err := CredentialsFromEnv(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/credentials.json")
	_, err = CredentialsFromEnv(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	opts, err := CredentialsFromEnv(ctx)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}
