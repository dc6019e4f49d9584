package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/server/handlers"
	"github.com/dwsmith1983/tripwire/internal/testutil"
	"github.com/dwsmith1983/tripwire/internal/transfer"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

type staticResolver struct{}

func (staticResolver) Resolve(context.Context, types.Strategy) (types.Credential, error) {
	return types.NewCredential([]byte{0x01, 0x02}), nil
}

type fakeKeys struct{}

func (fakeKeys) Generate(string) (string, common.Address, error) {
	return "sealed-key", common.HexToAddress("0x00000000000000000000000000000000000000aa"), nil
}

type testEnv struct {
	ts   *httptest.Server
	prov *testutil.MockProvider
	gw   *testutil.FakeGateways
}

func setup(t *testing.T, cfg types.ServerConfig, opts ...Option) *testEnv {
	t.Helper()
	prov := testutil.NewMockProvider()
	gw := testutil.NewFakeGateways()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: big.NewInt(50_000_000), TxHash: "0xburn"}
	gw.Scripts["base-sepolia"] = testutil.ChainScript{TxHash: "0xmint"}
	orch := transfer.New(chain.MustRegistry(), gw.Factory(), &testutil.FakeAttester{Result: testutil.CompleteAttestation()})
	coord := dispatch.New(prov, orch, staticResolver{})

	srv := New(cfg, coord, prov, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, prov: prov, gw: gw}
}

const strategyJSON = `{
	"id": "s1",
	"ownerId": "user-1",
	"name": "doge bridge",
	"triggers": [{"kind": "social", "sourceAccount": "elonmusk", "keywords": ["doge"]}],
	"actions": [{"type": "bridge_gasless", "asset": "USDC", "amount": "5", "sourceChain": "arb-sepolia", "destinationChain": "base-sepolia"}]
}`

func post(t *testing.T, url, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := setup(t, types.ServerConfig{})

	resp := get(t, env.ts.URL+"/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setup(t, types.ServerConfig{})

	resp := get(t, env.ts.URL+"/api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "executions_total")
	assert.Contains(t, body, "transfer_failures")
}

func TestRegisterAndGetStrategy(t *testing.T) {
	env := setup(t, types.ServerConfig{}, WithKeyGenerator(fakeKeys{}))

	resp := post(t, env.ts.URL+"/api/strategies", strategyJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created handlers.StrategyView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, created.Active)
	assert.True(t, created.HasKey)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex(), created.OwnerAddress)

	stored, err := env.prov.GetStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "sealed-key", stored.EncryptedKey)

	resp = get(t, env.ts.URL+"/api/strategies/s1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.NotContains(t, raw, "encryptedKey")

	resp = post(t, env.ts.URL+"/api/strategies", strategyJSON)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterStrategy_Invalid(t *testing.T) {
	env := setup(t, types.ServerConfig{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid JSON"},
		{"no name", `{"triggers":[{"kind":"social"}],"actions":[{"type":"convert_all"}]}`, "name is required"},
		{"three triggers", `{"name":"x","triggers":[{"kind":"social"},{"kind":"social"},{"kind":"social"}],"actions":[{"type":"convert_all"}]}`, "at most 2 triggers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, env.ts.URL+"/api/strategies", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestRegisterStrategy_RejectsUnusableActions(t *testing.T) {
	env := setup(t, types.ServerConfig{}, WithStrategyChecker(chain.MustRegistry()))
	action := func(amount, src, dst string) string {
		return `{"name":"x","triggers":[{"kind":"social"}],"actions":[{"type":"bridge_gasless","asset":"USDC","amount":"` +
			amount + `","sourceChain":"` + src + `","destinationChain":"` + dst + `"}]}`
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative amount", action("-5", "arb-sepolia", "base-sepolia"), "must be positive"},
		{"unknown chains", action("5", "mars", "venus"), "unsupported chain"},
		{"unsponsored destination", action("5", "arb-sepolia", "eth-sepolia"), "gasless transfers not supported"},
		{"too precise", action("0.0000001", "arb-sepolia", "base-sepolia"), "decimal places"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, env.ts.URL+"/api/strategies", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body["error"], tt.want)
		})
	}

	strategies, err := env.prov.ListStrategies(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestSubmitEvent_UnrecordedOutcome(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	var s types.Strategy
	require.NoError(t, json.Unmarshal([]byte(strategyJSON), &s))
	s.Active = true
	require.NoError(t, env.prov.PutStrategy(context.Background(), s))
	env.prov.FinalizeErr = errors.New("throttled")

	resp := post(t, env.ts.URL+"/api/events", `{"kind":"social","sourceAccount":"elonmusk","content":"doge"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body handlers.DispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "do not resubmit")
}

func TestGetStrategy_NotFound(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	resp := get(t, env.ts.URL+"/api/strategies/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitEvent_DispatchesMatches(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	require.Equal(t, http.StatusCreated, post(t, env.ts.URL+"/api/strategies", strategyJSON).StatusCode)

	resp := post(t, env.ts.URL+"/api/events", `{"kind":"social","sourceAccount":"elonmusk","content":"Buying DOGE"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.DispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Executions, 1)
	assert.Equal(t, types.ExecutionCompleted, out.Executions[0].Status)
	assert.Equal(t, "0xmint", out.Executions[0].MintTxHash)

	resp = get(t, env.ts.URL+"/api/events")
	var events []types.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "Buying DOGE", events[0].Content)

	resp = get(t, env.ts.URL+"/api/strategies/s1/executions")
	var execs []types.Execution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&execs))
	assert.Len(t, execs, 1)
}

func TestSubmitEvent_NoMatchReturnsEmpty(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	resp := post(t, env.ts.URL+"/api/events", `{"kind":"social","sourceAccount":"nobody","content":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.DispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotNil(t, out.Executions)
	assert.Empty(t, out.Executions)
}

func TestSubmitEvent_Validation(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	assert.Equal(t, http.StatusBadRequest, post(t, env.ts.URL+"/api/events", `{"content":"no kind"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, env.ts.URL+"/api/events", `not json`).StatusCode)
}

func TestSubmitEvent_StorageFailure(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	env.prov.AppendErr = errors.New("disk full")
	resp := post(t, env.ts.URL+"/api/events", `{"kind":"social","content":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestDispatchStrategy_ReportsFailure(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	require.Equal(t, http.StatusCreated, post(t, env.ts.URL+"/api/strategies", strategyJSON).StatusCode)
	env.gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: big.NewInt(1_000_000)}

	resp := post(t, env.ts.URL+"/api/strategies/s1/dispatch", `{"kind":"social","content":"manual"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.DispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Executions, 1)
	e := out.Executions[0]
	assert.Equal(t, types.ExecutionError, e.Status)
	assert.Equal(t, types.ErrInsufficientBalance, e.ErrorKind)
	require.NotNil(t, e.Verdict)
	assert.Equal(t, "4.100000", e.Verdict.Shortfall)
}

func TestDispatchStrategy_NotFound(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	resp := post(t, env.ts.URL+"/api/strategies/missing/dispatch", `{"kind":"social"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	env := setup(t, types.ServerConfig{APIKey: "secret"})

	assert.Equal(t, http.StatusOK, get(t, env.ts.URL+"/api/health").StatusCode, "health is exempt")
	assert.Equal(t, http.StatusUnauthorized, get(t, env.ts.URL+"/api/events").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, env.ts.URL+"/api/events", `{}`, "X-API-Key", "wrong").StatusCode)
	assert.Equal(t, http.StatusCreated, post(t, env.ts.URL+"/api/strategies", strategyJSON, "X-API-Key", "secret").StatusCode)
}

func TestMaxBodyMiddleware(t *testing.T) {
	env := setup(t, types.ServerConfig{MaxBodyBytes: 64})
	resp := post(t, env.ts.URL+"/api/strategies", strategyJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDPropagation(t *testing.T) {
	env := setup(t, types.ServerConfig{})
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestStop_NotStarted(t *testing.T) {
	srv := New(types.ServerConfig{Addr: ":0"}, nil, testutil.NewMockProvider())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}
