package health

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-settlement/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/oracle"
	"github.com/speedrun-hq/speedrun-settlement/pkg/orders"
	"github.com/speedrun-hq/speedrun-settlement/pkg/permit"
	"github.com/speedrun-hq/speedrun-settlement/pkg/reactor"
	"github.com/speedrun-hq/speedrun-settlement/pkg/settler"
)

var (
	permit2Addr = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	reactorAddr = common.HexToAddress("0x0000000000000000000000000000000000004004")
	fillAddr    = common.HexToAddress("0x0000000000000000000000000000000000004005")
	settlerAddr = common.HexToAddress("0x0000000000000000000000000000000000005005")
	oracleAddr  = common.HexToAddress("0x0000000000000000000000000000000000006006")
	filler      = common.HexToAddress("0x000000000000000000000000000000000000f001")
	token       = common.HexToAddress("0x000000000000000000000000000000000000a001")
	outToken    = common.HexToAddress("0x000000000000000000000000000000000000b002")
	challenger  = common.HexToAddress("0x000000000000000000000000000000000000c001")
)

type fixture struct {
	server  *Server
	clock   *ledger.ManualClock
	ledger  *ledger.Ledger
	permit2 *permit.Permit2
	settler *settler.Settler
	breaker *circuitbreaker.CircuitBreaker
}

func newFixture(t *testing.T, apiKey string, faucet bool) *fixture {
	t.Helper()
	clock := ledger.NewManualClock(1000)
	l := ledger.New(clock)
	p2 := permit.New(permit2Addr, big.NewInt(1), nil)
	require.NoError(t, l.Deploy(oracleAddr, oracle.NewStore(nil)))
	require.NoError(t, l.Deploy(fillAddr, reactor.NewDirectFiller(fillAddr, reactorAddr)))
	r := reactor.New(reactorAddr, l, p2, nil)
	s := settler.New(settlerAddr, l, p2, nil)
	cb := circuitbreaker.NewCircuitBreaker("oracle", true, 1, time.Minute, time.Hour, nil)

	return &fixture{
		server:  NewServer("0", l, r, s, map[string]*circuitbreaker.CircuitBreaker{"oracle": cb}, apiKey, faucet, nil),
		clock:   clock,
		ledger:  l,
		permit2: p2,
		settler: s,
		breaker: cb,
	}
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

// crossChainOrder funds a fresh maker and the filler and signs an order
// settled by the fixture's settler
func (f *fixture) crossChainOrder(t *testing.T) models.SignedOrder {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, f.ledger.Mint(token, maker, big.NewInt(100)))
	require.NoError(t, f.ledger.Approve(token, maker, permit2Addr, ledger.MaxUint256))
	require.NoError(t, f.ledger.Mint(token, filler, big.NewInt(100)))
	require.NoError(t, f.ledger.Approve(token, filler, settlerAddr, ledger.MaxUint256))

	signed, err := orders.Sign(f.permit2, key, &orders.CrossChainLimitOrder{
		Info: models.SettlementInfo{
			Settler:                    settlerAddr,
			Offerer:                    maker,
			Nonce:                      big.NewInt(1),
			InitiateDeadline:           2000,
			FillPeriod:                 60,
			OptimisticSettlementPeriod: 300,
			SettlementOracle:           oracleAddr,
		},
		Input:                orders.TokenAmount{Token: token, Amount: big.NewInt(10)},
		FillerCollateral:     models.Collateral{Token: token, Amount: big.NewInt(5)},
		ChallengerCollateral: models.Collateral{Token: token, Amount: big.NewInt(5)},
		Outputs: []models.CrossChainOutput{
			{Recipient: maker, Token: token, Amount: big.NewInt(9), ChainID: 8453},
		},
	})
	require.NoError(t, err)
	return signed
}

func (f *fixture) initiate(t *testing.T) common.Hash {
	t.Helper()
	hash, err := f.settler.InitiateSettlement(filler, f.crossChainOrder(t), filler)
	require.NoError(t, err)
	return hash
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "", false)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadyAndCircuitReset(t *testing.T) {
	f := newFixture(t, "", false)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	require.True(t, f.breaker.RecordFailure())
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/ready", "").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/circuit/reset?name=oracle", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/circuit/reset", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/circuit/reset?name=rpc", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/circuit/reset?name=oracle", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "", false)
	f.initiate(t)

	rec := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Timestamp       uint64                          `json:"timestamp"`
		Events          int                             `json:"events"`
		Settlements     map[string]int                  `json:"settlements"`
		CircuitBreakers map[string]circuitbreaker.State `json:"circuit_breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, uint64(1000), status.Timestamp)
	assert.Equal(t, 1, status.Events)
	assert.Equal(t, 1, status.Settlements["pending"])
	assert.Equal(t, 0, status.Settlements["success"])
	assert.False(t, status.CircuitBreakers["oracle"].Open)
}

func TestSettlement(t *testing.T) {
	f := newFixture(t, "", false)
	hash := f.initiate(t)

	rec := f.do(http.MethodGet, "/settlements/"+hash.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "pending", record["status"])
	assert.EqualValues(t, 1060, record["fill_deadline"])

	missing := common.HexToHash("0x01")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/settlements/"+missing.Hex(), "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/settlements/0x1234", "").Code)
}

func TestOrderFilled(t *testing.T) {
	f := newFixture(t, "", false)
	rec := f.do(http.MethodGet, "/orders/"+common.HexToHash("0x02").Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filled":false`)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, "", false)
	blob, err := (&orders.LimitOrder{
		Info: models.OrderInfo{
			Reactor:  reactorAddr,
			Offerer:  filler,
			Nonce:    big.NewInt(7),
			Deadline: 5000,
		},
		Input:   orders.TokenAmount{Token: token, Amount: big.NewInt(3)},
		Outputs: []models.OutputToken{{Token: token, Amount: big.NewInt(2), Recipient: filler}},
	}).Encode()
	require.NoError(t, err)

	body := `{"order":"` + hexutil.Encode(blob) + `","sig":"0x"}`
	rec := f.do(http.MethodPost, "/orders/resolve", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp resolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit", resp.Type)
	assert.Equal(t, uint64(1000), resp.Timestamp)
	require.NotNil(t, resp.Order)
	assert.Nil(t, resp.CrossChain)
	assert.Equal(t, orders.Hash(blob), resp.Order.Hash)
	assert.Equal(t, big.NewInt(3), resp.Order.Input.Amount)
	require.Len(t, resp.Order.Outputs, 1)
	assert.Equal(t, big.NewInt(2), resp.Order.Outputs[0].Amount)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders/resolve", "{").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders/resolve", `{"order":"0xdeadbeef"}`).Code)
}

func TestMetricsAuth(t *testing.T) {
	f := newFixture(t, "secret", false)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/metrics", "", "Authorization", "Token secret").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/metrics", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "", "Authorization", "Bearer secret").Code)

	open := newFixture(t, "", false)
	assert.Equal(t, http.StatusOK, open.do(http.MethodGet, "/metrics", "").Code)
}

func TestExecuteRoute(t *testing.T) {
	f := newFixture(t, "", true)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := crypto.PubkeyToAddress(key.PublicKey)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/tokens/mint",
		`{"token":"`+token.Hex()+`","owner":"`+maker.Hex()+`","amount":"0x64"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/tokens/approve",
		`{"token":"`+token.Hex()+`","owner":"`+maker.Hex()+`","spender":"`+permit2Addr.Hex()+`"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/tokens/mint",
		`{"token":"`+outToken.Hex()+`","owner":"`+fillAddr.Hex()+`","amount":"0x64"}`).Code)

	signed, err := orders.Sign(f.permit2, key, &orders.LimitOrder{
		Info:    models.OrderInfo{Reactor: reactorAddr, Offerer: maker, Nonce: big.NewInt(1), Deadline: 5000},
		Input:   orders.TokenAmount{Token: token, Amount: big.NewInt(10)},
		Outputs: []models.OutputToken{{Token: outToken, Amount: big.NewInt(20), Recipient: maker}},
	})
	require.NoError(t, err)
	body := `{"caller":"` + filler.Hex() + `","orders":[{"order":"` + hexutil.Encode(signed.Order) +
		`","sig":"` + hexutil.Encode(signed.Sig) + `"}],"fill_contract":"` + fillAddr.Hex() + `","fill_data":"0x"}`

	rec := f.do(http.MethodPost, "/orders/execute", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.OrderHashes, 1)
	hash := orders.Hash(signed.Order)
	assert.Equal(t, hash, resp.OrderHashes[0])

	assert.Contains(t, f.do(http.MethodGet, "/orders/"+hash.Hex(), "").Body.String(), `"filled":true`)
	balance := f.do(http.MethodGet, "/tokens/"+outToken.Hex()+"/balances/"+maker.Hex(), "")
	require.Equal(t, http.StatusOK, balance.Code)
	assert.Contains(t, balance.Body.String(), `"balance":"0x14"`)

	replay := f.do(http.MethodPost, "/orders/execute", body)
	assert.Equal(t, http.StatusConflict, replay.Code)
	assert.Equal(t, "already_filled", decodeError(t, replay).Type)

	next, err := orders.Sign(f.permit2, key, &orders.LimitOrder{
		Info:    models.OrderInfo{Reactor: reactorAddr, Offerer: maker, Nonce: big.NewInt(2), Deadline: 5000},
		Input:   orders.TokenAmount{Token: token, Amount: big.NewInt(10)},
		Outputs: []models.OutputToken{{Token: outToken, Amount: big.NewInt(20), Recipient: maker}},
	})
	require.NoError(t, err)
	fresh := `{"caller":"` + filler.Hex() + `","orders":[{"order":"` + hexutil.Encode(next.Order) +
		`","sig":"` + hexutil.Encode(next.Sig) + `"}],"fill_contract":"` + fillAddr.Hex() + `"}`

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantType string
	}{
		{"bad json", `{"caller":`, http.StatusBadRequest, ""},
		{"no caller", `{"orders":[]}`, http.StatusBadRequest, ""},
		{"empty batch", `{"caller":"` + filler.Hex() + `","orders":[],"fill_contract":"` + fillAddr.Hex() + `"}`, http.StatusBadRequest, "malformed_order"},
		{"garbage order", `{"caller":"` + filler.Hex() + `","orders":[{"order":"0xdeadbeef","sig":"0x"}],"fill_contract":"` + fillAddr.Hex() + `"}`, http.StatusBadRequest, "malformed_order"},
		{"unknown fill contract", strings.Replace(fresh, fillAddr.Hex(), challenger.Hex(), 1), http.StatusUnprocessableEntity, "invalid_fill_contract"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/orders/execute", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeError(t, rec).Type)
			}
		})
	}
}

func TestSettlementRoutes(t *testing.T) {
	f := newFixture(t, "", false)
	signed := f.crossChainOrder(t)
	require.NoError(t, f.ledger.Mint(token, challenger, big.NewInt(100)))
	require.NoError(t, f.ledger.Approve(token, challenger, settlerAddr, ledger.MaxUint256))

	body := `{"caller":"` + filler.Hex() + `","order":"` + hexutil.Encode(signed.Order) +
		`","sig":"` + hexutil.Encode(signed.Sig) + `","target_chain_filler":"` + filler.Hex() + `"}`
	rec := f.do(http.MethodPost, "/settlements", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created settlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	hash := orders.Hash(signed.Order)
	assert.Equal(t, hash, created.OrderHash)
	assert.Equal(t, models.StatusPending, created.Settlement.Status)

	again := f.do(http.MethodPost, "/settlements", body)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "already_processed", decodeError(t, again).Type)

	action := func(name string, caller common.Address) *httptest.ResponseRecorder {
		return f.do(http.MethodPost, "/settlements/"+hash.Hex()+"/"+name, `{"caller":"`+caller.Hex()+`"}`)
	}

	early := action("finalize", filler)
	assert.Equal(t, http.StatusTooEarly, early.Code)
	assert.Equal(t, "too_early", decodeError(t, early).Type)

	rec = action("challenge", challenger)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var challenged settlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenged))
	assert.Equal(t, models.StatusChallenged, challenged.Settlement.Status)
	assert.Equal(t, challenger, challenged.Settlement.Challenger)
	assert.Equal(t, http.StatusConflict, action("challenge", challenger).Code)

	unattested := action("finalize", filler)
	assert.Equal(t, http.StatusUnprocessableEntity, unattested.Code)
	assert.Equal(t, "fill_not_attested", decodeError(t, unattested).Type)

	f.clock.Set(1301)
	rec = action("cancel", challenger)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	missing := f.do(http.MethodPost, "/settlements/"+common.HexToHash("0x404").Hex()+"/challenge", `{"caller":"`+challenger.Hex()+`"}`)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "not_found", decodeError(t, missing).Type)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/settlements/"+hash.Hex()+"/cancel", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/settlements/0x12/cancel", `{"caller":"`+challenger.Hex()+`"}`).Code)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, "", false)
	hash := f.initiate(t)
	require.NoError(t, f.ledger.Mint(token, challenger, big.NewInt(100)))
	require.NoError(t, f.ledger.Approve(token, challenger, settlerAddr, ledger.MaxUint256))
	require.NoError(t, f.settler.ChallengeSettlement(challenger, hash))

	var all []struct {
		Index int             `json:"index"`
		Name  string          `json:"name"`
		Event json.RawMessage `json:"event"`
	}
	rec := f.do(http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, models.EventInitiateSettlement, all[0].Name)
	assert.Equal(t, models.EventSettlementChallenged, all[1].Name)
	assert.Equal(t, 1, all[1].Index)
	assert.Contains(t, string(all[1].Event), challenger.Hex())

	rec = f.do(http.MethodGet, "/events?from=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].Index)

	assert.Equal(t, "[]\n", f.do(http.MethodGet, "/events?from=5", "").Body.String())
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/events?from=-1", "").Code)
}

func TestFaucetRoutesNeedFaucet(t *testing.T) {
	f := newFixture(t, "", false)
	body := `{"token":"` + token.Hex() + `","owner":"` + filler.Hex() + `","amount":"0x1"}`
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/tokens/mint", body).Code)
	assert.Equal(t, 0, f.ledger.BalanceOf(token, filler).Sign())

	on := newFixture(t, "", true)
	assert.Equal(t, http.StatusBadRequest, on.do(http.MethodPost, "/tokens/mint", `{"token":"`+token.Hex()+`"}`).Code)
	assert.Equal(t, http.StatusOK, on.do(http.MethodPost, "/tokens/mint", body).Code)
	assert.Equal(t, big.NewInt(1), on.ledger.BalanceOf(token, filler))
	assert.Equal(t, http.StatusBadRequest, on.do(http.MethodGet, "/tokens/0x12/balances/"+filler.Hex(), "").Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
	}{
		{"missing settlement", &settler.SettlementError{Err: settler.ErrSettlementDoesNotExist}, http.StatusNotFound, "not_found"},
		{"oracle down", &settler.SettlementError{Err: settler.ErrOracleUnavailable}, http.StatusServiceUnavailable, "oracle_unavailable"},
		{"deadline passed", &settler.SettlementError{Err: settler.ErrChallengeDeadlinePassed}, http.StatusUnprocessableEntity, "permanent"},
		{"bad order", &settler.SettlementError{Err: orders.ErrMalformedOrder}, http.StatusBadRequest, "malformed_order"},
		{"expired", &reactor.OrderError{Err: reactor.ErrDeadlinePassed}, http.StatusUnprocessableEntity, "expired"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, errorType := statusFor(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantType, errorType)
		})
	}
}
