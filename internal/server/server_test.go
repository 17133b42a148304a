package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/danmuck/reservectl/internal/controller"
	"github.com/danmuck/reservectl/internal/host"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports/sim"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/protocol/frame"
	"github.com/danmuck/reservectl/internal/store"
	"github.com/danmuck/reservectl/internal/testutil/testlog"
	"github.com/danmuck/reservectl/internal/testutil/tlstest"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
)

const operatorToken = "operator"

type fixture struct {
	srv      *Server
	env      *host.Environment
	token    string
	accounts []protocol.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newTokenFixture(t, operatorToken)
}

func newTokenFixture(t *testing.T, token string) *fixture {
	t.Helper()
	w := sim.NewWorld(150_000_000_000, 1_700_000_000)
	ctrl, err := controller.New(controller.Deps{
		Program:    sim.ProgramID,
		Keys:       sim.Keys(),
		Custody:    w.Custody(),
		Strategies: w.Strategies(),
		Issuer:     w.Issuer(),
		Oracle:     w.Oracle(),
		Clock:      w.Clock(),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := host.New(ctrl, ledger.State{}, host.Options{Journal: w, Persister: st})
	srv := New("reservectl-test", ":0", nil, env, st)
	srv.RequireToken(token)
	srv.RegisterRoutes()

	accounts := []protocol.Account{
		{Key: ctrl.StateKey(), Writable: true},
		{Key: solana.NewWallet().PublicKey(), Signer: true},
	}
	for len(accounts) < 10 {
		accounts = append(accounts, protocol.Account{Key: solana.NewWallet().PublicKey()})
	}
	return &fixture{srv: srv, env: env, token: token, accounts: accounts}
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rr := httptest.NewRecorder()
	f.srv.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func (f *fixture) invokeJSON(t *testing.T, data []byte) (*httptest.ResponseRecorder, host.Receipt) {
	t.Helper()
	body, err := json.Marshal(EncodeInvoke(f.accounts, data))
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	rr := f.do(t, http.MethodPost, "/invoke", "application/json", body)
	var receipt host.Receipt
	if rr.Code != http.StatusBadRequest {
		if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
			t.Fatalf("decode receipt: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, receipt
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	init := protocol.InitPayload{
		TokenIssuer:  solana.NewWallet().PublicKey(),
		YieldToken:   solana.NewWallet().PublicKey(),
		SOLStrategy:  solana.NewWallet().PublicKey(),
		USDCStrategy: solana.NewWallet().PublicKey(),
		Accelerator:  solana.NewWallet().PublicKey(),
	}
	rr, receipt := f.invokeJSON(t, protocol.Instruction(protocol.OpInitialize, init.Encode()))
	if rr.Code != http.StatusOK || !receipt.Committed {
		t.Fatalf("initialize failed status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthReadyAndMetrics(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rr := f.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, rr.Code)
		}
		log.Info().Msgf("server/http: GET %s status=%d", path, rr.Code)
	}
}

func TestInvokeJSONCommitsAndStateReflectsIt(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.initialize(t)

	rr := f.do(t, http.MethodGet, "/state", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /state status=%d", rr.Code)
	}
	var body struct {
		State ledger.State `json:"state"`
		Phase string       `json:"phase"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !body.State.Initialized || body.State.Authority != f.accounts[1].Key {
		t.Fatalf("unexpected state %+v", body.State)
	}
	if body.Phase != "normal" {
		t.Fatalf("expected normal phase, got %q", body.Phase)
	}
}

func TestInvokeRejectionReturnsReceiptWithCode(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.initialize(t)

	rr, receipt := f.invokeJSON(t, []byte{99})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if receipt.Committed || receipt.Code != protocol.CodeInvalidInstructionData {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestPauseEventIsListed(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.initialize(t)

	data := protocol.Instruction(protocol.OpEmergencyPause, protocol.EmergencyPayload{Type: 5}.Encode())
	if rr, receipt := f.invokeJSON(t, data); rr.Code != http.StatusOK || !receipt.Record.IsPaused {
		t.Fatalf("pause failed status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr := f.do(t, http.MethodGet, "/events?limit=10", "", nil)
	var body struct {
		Events []ledger.EmergencyEvent `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Type != ledger.EmergencyManualOverride {
		t.Fatalf("unexpected events %+v", body.Events)
	}

	rr = f.do(t, http.MethodGet, "/invocations", "", nil)
	var inv struct {
		Invocations []store.Invocation `json:"invocations"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &inv); err != nil {
		t.Fatalf("decode invocations: %v", err)
	}
	if len(inv.Invocations) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(inv.Invocations))
	}
}

func TestInvokeBinaryFrame(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	body, err := frame.Marshal(frame.Frame{
		Accounts: f.accounts[:1],
		Data:     protocol.Instruction(protocol.OpReadAggregatedPrice, nil),
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	rr := f.do(t, http.MethodPost, "/invoke", "application/octet-stream", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/invoke", "application/octet-stream", body[:5])
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for truncated frame, got %d", rr.Code)
	}
}

func TestInvokeMalformedJSON(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	cases := map[string]string{
		"hex":     `{"accounts":[],"data":"zz"}`,
		"account": `{"accounts":[{"key":"not a key"}],"data":"00"}`,
		"json":    `{`,
	}
	for name, body := range cases {
		rr := f.do(t, http.MethodPost, "/invoke", "application/json", []byte(body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestInvokeRequiresTokenWhenConfigured(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(150_000_000_000, 1_700_000_000)
	ctrl, err := controller.New(controller.Deps{
		Program:    sim.ProgramID,
		Keys:       sim.Keys(),
		Custody:    w.Custody(),
		Strategies: w.Strategies(),
		Issuer:     w.Issuer(),
		Oracle:     w.Oracle(),
		Clock:      w.Clock(),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	srv := New("reservectl-guarded", ":0", nil, host.New(ctrl, ledger.State{}, host.Options{Journal: w}), nil)
	srv.RequireToken("operator")
	srv.RegisterRoutes()

	body, _ := json.Marshal(EncodeInvoke([]protocol.Account{{Key: ctrl.StateKey()}}, []byte{byte(protocol.OpReadAggregatedPrice)}))
	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		srv.HTTPRouter().ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := send("operator"); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}

	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("events without history: %d", rr.Code)
	}
}

func TestServeOverTLS(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, "reservectl-test-ca")
	certFile, keyFile := ca.ServerPair(t, dir)

	if err := f.srv.UseTLS(filepath.Join(dir, "missing.crt"), keyFile); err == nil {
		t.Fatalf("expected missing cert error")
	}
	if err := f.srv.UseTLS(certFile, keyFile); err != nil {
		t.Fatalf("use tls: %v", err)
	}

	ts := httptest.NewUnstartedServer(f.srv.HTTPRouter())
	ts.TLS = f.srv.TLSConfig()
	ts.StartTLS()
	defer ts.Close()

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: ca.Pool()}}}
	resp, err := client.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("tls request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 over tls, got %d", resp.StatusCode)
	}
}

func TestOpenInvokeIgnoresSignerFlags(t *testing.T) {
	testlog.Start(t)
	f := newTokenFixture(t, "")
	ctx := context.Background()

	init := protocol.InitPayload{
		TokenIssuer:  solana.NewWallet().PublicKey(),
		YieldToken:   solana.NewWallet().PublicKey(),
		SOLStrategy:  solana.NewWallet().PublicKey(),
		USDCStrategy: solana.NewWallet().PublicKey(),
		Accelerator:  solana.NewWallet().PublicKey(),
	}
	if _, err := f.env.Invoke(ctx, f.accounts, protocol.Instruction(protocol.OpInitialize, init.Encode())); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := f.env.Invoke(ctx, f.accounts, protocol.Instruction(protocol.OpMasterPauseAll, nil)); err != nil {
		t.Fatalf("pause all: %v", err)
	}

	rr := f.do(t, http.MethodGet, "/state", "", nil)
	var body struct {
		State ledger.State `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	accounts := append([]protocol.Account(nil), f.accounts...)
	accounts[1] = protocol.Account{Key: body.State.Authority, Signer: true}

	for _, op := range []protocol.Opcode{protocol.OpResumeOperations, protocol.OpMasterPauseAll, protocol.OpMasterCircuitBreaker} {
		req, _ := json.Marshal(EncodeInvoke(accounts, protocol.Instruction(op, nil)))
		rr = f.do(t, http.MethodPost, "/invoke", "application/json", req)
		var receipt host.Receipt
		if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
			t.Fatalf("decode receipt: %v", err)
		}
		if rr.Code != http.StatusUnprocessableEntity || receipt.Committed || receipt.Code != protocol.CodeUnauthorized {
			t.Fatalf("%s without token: status=%d receipt=%+v", op, rr.Code, receipt)
		}
		log.Info().Msgf("server/http: open %s rejected code=%d", op, receipt.Code)
	}
	if st := f.env.State(); !st.Record.IsPaused || st.Record.EmergencyOverrideCount != 1 {
		t.Fatalf("record changed by unauthenticated requests: %+v", st.Record)
	}
}
