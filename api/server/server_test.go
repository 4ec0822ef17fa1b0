package server

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
	"github.com/nikakhov/bitshares-toolkit/core/client"
	"github.com/nikakhov/bitshares-toolkit/core/storage"
	"github.com/nikakhov/bitshares-toolkit/core/wallet"
)

type apiEnv struct {
	srv       *Server
	c         *client.Client
	w         *wallet.Wallet
	alicePub  ed25519.PublicKey
	alicePriv ed25519.PrivateKey
	bobPub    ed25519.PublicKey
}

func newAPIEnv(t *testing.T, withGenesis bool) *apiEnv {
	t.Helper()
	e := &apiEnv{}
	var err error
	e.alicePub, e.alicePriv, err = ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	e.bobPub, _, err = ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "chaindb"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	db, err := chain.NewChainDB(store, nil)
	require.NoError(t, err)

	if withGenesis {
		gen := &block.TrxBlock{
			BlockNum:  0,
			Timestamp: time.Unix(1700000000, 0).UTC(),
			Trxs:      []block.SignedTransaction{{To: e.alicePub, Amount: 1000, Timestamp: time.Unix(1700000000, 0).UTC()}},
		}
		require.NoError(t, db.PushBlock(gen))
	}

	// Peer mode: broadcasts to an empty gossip set succeed and self-apply.
	e.c = client.NewClient(client.Peer)
	require.NoError(t, e.c.SetChain(db))
	e.w = wallet.NewWallet()
	e.w.Track(e.alicePub, e.alicePriv)
	require.NoError(t, e.c.SetWallet(e.w))

	e.srv = NewServer(e.c, "127.0.0.1:0")
	return e
}

func TestHandleStatus(t *testing.T) {
	e := newAPIEnv(t, false)
	rec := httptest.NewRecorder()
	e.srv.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "initializing", resp.Status)
	require.Equal(t, "peer", resp.Mode)
	require.True(t, resp.Metrics.ChainEmpty)
}

func TestHandleStatusWithChain(t *testing.T) {
	e := newAPIEnv(t, true)
	rec := httptest.NewRecorder()
	e.srv.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// chain is live but no peer is connected
	require.Equal(t, "isolated", resp.Status)
	require.False(t, resp.Metrics.ChainEmpty)
	require.Equal(t, uint32(0), resp.Metrics.BlockHeight)
	require.NotEmpty(t, resp.Metrics.LastBlockTime)
}

func TestHandleMempool(t *testing.T) {
	e := newAPIEnv(t, true)
	trx, err := e.w.NewTransaction(e.alicePub, e.bobPub, 10, "m")
	require.NoError(t, err)
	require.NoError(t, e.c.OnNewTransaction(trx))

	rec := httptest.NewRecorder()
	e.srv.HandleMempool(rec, httptest.NewRequest(http.MethodGet, "/mempool", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	require.Equal(t, []string{trx.ID().String()}, ids)
}

func TestHandleBlock(t *testing.T) {
	e := newAPIEnv(t, true)

	rec := httptest.NewRecorder()
	e.srv.HandleBlock(rec, httptest.NewRequest(http.MethodGet, "/block/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var blk block.TrxBlock
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blk))
	require.Equal(t, uint32(0), blk.BlockNum)

	rec = httptest.NewRecorder()
	e.srv.HandleBlock(rec, httptest.NewRequest(http.MethodGet, "/block/7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	e.srv.HandleBlock(rec, httptest.NewRequest(http.MethodGet, "/block/seven", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBroadcastTx(t *testing.T) {
	e := newAPIEnv(t, true)
	trx, err := e.w.NewTransaction(e.alicePub, e.bobPub, 10, "api")
	require.NoError(t, err)
	body, err := json.Marshal(trx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, httptest.NewRequest(http.MethodGet, "/broadcast_tx", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, httptest.NewRequest(http.MethodPost, "/broadcast_tx", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, e.c.Pool().Size())

	// an unfunded transaction is rejected by evaluation
	forged, err := e.w.NewTransaction(e.alicePub, e.bobPub, 100000, "broke")
	require.NoError(t, err)
	body, err = json.Marshal(forged)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, httptest.NewRequest(http.MethodPost, "/broadcast_tx", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleBroadcastTxJWT(t *testing.T) {
	// set after package init: the secret must be read per request, not
	// captured in a package var
	t.Setenv("JWT_SECRET", "topsecret")

	e := newAPIEnv(t, true)
	trx, err := e.w.NewTransaction(e.alicePub, e.bobPub, 10, "auth")
	require.NoError(t, err)
	body, err := json.Marshal(trx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, httptest.NewRequest(http.MethodPost, "/broadcast_tx", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "btscli",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("topsecret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/broadcast_tx", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/broadcast_tx", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	e.srv.HandleBroadcastTx(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
