package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/reservectl/internal/auth"
	"github.com/danmuck/reservectl/internal/emergency"
	"github.com/danmuck/reservectl/internal/host"
	"github.com/danmuck/reservectl/internal/observability"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/protocol/frame"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 64 << 10
)

var ErrBadRequest = errors.New("server: bad request")

// AccountJSON is one account reference in a JSON invoke request.
type AccountJSON struct {
	Key      string `json:"key"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// InvokeRequest is the JSON form of an instruction. Data is hex encoded.
type InvokeRequest struct {
	Accounts []AccountJSON `json:"accounts"`
	Data     string        `json:"data"`
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"node":    s.ID,
			"version": "0.1.0",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		st := s.env.State()
		c.JSON(http.StatusOK, gin.H{
			"ready":       true,
			"initialized": st.Initialized,
			"node":        s.ID,
		})
	})

	r.GET("/state", func(c *gin.Context) {
		st := s.env.State()
		c.JSON(http.StatusOK, gin.H{
			"state": st,
			"phase": emergency.PhaseOf(st.Record, st.Params.MinCollateralRatioBps).String(),
		})
	})

	r.GET("/events", func(c *gin.Context) {
		if s.history == nil {
			c.JSON(http.StatusOK, gin.H{"events": []any{}})
			return
		}
		events, err := s.history.ListEvents(c.Request.Context(), listLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	r.GET("/invocations", func(c *gin.Context) {
		if s.history == nil {
			c.JSON(http.StatusOK, gin.H{"invocations": []any{}})
			return
		}
		after, _ := strconv.ParseInt(c.Query("after"), 10, 64)
		list, err := s.history.ListInvocations(c.Request.Context(), after, listLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invocations": list})
	})

	r.POST("/invoke", auth.Require(s.guard), func(c *gin.Context) {
		accounts, data, err := readInvoke(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if s.guard == nil {
			accounts = withoutSigners(accounts)
		}
		receipt, err := s.env.Invoke(c.Request.Context(), accounts, data)
		c.Set(observability.OpcodeKey, receipt.Opcode)
		c.Set(observability.CodeKey, uint64(receipt.Code))
		c.JSON(invokeStatus(err), receipt)
	})
}

// withoutSigners drops caller-asserted signer flags. Without an operator token
// nothing vouches for them, so signer and authority gated opcodes must fail.
func withoutSigners(accounts []protocol.Account) []protocol.Account {
	out := make([]protocol.Account, len(accounts))
	for i, a := range accounts {
		a.Signer = false
		out[i] = a
	}
	return out
}

func invokeStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, host.ErrPersist):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func listLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func readInvoke(c *gin.Context) ([]protocol.Account, []byte, error) {
	if strings.HasPrefix(c.ContentType(), "application/octet-stream") {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			return nil, nil, err
		}
		f, err := frame.Unmarshal(body, frame.DefaultLimits())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return f.Accounts, f.Data, nil
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return req.Decode()
}

// Decode converts the JSON request into controller inputs.
func (r InvokeRequest) Decode() ([]protocol.Account, []byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(r.Data, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	accounts := make([]protocol.Account, 0, len(r.Accounts))
	for i, a := range r.Accounts {
		key, err := solana.PublicKeyFromBase58(a.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: account %d: %v", ErrBadRequest, i, err)
		}
		accounts = append(accounts, protocol.Account{Key: key, Signer: a.Signer, Writable: a.Writable})
	}
	return accounts, data, nil
}

// EncodeInvoke builds the JSON request for accounts and data.
func EncodeInvoke(accounts []protocol.Account, data []byte) InvokeRequest {
	req := InvokeRequest{Data: hex.EncodeToString(data)}
	for _, a := range accounts {
		req.Accounts = append(req.Accounts, AccountJSON{Key: a.Key.String(), Signer: a.Signer, Writable: a.Writable})
	}
	return req
}
