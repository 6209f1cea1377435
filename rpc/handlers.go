package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cdpchain/config"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/mempool"
	"cdpchain/native/auction"
	"cdpchain/native/cdp"
	"cdpchain/observability"
)

var errBadRequest = errors.New("bad request")

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, cdp.ErrInvalidCollateralType):
		status = http.StatusBadRequest
	case errors.Is(err, auction.ErrAuctionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, mempool.ErrPoolFull):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestId", RequestIDFrom(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, r, status, err.Error())
}

func assetParam(r *http.Request, name string) (types.AssetID, error) {
	asset := types.NormalizeAsset(chi.URLParam(r, name))
	if asset == "" {
		return "", fmt.Errorf("%w: %s required", errBadRequest, name)
	}
	return asset, nil
}

func (s *Server) head(w http.ResponseWriter, r *http.Request) {
	head := s.proc.Head()
	writeJSON(w, http.StatusOK, HeadResponse{Height: head.Height, Timestamp: head.Timestamp})
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := crypto.DecodeAddress(chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: owner: %v", errBadRequest, err))
		return
	}
	var resp PositionResponse
	err = s.proc.View(func() error {
		pos, err := s.proc.CDP.Position(asset, owner)
		if err != nil {
			return err
		}
		value, err := s.proc.CDP.DebitValue(asset, pos.Debit)
		if err != nil {
			return err
		}
		resp = PositionResponse{
			Asset:      string(asset),
			Owner:      owner.String(),
			Collateral: pos.Collateral,
			Debit:      pos.Debit,
			DebitValue: value,
		}
		if price, ok := s.proc.Oracle.Price(asset); ok {
			if ratio, err := s.proc.CDP.CalculateCollateralRatio(asset, pos.Collateral, pos.Debit, price); err == nil {
				resp.CollateralRatio = config.FormatFixed(ratio)
			}
			if pos.Debit.Sign() > 0 {
				resp.Unsafe, _ = s.proc.CDP.IsUnsafe(asset, owner)
			}
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var resp ParamsResponse
	err = s.proc.View(func() error {
		ok, err := s.proc.CDP.IsCollateral(asset)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", cdp.ErrInvalidCollateralType, asset)
		}
		params, err := s.proc.CDP.CollateralParams(asset)
		if err != nil {
			return err
		}
		rate, err := s.proc.CDP.DebitExchangeRate(asset)
		if err != nil {
			return err
		}
		total, err := s.proc.CDP.TotalDebit(asset)
		if err != nil {
			return err
		}
		resp = newParamsResponse(string(asset), params, rate, total)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) treasury(w http.ResponseWriter, r *http.Request) {
	var resp TreasuryResponse
	err := s.proc.View(func() error {
		debit, err := s.proc.Treasury.DebitPool()
		if err != nil {
			return err
		}
		surplus, err := s.proc.Treasury.SurplusPool()
		if err != nil {
			return err
		}
		resp = TreasuryResponse{
			Account:     s.proc.Treasury.Account().String(),
			StableAsset: string(s.proc.Treasury.StableAsset()),
			DebitPool:   debit,
			SurplusPool: surplus,
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) custody(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r, "asset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var resp CustodyResponse
	err = s.proc.View(func() error {
		custody, err := s.proc.Treasury.Custody(asset)
		if err != nil {
			return err
		}
		resp = CustodyResponse{Asset: string(asset), Total: custody.Total, Free: custody.Free, Reserved: custody.Reserved()}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) liquidityPool(w http.ResponseWriter, r *http.Request) {
	a, err := assetParam(r, "a")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := assetParam(r, "b")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, ok := types.NewTradingPair(a, b); !ok {
		s.fail(w, r, fmt.Errorf("%w: invalid pair %s/%s", errBadRequest, a, b))
		return
	}
	var resp PoolResponse
	err = s.proc.View(func() error {
		enabled, err := s.proc.DEX.IsEnabled(a, b)
		if err != nil {
			return err
		}
		ra, rb, err := s.proc.DEX.GetLiquidityPool(a, b)
		if err != nil {
			return err
		}
		resp = PoolResponse{AssetA: string(a), AssetB: string(b), Enabled: enabled, ReserveA: ra, ReserveB: rb}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) auctions(w http.ResponseWriter, r *http.Request) {
	var resp []AuctionResponse
	err := s.proc.View(func() error {
		list, err := s.proc.Auctions.Auctions()
		if err != nil {
			return err
		}
		resp = make([]AuctionResponse, 0, len(list))
		for _, a := range list {
			resp = append(resp, newAuctionResponse(a))
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) auction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: auction id", errBadRequest))
		return
	}
	var resp AuctionResponse
	err = s.proc.View(func() error {
		a, err := s.proc.Auctions.Auction(id)
		if err != nil {
			return err
		}
		resp = newAuctionResponse(a)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) shutdownStatus(w http.ResponseWriter, r *http.Request) {
	var resp ShutdownResponse
	err := s.proc.View(func() error {
		status, err := s.proc.Shutdown.Status()
		if err != nil {
			return err
		}
		paused, err := s.proc.Params.PausedModules()
		if err != nil {
			return err
		}
		if paused == nil {
			paused = []string{}
		}
		resp = ShutdownResponse{
			Shutdown:       status.Shutdown,
			RefundOpen:     status.RefundOpen,
			ShutdownHeight: status.ShutdownHeight,
			RefundHeight:   status.RefundHeight,
			Paused:         paused,
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: read body: %v", errBadRequest, err))
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode transaction: %v", errBadRequest, err))
		return
	}
	if strings.TrimSpace(string(tx.Type)) == "" {
		s.fail(w, r, fmt.Errorf("%w: transaction type required", errBadRequest))
		return
	}
	signer, ok := SignerFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !tx.Signer.IsZero() && tx.Signer != signer {
		writeError(w, r, http.StatusForbidden, "signer does not match token subject")
		return
	}
	tx.Signer = signer
	hash, err := tx.Hash()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.pool.Add(&tx); err != nil {
		if errors.Is(err, mempool.ErrPoolFull) {
			observability.Default().RecordThrottle("tx", "pool_full")
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{TxHash: fmt.Sprintf("0x%x", hash), Pending: s.pool.Len()})
}
