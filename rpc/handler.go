package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/okarvik/reservex/audit"
	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/indexer"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	engine   *engine.Engine
	indexer  *indexer.Indexer
	auditor  *audit.Auditor
	engineID string // expected engine_id; used to reject cross-engine replay
}

// NewHandler creates an RPC Handler. auditor may be nil when audits are
// disabled.
func NewHandler(eng *engine.Engine, idx *indexer.Indexer, auditor *audit.Auditor, engineID string) *Handler {
	return &Handler{engine: eng, indexer: idx, auditor: auditor, engineID: engineID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "sendOp":
		return h.sendOp(req)

	case "getBalance":
		return h.getBalance(req)

	case "getAllowance":
		return h.getAllowance(req)

	case "getToken":
		return h.getToken(req)

	case "getReserve":
		return h.withState(req, func(st core.State) (any, error) { return st.GetReserve() })

	case "getSale":
		return h.withState(req, func(st core.State) (any, error) { return st.GetSale() })

	case "getOwner":
		return h.withState(req, func(st core.State) (any, error) {
			meta, err := st.GetMeta()
			if err != nil {
				return nil, err
			}
			return map[string]string{"owner": meta.Owner}, nil
		})

	case "hasRole":
		return h.hasRole(req)

	case "getListing":
		return h.getListing(req)

	case "getStakes":
		return h.getStakes(req)

	case "getItem":
		return h.getItem(req)

	case "getListingsBySeller":
		return h.getListingsBySeller(req)

	case "getActiveListings":
		rows, err := h.indexer.ActiveListings()
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		return okResponse(req.ID, rows)

	case "getStateRoot":
		return okResponse(req.ID, map[string]string{"state_root": h.engine.StateRoot()})

	case "getAuditReport":
		if h.auditor == nil {
			return errResponse(req.ID, CodeInternalError, "auditing disabled")
		}
		return okResponse(req.ID, h.auditor.LastReport())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// withState serves a parameterless read under the engine lock.
func (h *Handler) withState(req Request, fn func(core.State) (any, error)) Response {
	var result any
	err := h.engine.View(func(st core.State) error {
		v, err := fn(st)
		result = v
		return err
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, result)
}

func (h *Handler) sendOp(req Request) Response {
	var op core.Operation
	if err := json.Unmarshal(req.Params, &op); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject operations destined for a different engine to prevent
	// cross-deployment replay.
	if op.EngineID != h.engineID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("engine ID mismatch: got %q want %q", op.EngineID, h.engineID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	op.ID = op.Hash()
	if err := h.engine.Execute(&op); err != nil {
		return errResponse(req.ID, CodeOpRejected, err.Error())
	}
	return okResponse(req.ID, map[string]string{"op_id": op.ID})
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Token   string `json:"token"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		token := params.Token
		if token == "" {
			meta, err := st.GetMeta()
			if err != nil {
				return nil, err
			}
			token = meta.NativeToken
		}
		bal, err := st.GetBalance(token, params.Address)
		if err != nil {
			return nil, err
		}
		acc, err := st.GetAccount(params.Address)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"address": params.Address,
			"token":   token,
			"balance": bal,
			"nonce":   acc.Nonce,
		}, nil
	})
}

func (h *Handler) getAllowance(req Request) Response {
	var params struct {
		Token   string `json:"token"`
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" || params.Spender == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner and spender are required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		token := params.Token
		if token == "" {
			meta, err := st.GetMeta()
			if err != nil {
				return nil, err
			}
			token = meta.NativeToken
		}
		allowance, err := st.GetAllowance(token, params.Owner, params.Spender)
		if err != nil {
			return nil, err
		}
		return map[string]any{"token": token, "owner": params.Owner,
			"spender": params.Spender, "allowance": allowance}, nil
	})
}

func (h *Handler) getToken(req Request) Response {
	var params struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Symbol == "" {
		return errResponse(req.ID, CodeInvalidParams, "symbol is required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		return st.GetToken(params.Symbol)
	})
}

func (h *Handler) hasRole(req Request) Response {
	var params struct {
		Role    string `json:"role"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Role == "" || params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "role and address are required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		granted, err := st.HasRole(params.Role, params.Address)
		if err != nil {
			return nil, err
		}
		return map[string]any{"role": params.Role, "address": params.Address, "granted": granted}, nil
	})
}

func (h *Handler) getListing(req Request) Response {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return h.withState(req, func(st core.State) (any, error) {
		return st.GetListing(params.ID)
	})
}

func (h *Handler) getStakes(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		return st.GetStakes(params.Address)
	})
}

func (h *Handler) getItem(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	return h.withState(req, func(st core.State) (any, error) {
		return st.GetItem(params.ID)
	})
}

func (h *Handler) getListingsBySeller(req Request) Response {
	var params struct {
		Seller string `json:"seller"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Seller == "" {
		return errResponse(req.ID, CodeInvalidParams, "seller is required")
	}
	rows, err := h.indexer.ListingsBySeller(params.Seller)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, rows)
}
