// Package access implements the owner seat and named role grants that
// gate privileged operations across the engine.
package access

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/crypto"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpTransferOwnership, handleTransferOwnership)
	engine.Register(core.OpGrantRole, handleGrantRole)
	engine.Register(core.OpRevokeRole, handleRevokeRole)
}

// RequireOwner fails with core.ErrUnauthorized unless addr is the owner.
func RequireOwner(st core.State, addr string) error {
	meta, err := st.GetMeta()
	if err != nil {
		return err
	}
	if meta.Owner != addr {
		return fmt.Errorf("caller %s is not the owner: %w", addr, core.ErrUnauthorized)
	}
	return nil
}

// CanMint reports whether addr may create ledger balance: the owner or
// any account holding the minter role.
func CanMint(st core.State, addr string) (bool, error) {
	meta, err := st.GetMeta()
	if err != nil {
		return false, err
	}
	if meta.Owner == addr {
		return true, nil
	}
	return st.HasRole(core.RoleMinter, addr)
}

func handleTransferOwnership(ctx *engine.Context, payload json.RawMessage) error {
	var p core.TransferOwnershipPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_ownership payload: %w", err)
	}
	if err := RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}
	if _, err := crypto.PubKeyFromHex(p.NewOwner); err != nil {
		return fmt.Errorf("invalid new owner: %w", err)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	previous := meta.Owner
	meta.Owner = p.NewOwner
	if err := ctx.State.SetMeta(meta); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventOwnershipTransferred,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"previous_owner": previous, "new_owner": p.NewOwner},
	})
	return nil
}

func handleGrantRole(ctx *engine.Context, payload json.RawMessage) error {
	var p core.RolePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode grant_role payload: %w", err)
	}
	if err := validateRolePayload(&p); err != nil {
		return err
	}
	if err := RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}

	// Idempotent: granting an already-held role is a no-op success.
	held, err := ctx.State.HasRole(p.Role, p.Account)
	if err != nil {
		return err
	}
	if held {
		return nil
	}
	if err := ctx.State.SetRole(p.Role, p.Account, true); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventRoleGranted,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"role": p.Role, "account": p.Account},
	})
	return nil
}

func handleRevokeRole(ctx *engine.Context, payload json.RawMessage) error {
	var p core.RolePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode revoke_role payload: %w", err)
	}
	if err := validateRolePayload(&p); err != nil {
		return err
	}
	if err := RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}

	held, err := ctx.State.HasRole(p.Role, p.Account)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}
	if err := ctx.State.SetRole(p.Role, p.Account, false); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventRoleRevoked,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"role": p.Role, "account": p.Account},
	})
	return nil
}

func validateRolePayload(p *core.RolePayload) error {
	if p.Role == "" {
		return errors.New("role required")
	}
	if p.Account == "" {
		return errors.New("account required")
	}
	return nil
}
