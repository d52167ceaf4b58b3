package sealbox

import (
	"context"
)

// AddRecipients wraps the session key of an existing hybrid container for
// additional recipients. The presented key material must already open the
// container; no chunk is re-encrypted. The manifest is replaced atomically,
// so a failed call leaves the previous recipient set intact.
func (e *Engine) AddRecipients(ctx context.Context, containerPath string, km KeyMaterial, recipients ...string) (*Manifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFilePath(containerPath); err != nil {
		return nil, err
	}
	if km == nil {
		return nil, NewValidationError("key_material", nil, "key material cannot be nil")
	}
	if len(recipients) == 0 {
		return nil, NewValidationError("recipients", nil, "no recipients to add")
	}
	if e.config.Keyring == nil {
		return nil, NewValidationError("keyring", nil, "adding recipients requires a keyring")
	}

	man, err := LoadManifest(e.fs, containerPath)
	if err != nil {
		return nil, err
	}
	if man.Mode != ModeHybrid {
		return nil, NewValidationError("container", man.Mode, "recipients can only be added to hybrid containers")
	}

	sessionKey, err := e.recoverSessionKey(man, km)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(sessionKey)

	for _, id := range recipients {
		if err := ValidateRecipientID(id); err != nil {
			return nil, err
		}
		if _, exists := man.RecipientKeys[id]; exists {
			return nil, NewValidationError("recipients", id, "recipient already has access")
		}
		pub, err := e.config.Keyring.PublicKey(id)
		if err != nil {
			return nil, err
		}
		wk, err := wrapSessionKey(e.rand, id, pub, sessionKey)
		if err != nil {
			return nil, err
		}
		man.RecipientKeys[id] = &WrappedKey{
			RecipientID:       id,
			WrappedSessionKey: wk,
			WrapAlgorithm:     WrapAlgorithmRSAOAEP,
		}
	}

	if err := man.Validate(); err != nil {
		return nil, err
	}
	if err := man.Store(e.fs, containerPath); err != nil {
		return nil, err
	}
	return man, nil
}

// Reencrypt reads a container with existing key material and writes a new
// container at destPath under a different mode, password or recipient set.
// The source container is not modified. Chunk boundaries, nonces and the
// file identifier of the new container are fresh.
func (e *Engine) Reencrypt(ctx context.Context, containerPath string, km KeyMaterial, mode Mode, destPath string) (*Manifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := e.Open(ctx, containerPath, km)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return e.Encrypt(ctx, r, r.Filename(), mode, destPath)
}
