package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/utils"
)

// UserInput is the admin payload for creating or patching a user. The
// permission set is given either as the explicit flag object or as a
// friendly level name; the flag object wins when both are present.
type UserInput struct {
	Username        string
	Password        string
	Memo            string
	PermissionLevel string
	Permissions     *auth.Permissions
}

// resolveAccess collapses the two permission spellings into the five-bit
// field.
func resolveAccess(in UserInput) (uint8, *ValidationError) {
	if in.Permissions != nil {
		return in.Permissions.Encode(), nil
	}
	if in.PermissionLevel == "" {
		return 0, invalid("permissionLevel", "Field missing from request")
	}
	level, ok := auth.LevelFromName(in.PermissionLevel)
	if !ok {
		return 0, invalid("permissionLevel", "Permission level not one of service, monitor, or admin.")
	}
	return auth.PermissionsForLevel(level).Encode(), nil
}

// CreateUser registers a new user with a bcrypt-hashed password.
func CreateUser(ctx context.Context, store UserStore, in UserInput, bcryptCost int) (model.User, error) {
	fields := map[string]string{}
	if in.Username == "" {
		fields["username"] = "Field missing from request"
	}
	if in.Password == "" {
		fields["password"] = "Field missing from request"
	}
	access, verr := resolveAccess(in)
	if verr != nil {
		for f, msg := range verr.Fields {
			fields[f] = msg
		}
	}
	if len(fields) > 0 {
		return model.User{}, &ValidationError{Fields: fields}
	}

	if _, exists, err := store.ByUsername(ctx, in.Username); err != nil {
		return model.User{}, err
	} else if exists {
		return model.User{}, ErrUsernameExists
	}

	hash, err := utils.HashPassword(in.Password, bcryptCost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:       uuid.NewString(),
		Username: in.Username,
		Password: hash,
		Access:   access,
		Memo:     in.Memo,
	}
	if err := store.Insert(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// PatchUser updates an existing user. Only the supplied fields change:
// an empty password keeps the old hash, a nil permission input keeps the
// old access field, and the memo updates whenever present in the
// request (the handler passes a pointer to distinguish absent from
// empty).
func PatchUser(ctx context.Context, store UserStore, username string, in UserInput, memo *string, bcryptCost int) (model.User, error) {
	if username == "" {
		return model.User{}, invalid("username", "Field missing from request")
	}
	u, found, err := store.ByUsername(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	if !found {
		return model.User{}, ErrNotFound
	}

	if in.Password != "" {
		hash, err := utils.HashPassword(in.Password, bcryptCost)
		if err != nil {
			return model.User{}, err
		}
		u.Password = hash
	}
	if in.Permissions != nil || in.PermissionLevel != "" {
		access, verr := resolveAccess(in)
		if verr != nil {
			return model.User{}, verr
		}
		u.Access = access
	}
	if memo != nil {
		u.Memo = *memo
	}
	if err := store.Update(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// DeactivateUser clears the active bit. The row, its credentials, and
// its memo survive; the account simply cannot do anything anymore.
func DeactivateUser(ctx context.Context, store UserStore, username string) error {
	u, found, err := store.ByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	perms := auth.DecodePermissions(u.Access)
	perms.Active = false
	u.Access = perms.Encode()
	return store.Update(ctx, u)
}

// ListUsers returns all users. Password hashes stay in the model; the
// handler's response shape never includes them.
func ListUsers(ctx context.Context, store UserStore) ([]model.User, error) {
	return store.List(ctx)
}

// ClientInput is the admin payload for registering a machine producer.
type ClientInput struct {
	Name        string
	Memo        string
	Permissions *auth.Permissions
}

// CreateClient registers a client grant. Callers issue the initial
// token pair for the new id inside the same transaction.
func CreateClient(ctx context.Context, store ClientStore, in ClientInput) (model.ClientGrant, error) {
	if in.Name == "" {
		return model.ClientGrant{}, invalid("name", "Field missing from request")
	}
	perms := auth.Permissions{Active: true}
	if in.Permissions != nil {
		perms = *in.Permissions
	}
	c := model.ClientGrant{
		ID:     uuid.NewString(),
		Name:   in.Name,
		Memo:   in.Memo,
		Access: perms.Encode(),
	}
	if err := store.Insert(ctx, c); err != nil {
		return model.ClientGrant{}, err
	}
	return c, nil
}

// RevokeClient expires both of a grant's token slots immediately.
func RevokeClient(ctx context.Context, store ClientStore, id string) error {
	revoked, err := store.Revoke(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !revoked {
		return ErrNotFound
	}
	return nil
}

// ListClients returns all client grants.
func ListClients(ctx context.Context, store ClientStore) ([]model.ClientGrant, error) {
	return store.List(ctx)
}
