package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type credentialRepository struct {
	*base
}

func (r *credentialRepository) credentials() *firestore.CollectionRef {
	return r.collection(CollectionCredentials)
}

func (r *credentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	if _, err := r.credentials().Doc(string(cred.ID)).Create(ctx, cred); err != nil {
		return goerr.Wrap(err, "failed to create credential", goerr.V(model.CredentialIDKey, cred.ID))
	}
	return nil
}

func (r *credentialRepository) Get(ctx context.Context, tenantID types.TenantID, id types.CredentialID) (*model.Credential, error) {
	doc, err := r.credentials().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "credential not found", goerr.V(model.CredentialIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get credential", goerr.V(model.CredentialIDKey, id))
	}

	var c model.Credential
	if err := doc.DataTo(&c); err != nil {
		return nil, goerr.Wrap(err, "failed to decode credential", goerr.V(model.CredentialIDKey, id))
	}
	if c.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "credential not found",
			goerr.V(model.CredentialIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return &c, nil
}

func (r *credentialRepository) Update(ctx context.Context, cred *model.Credential) error {
	ref := r.credentials().Doc(string(cred.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "credential not found", goerr.V(model.CredentialIDKey, cred.ID))
			}
			return goerr.Wrap(err, "failed to get credential")
		}
		tenant, err := doc.DataAt("TenantID")
		if err != nil {
			return goerr.Wrap(err, "failed to read credential tenant")
		}
		if tenant != string(cred.TenantID) {
			return goerr.Wrap(ErrNotFound, "credential not found", goerr.V(model.CredentialIDKey, cred.ID))
		}
		return tx.Set(ref, cred)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update credential", goerr.V(model.CredentialIDKey, cred.ID))
	}
	return nil
}

func (r *credentialRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Credential, error) {
	q := r.credentials().
		Where("TenantID", "==", string(tenantID)).
		OrderBy("CreatedAt", firestore.Desc)
	return collect[model.Credential](ctx, q, "credentials")
}

func (r *credentialRepository) ListByUser(ctx context.Context, tenantID types.TenantID, userID string) ([]*model.Credential, error) {
	q := r.credentials().
		Where("TenantID", "==", string(tenantID)).
		Where("UserID", "==", userID).
		OrderBy("CreatedAt", firestore.Desc)
	return collect[model.Credential](ctx, q, "credentials")
}

func (r *credentialRepository) FindActive(ctx context.Context, tenantID types.TenantID, userID, provider string) (*model.Credential, error) {
	q := r.credentials().
		Where("TenantID", "==", string(tenantID)).
		Where("UserID", "==", userID).
		Where("Provider", "==", provider).
		Where("Active", "==", true).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(1)

	creds, err := collect[model.Credential](ctx, q, "credentials")
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "no active credential",
			goerr.V(model.TenantIDKey, tenantID), goerr.V("user_id", userID), goerr.V("provider", provider))
	}
	return creds[0], nil
}
