package avatar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/remote-connectors/pkg/connector"
	"github.com/morezero/remote-connectors/pkg/methods"
)

const logPrefix = "avatar:connector"

// Name is the connector name.
const Name = "Avatar"

// Service implements the avatar methods over a Store.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the appearance of the rows where field equals val. No rows yields an
// appearance with an empty Data map.
func (s *Service) Get(ctx context.Context, field, val string) (*AvatarData, error) {
	rows, err := s.store.GetAvatarRows(ctx, field, val)
	if err != nil {
		return nil, fmt.Errorf("%s - get %s=%s: %w", logPrefix, field, val, err)
	}
	out := &AvatarData{AvatarType: DefaultAvatarType, Data: make(map[string]string, len(rows))}
	for _, r := range rows {
		out.Data[r.Name] = r.Value
	}
	return out, nil
}

// Store replaces the appearance of principalID with data.
func (s *Service) Store(ctx context.Context, principalID uuid.UUID, data *AvatarData) (bool, error) {
	if principalID == uuid.Nil {
		return false, nil
	}
	entries := make(map[string]string)
	if data != nil {
		for k, v := range data.Data {
			entries[truncateName(k)] = v
		}
	}
	if err := s.store.ReplaceAvatar(ctx, principalID, entries); err != nil {
		slog.Error(fmt.Sprintf("%s - store %s: %v", logPrefix, principalID, err))
		return false, nil
	}
	return true, nil
}

// Delete removes the rows where field equals val and reports whether any existed.
func (s *Service) Delete(ctx context.Context, field, val string) (bool, error) {
	n, err := s.store.DeleteAvatar(ctx, field, val)
	if err != nil {
		return false, fmt.Errorf("%s - delete %s=%s: %w", logPrefix, field, val, err)
	}
	return n > 0, nil
}

// Connector exposes the avatar methods. Without a store it can only call remotely.
type Connector struct {
	*connector.Connector
	get, store, del *methods.Descriptor
}

// New creates the connector. store may be nil for a client that never serves.
func New(password string, store Store) *Connector {
	var svc *Service
	if store != nil {
		svc = NewService(store)
	}

	get := methods.New("Get").Param("field", "").Param("val", "").
		Returns(&AvatarData{}).Threat(methods.ThreatLow)
	put := methods.New("Store").Param("principalID", uuid.UUID{}).Param("data", &AvatarData{}).
		Returns(true).Threat(methods.ThreatFull).UsePassword()
	del := methods.New("Delete").Param("field", "").Param("val", "").
		Returns(true).Threat(methods.ThreatFull).UsePassword()
	if svc != nil {
		get.Impl(svc.Get)
		put.Impl(svc.Store)
		del.Impl(svc.Delete)
	}

	c := &Connector{
		Connector: connector.New(Name, password),
		get:       get.MustBuild(),
		store:     put.MustBuild(),
		del:       del.MustBuild(),
	}
	c.Register(c.get, c.store, c.del)
	if svc != nil {
		c.SetMode(connector.RemoteAllowed)
	} else {
		c.SetMode(connector.RemoteOnly)
	}
	return c
}

// Get fetches an appearance. A nil result means the remote returned nothing.
func (c *Connector) Get(ctx context.Context, field, val string) (*AvatarData, error) {
	res, err := connector.Invoke[*AvatarData](ctx, c.Connector, c.get, field, val)
	if err != nil || !res.Present {
		return nil, err
	}
	return res.Value, nil
}

// Store replaces the appearance of principalID.
func (c *Connector) Store(ctx context.Context, principalID uuid.UUID, data *AvatarData) (bool, error) {
	res, err := connector.Invoke[bool](ctx, c.Connector, c.store, principalID, data)
	return res.Value, err
}

// Delete removes appearance rows where field equals val.
func (c *Connector) Delete(ctx context.Context, field, val string) (bool, error) {
	res, err := connector.Invoke[bool](ctx, c.Connector, c.del, field, val)
	return res.Value, err
}
