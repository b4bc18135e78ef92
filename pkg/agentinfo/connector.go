package agentinfo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/remote-connectors/pkg/connector"
	"github.com/morezero/remote-connectors/pkg/methods"
)

const logPrefix = "agentinfo:connector"

// Name is the connector name.
const Name = "AgentInfo"

// Service implements the agent info methods over a Store.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetUserInfo returns the record of userID, or nil when unknown.
func (s *Service) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	row, err := s.store.GetUserInfo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s - get user info %s: %w", logPrefix, userID, err)
	}
	if row == nil {
		return nil, nil
	}
	return fromRow(*row), nil
}

// GetUserInfos returns the records of the known users among userIDs.
func (s *Service) GetUserInfos(ctx context.Context, userIDs []string) ([]*UserInfo, error) {
	rows, err := s.store.GetUserInfos(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("%s - get user infos: %w", logPrefix, err)
	}
	out := make([]*UserInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// GetAgentsLocations returns one location per requested user, in request order.
func (s *Service) GetAgentsLocations(ctx context.Context, requestor string, userIDs []string) ([]string, error) {
	infos, err := s.GetUserInfos(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*UserInfo, len(infos))
	for _, u := range infos {
		byID[u.UserID] = u
	}
	out := make([]string, len(userIDs))
	for i, id := range userIDs {
		out[i] = byID[id].Location()
	}
	slog.Debug(fmt.Sprintf("%s - %s requested %d locations", logPrefix, requestor, len(userIDs)))
	return out, nil
}

// Connector exposes the agent info methods. Without a store it can only call remotely.
type Connector struct {
	*connector.Connector
	getInfo, getInfos, locations *methods.Descriptor
}

// New creates the connector. store may be nil for a client that never serves.
func New(password string, store Store) *Connector {
	getInfo := methods.New("GetUserInfo").Param("userID", "").Returns(&UserInfo{})
	getInfos := methods.New("GetUserInfos").Param("userIDs", []string{}).
		Returns([]*UserInfo{}).Threat(methods.ThreatLow)
	locations := methods.New("GetAgentsLocations").Param("requestor", "").Param("userIDs", []string{}).
		Returns([]string{}).Threat(methods.ThreatLow)

	mode := connector.RemoteOnly
	if store != nil {
		svc := NewService(store)
		getInfo.Impl(svc.GetUserInfo)
		getInfos.Impl(svc.GetUserInfos)
		locations.Impl(svc.GetAgentsLocations)
		mode = connector.RemoteAllowed
	}

	c := &Connector{
		Connector: connector.New(Name, password),
		getInfo:   getInfo.MustBuild(),
		getInfos:  getInfos.MustBuild(),
		locations: locations.MustBuild(),
	}
	c.Register(c.getInfo, c.getInfos, c.locations)
	c.SetMode(mode)
	return c
}

// GetUserInfo fetches one record; nil means unknown.
func (c *Connector) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	res, err := connector.Invoke[*UserInfo](ctx, c.Connector, c.getInfo, userID)
	if err != nil || !res.Present {
		return nil, err
	}
	return res.Value, nil
}

// GetUserInfos fetches the records of the known users among userIDs.
func (c *Connector) GetUserInfos(ctx context.Context, userIDs []string) ([]*UserInfo, error) {
	res, err := connector.Invoke[[]*UserInfo](ctx, c.Connector, c.getInfos, userIDs)
	return res.Value, err
}

// GetAgentsLocations returns one location per user in userIDs.
func (c *Connector) GetAgentsLocations(ctx context.Context, requestor string, userIDs []string) ([]string, error) {
	res, err := connector.Invoke[[]string](ctx, c.Connector, c.locations, requestor, userIDs)
	return res.Value, err
}
