package client

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for the client module.
var (
	ErrNotFound      = errors.New("client: not found")
	ErrNameRequired  = errors.New("client: name required")
	ErrInvalidStatus = errors.New("client: invalid status")
)

// RepositoryPort defines data access methods for clients.
type RepositoryPort interface {
	CreateClient(ctx context.Context, input CreateClientInput) (*Client, error)
	GetClient(ctx context.Context, id int64) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	ListActiveClients(ctx context.Context) ([]Client, error)
	SearchClientsByName(ctx context.Context, term string) ([]Client, error)
	ListClientsWithLeadsToday(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error)
}

// Service handles client business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateClient registers a new client. New clients start active with a zero
// credit balance.
func (s *Service) CreateClient(ctx context.Context, input CreateClientInput) (*Client, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	return s.repo.CreateClient(ctx, input)
}

// GetClient returns one client by id.
func (s *Service) GetClient(ctx context.Context, id int64) (*Client, error) {
	cl, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, ErrNotFound
	}
	return cl, nil
}

// ListClients returns all clients ordered by name.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListClients(ctx)
}

// ListActiveClients returns clients whose status is active.
func (s *Service) ListActiveClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListActiveClients(ctx)
}

// SearchClientsByName returns clients whose name contains the term.
func (s *Service) SearchClientsByName(ctx context.Context, term string) ([]Client, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return s.repo.SearchClientsByName(ctx, term)
}

// FindClientByName resolves a name substring to a single client id, matching
// the lookup contract used by inbound lead routing. The first match by name
// order wins.
func (s *Service) FindClientByName(ctx context.Context, term string) (int64, error) {
	matches, err := s.SearchClientsByName(ctx, term)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, ErrNotFound
	}
	return matches[0].ID, nil
}

// ListClientsWithLeadsToday returns clients that received at least one lead
// today, busiest first.
func (s *Service) ListClientsWithLeadsToday(ctx context.Context) ([]Client, error) {
	return s.repo.ListClientsWithLeadsToday(ctx)
}

// UpdateClient edits contact info and status.
func (s *Service) UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	if !input.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	cl, err := s.repo.UpdateClient(ctx, id, input)
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, ErrNotFound
	}
	return cl, nil
}
