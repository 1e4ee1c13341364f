package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

type Profile struct {
	FirstName string
	LastName  string
	Email     string
}

type UserView struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Role      string
}

func viewOf(u *User) UserView {
	return UserView{ID: u.id, FirstName: u.firstName, LastName: u.lastName, Email: u.email, Role: u.role}
}

// Service runs each use case in one unit of work. Events raised by the
// user reach the outbox through the pool's commit hook.
type Service struct {
	pool   session.SessionPool
	repo   *PgRepository
	logger *zap.Logger
}

func NewService(pool session.SessionPool, repo *PgRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, repo: repo, logger: logger}
}

func (svc *Service) RegisterUser(ctx context.Context, p Profile) (uuid.UUID, error) {
	var id uuid.UUID
	err := svc.atomic(ctx, func(s session.DbSession) error {
		_, err := svc.repo.GetByEmail(s, p.Email)
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		u, err := Register(p.FirstName, p.LastName, p.Email)
		if err != nil {
			return err
		}
		if err := svc.repo.Add(s, u); err != nil {
			return err
		}
		id = u.ID()
		return nil
	})
	if err != nil && !session.IsCommitted(err) {
		return uuid.Nil, err
	}
	svc.logger.Info("user registered", zap.String("user_id", id.String()))
	return id, err
}

func (svc *Service) UpdateProfile(ctx context.Context, id uuid.UUID, p Profile) error {
	return svc.atomic(ctx, func(s session.DbSession) error {
		u, err := svc.repo.Get(s, id)
		if err != nil {
			return err
		}
		if err := u.UpdateProfile(p.FirstName, p.LastName, p.Email); err != nil {
			return err
		}
		return svc.repo.Update(s, u)
	})
}

func (svc *Service) GetUser(ctx context.Context, id uuid.UUID) (UserView, error) {
	var view UserView
	err := svc.pool.Session(ctx, func(s session.Session) error {
		u, err := svc.repo.Get(s.(session.DbSession), id)
		if err != nil {
			return err
		}
		view = viewOf(u)
		return nil
	})
	return view, err
}

func (svc *Service) atomic(ctx context.Context, fn func(s session.DbSession) error) error {
	return svc.pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			return fn(tx.(session.DbSession))
		})
	})
}
