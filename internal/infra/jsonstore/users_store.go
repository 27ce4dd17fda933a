package jsonstore

import (
	"context"
	"strings"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// UserStore implementation — users.json
// ============================================================

func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetUser")
	defer span.End()

	users, err := docstore.Read(ctx, c.store, DocUsers, emptyList[domain.User]())
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == userID {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindUserByIdentifier matches an email (case-insensitive) or a username
// inside one agency.
func (c *Client) FindUserByIdentifier(ctx context.Context, agencyID, identifier string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.FindUserByIdentifier")
	defer span.End()

	users, err := docstore.Read(ctx, c.store, DocUsers, emptyList[domain.User]())
	if err != nil {
		return nil, err
	}
	id := strings.ToLower(strings.TrimSpace(identifier))
	for i := range users {
		u := &users[i]
		if u.AgencyID != agencyID {
			continue
		}
		if strings.EqualFold(u.Email, id) || (u.Username != "" && strings.EqualFold(u.Username, id)) {
			return u, nil
		}
	}
	return nil, nil
}

func (c *Client) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.FindUsersByEmail")
	defer span.End()

	users, err := docstore.Read(ctx, c.store, DocUsers, emptyList[domain.User]())
	if err != nil {
		return nil, err
	}
	var out []domain.User
	for _, u := range users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (c *Client) ListUsers(ctx context.Context, agencyID string) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListUsers")
	defer span.End()

	users, err := docstore.Read(ctx, c.store, DocUsers, emptyList[domain.User]())
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.AgencyID == agencyID {
			out = append(out, u)
		}
	}
	return out, nil
}

// CreateUser rejects a duplicate email or username inside the same agency.
func (c *Client) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "JSONStore.CreateUser")
	defer span.End()

	return docstore.Update(ctx, c.store, DocUsers, emptyList[domain.User](), func(users *[]domain.User) error {
		if err := checkUserUnique(*users, user); err != nil {
			return err
		}
		*users = append(*users, *user)
		return nil
	})
}

func (c *Client) UpdateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "JSONStore.UpdateUser")
	defer span.End()

	return docstore.Update(ctx, c.store, DocUsers, emptyList[domain.User](), func(users *[]domain.User) error {
		if err := checkUserUnique(*users, user); err != nil {
			return err
		}
		for i := range *users {
			if (*users)[i].ID == user.ID {
				(*users)[i] = *user
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "user", ID: user.ID}
	})
}

func (c *Client) UpdateUserChecked(ctx context.Context, userID string, fn func(u *domain.User) error, check func(users []domain.User) error) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.UpdateUserChecked")
	defer span.End()

	var updated domain.User
	err := docstore.Update(ctx, c.store, DocUsers, emptyList[domain.User](), func(users *[]domain.User) error {
		idx := -1
		for i := range *users {
			if (*users)[i].ID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &domain.ErrNotFound{Resource: "user", ID: userID}
		}

		candidate := (*users)[idx]
		if err := fn(&candidate); err != nil {
			return err
		}
		if err := checkUserUnique(*users, &candidate); err != nil {
			return err
		}

		next := make([]domain.User, len(*users))
		copy(next, *users)
		next[idx] = candidate

		if check != nil {
			agency := make([]domain.User, 0, len(next))
			for _, u := range next {
				if u.AgencyID == candidate.AgencyID {
					agency = append(agency, u)
				}
			}
			if err := check(agency); err != nil {
				return err
			}
		}

		*users = next
		updated = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func checkUserUnique(users []domain.User, user *domain.User) error {
	for _, u := range users {
		if u.ID == user.ID || u.AgencyID != user.AgencyID {
			continue
		}
		if strings.EqualFold(u.Email, user.Email) {
			return &domain.ErrConflict{Message: "email already in use"}
		}
		if user.Username != "" && strings.EqualFold(u.Username, user.Username) {
			return &domain.ErrConflict{Message: "username already in use"}
		}
	}
	return nil
}
