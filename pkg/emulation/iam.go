package emulation

import (
	"context"
	"sync"
	"time"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

// iamTranslator implements the IAM family (spec §4.6): users, roles, and
// policies are synthesized in memory, with no authorization effect anywhere
// else in the control plane. Process restart loses them, matching "no
// authorization effect" — nothing downstream depends on them surviving.
type iamTranslator struct {
	store *iamStore
}

type iamUser struct {
	Name      string
	CreatedAt time.Time
}

type iamRole struct {
	Name      string
	CreatedAt time.Time
}

type iamStore struct {
	mu    sync.Mutex
	users map[string]map[string]iamUser // environmentID -> name -> user
	roles map[string]map[string]iamRole
}

func newIAMStore() *iamStore {
	return &iamStore{
		users: make(map[string]map[string]iamUser),
		roles: make(map[string]map[string]iamRole),
	}
}

func (t *iamTranslator) CreateUser(ctx context.Context, environmentID, name string) (iamtypes.User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.users[environmentID] == nil {
		t.store.users[environmentID] = make(map[string]iamUser)
	}
	u := iamUser{Name: name, CreatedAt: time.Now()}
	t.store.users[environmentID][name] = u
	return iamtypes.User{UserName: &u.Name, CreateDate: &u.CreatedAt}, nil
}

func (t *iamTranslator) GetUser(ctx context.Context, environmentID, name string) (iamtypes.User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	u, ok := t.store.users[environmentID][name]
	if !ok {
		return iamtypes.User{}, apperr.New(apperr.NotFound, "iam user not found")
	}
	return iamtypes.User{UserName: &u.Name, CreateDate: &u.CreatedAt}, nil
}

func (t *iamTranslator) DeleteUser(ctx context.Context, environmentID, name string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	delete(t.store.users[environmentID], name)
	return nil
}

func (t *iamTranslator) ListUsers(ctx context.Context, environmentID string) ([]iamtypes.User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	users := make([]iamtypes.User, 0, len(t.store.users[environmentID]))
	for _, u := range t.store.users[environmentID] {
		u := u
		users = append(users, iamtypes.User{UserName: &u.Name, CreateDate: &u.CreatedAt})
	}
	return users, nil
}

func (t *iamTranslator) CreateRole(ctx context.Context, environmentID, name string) (iamtypes.Role, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.roles[environmentID] == nil {
		t.store.roles[environmentID] = make(map[string]iamRole)
	}
	r := iamRole{Name: name, CreatedAt: time.Now()}
	t.store.roles[environmentID][name] = r
	return iamtypes.Role{RoleName: &r.Name, CreateDate: &r.CreatedAt}, nil
}

func (t *iamTranslator) DeleteRole(ctx context.Context, environmentID, name string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	delete(t.store.roles[environmentID], name)
	return nil
}

// purgeEnvironment drops every IAM resource belonging to an environment.
// Unlike the other families, IAM state lives in memory rather than a
// foreign-keyed table, so Environment destruction can't rely on ON DELETE
// CASCADE to satisfy P7 here — the caller (Router.PurgeEnvironment) must
// invoke this explicitly.
func (t *iamTranslator) purgeEnvironment(environmentID string) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	delete(t.store.users, environmentID)
	delete(t.store.roles, environmentID)
}
