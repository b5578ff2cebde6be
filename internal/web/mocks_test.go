package web

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/groupsub/internal/config"
	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/group"
	"github.com/JonMunkholm/groupsub/internal/metrics"
	"github.com/JonMunkholm/groupsub/internal/operator"
)

type mockPackages struct{ mock.Mock }

func (m *mockPackages) GetPackages(ctx context.Context, ident string) ([]operator.PackageDetail, error) {
	args := m.Called(ctx, ident)
	return args.Get(0).([]operator.PackageDetail), args.Error(1)
}

func (m *mockPackages) CountPackages(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockPackages) GetPackageList(ctx context.Context) (map[int]string, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[int]string), args.Error(1)
}

func (m *mockPackages) GetPackage(ctx context.Context, id int) (*entity.Package, error) {
	args := m.Called(ctx, id)
	pkg, _ := args.Get(0).(*entity.Package)
	return pkg, args.Error(1)
}

func (m *mockPackages) AddPackage(ctx context.Context, pkg *entity.Package) (*entity.Package, error) {
	args := m.Called(ctx, pkg)
	created, _ := args.Get(0).(*entity.Package)
	return created, args.Error(1)
}

func (m *mockPackages) UpdatePackage(ctx context.Context, pkg *entity.Package) error {
	return m.Called(ctx, pkg).Error(0)
}

func (m *mockPackages) SavePackage(ctx context.Context, pkg *entity.Package, terms []*entity.Term, groupIDs []int) (*entity.Package, error) {
	args := m.Called(ctx, pkg, terms, groupIDs)
	saved, _ := args.Get(0).(*entity.Package)
	return saved, args.Error(1)
}

func (m *mockPackages) DeletePackage(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockPackages) MovePackage(ctx context.Context, id, offset int) error {
	return m.Called(ctx, id, offset).Error(0)
}

func (m *mockPackages) GetTerms(ctx context.Context, pkgID int) (map[int][]*entity.Term, error) {
	args := m.Called(ctx, pkgID)
	return args.Get(0).(map[int][]*entity.Term), args.Error(1)
}

func (m *mockPackages) SetTerms(ctx context.Context, pkgID int, terms []*entity.Term) error {
	return m.Called(ctx, pkgID, terms).Error(0)
}

func (m *mockPackages) GetPackageTerm(ctx context.Context, termID int) (*operator.PackageTerm, bool, error) {
	args := m.Called(ctx, termID)
	pt, _ := args.Get(0).(*operator.PackageTerm)
	return pt, args.Bool(1), args.Error(2)
}

func (m *mockPackages) GetGroups(ctx context.Context, pkgID int) ([]int, error) {
	args := m.Called(ctx, pkgID)
	return args.Get(0).([]int), args.Error(1)
}

func (m *mockPackages) GetAllGroups(ctx context.Context) (map[int][]operator.GroupRef, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[int][]operator.GroupRef), args.Error(1)
}

func (m *mockPackages) AddGroup(ctx context.Context, pkgID, groupID int) error {
	return m.Called(ctx, pkgID, groupID).Error(0)
}

func (m *mockPackages) RemoveGroup(ctx context.Context, pkgID, groupID int) error {
	return m.Called(ctx, pkgID, groupID).Error(0)
}

func (m *mockPackages) RemoveGroups(ctx context.Context, pkgID int) error {
	return m.Called(ctx, pkgID).Error(0)
}

func (m *mockPackages) SetGroups(ctx context.Context, pkgID int, groupIDs []int) error {
	return m.Called(ctx, pkgID, groupIDs).Error(0)
}

type mockSubscriptions struct{ mock.Mock }

func (m *mockSubscriptions) GetSubscriptions(ctx context.Context, f operator.SubscriptionFilter) ([]operator.SubscriptionDetail, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]operator.SubscriptionDetail), args.Error(1)
}

func (m *mockSubscriptions) CountSubscriptions(ctx context.Context, f operator.SubscriptionFilter) (int, error) {
	args := m.Called(ctx, f)
	return args.Int(0), args.Error(1)
}

func (m *mockSubscriptions) GetSubscription(ctx context.Context, id int) (*entity.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*entity.Subscription)
	return sub, args.Error(1)
}

func (m *mockSubscriptions) AddSubscription(ctx context.Context, sub *entity.Subscription) (int, error) {
	args := m.Called(ctx, sub)
	return args.Int(0), args.Error(1)
}

func (m *mockSubscriptions) UpdateSubscription(ctx context.Context, sub *entity.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockSubscriptions) DeleteSubscription(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubscriptions) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// fakeCatalog knows a fixed set of groups.
type fakeCatalog struct {
	groups      []group.Group
	invalidated int
}

func (c *fakeCatalog) Invalidate() { c.invalidated++ }

func (c *fakeCatalog) List(context.Context) ([]group.Group, error) {
	return c.groups, nil
}

func (c *fakeCatalog) Exists(_ context.Context, ids []int) (int, bool, error) {
	known := make(map[int]bool, len(c.groups))
	for _, g := range c.groups {
		known[g.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return id, false, nil
		}
	}
	return 0, true, nil
}

// fakeAudit records entries in memory.
type fakeAudit struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (a *fakeAudit) Log(ctx context.Context, p core.AuditParams) *core.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	meta := core.RequestMetaFromContext(ctx)
	e := core.AuditEntry{Action: p.Action, SubjectID: p.SubjectID, Detail: p.Detail, Actor: meta.Actor, IPAddress: meta.IPAddress}
	a.entries = append(a.entries, e)
	return &e
}

func (a *fakeAudit) List(context.Context, core.AuditFilter) ([]core.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.AuditEntry(nil), a.entries...), nil
}

func (a *fakeAudit) actions() []core.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

const testAPIKey = "test-admin-key"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{RequireAuth: true, APIKeys: []string{testAPIKey}},
		Rate:     config.RateLimitConfig{Enabled: false},
		Subscriptions: config.SubscriptionConfig{
			DefaultCurrency: "USD",
		},
	}
}

type testEnv struct {
	server   *Server
	packages *mockPackages
	subs     *mockSubscriptions
	audit    *fakeAudit
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	factory, err := entity.NewFactory("USD")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	env := &testEnv{
		packages: &mockPackages{},
		subs:     &mockSubscriptions{},
		audit:    &fakeAudit{},
		metrics:  metrics.New(reg),
	}
	env.server = NewServer(Deps{
		Packages:      env.packages,
		Subscriptions: env.subs,
		Groups: &fakeCatalog{groups: []group.Group{
			{ID: 2, Name: "Registered users"},
			{ID: 9, Name: "VIP"},
		}},
		Audit:    env.audit,
		Factory:  factory,
		DB:       fakePinger{},
		Metrics:  env.metrics,
		Gatherer: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)
	return env
}

// mockCtx matches the request context passed to operators.
var mockCtx = mock.Anything

func configRate(perMinute, burst int) config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst}
}
