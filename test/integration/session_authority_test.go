// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/warden/internal/auth"
	authpg "github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/broadcast"
	"github.com/holomush/warden/internal/cache"
	"github.com/holomush/warden/internal/presence"
	"github.com/holomush/warden/internal/store"
	"github.com/holomush/warden/internal/token"
	"github.com/holomush/warden/pkg/errutil"
)

var signingKey = []byte("integration-signing-key-0123456789abcdef")

var (
	suiteCtx    context.Context
	suiteCancel context.CancelFunc
	container   *postgres.PostgresContainer
	pool        *pgxpool.Pool
)

var _ = BeforeSuite(func() {
	suiteCtx, suiteCancel = context.WithTimeout(context.Background(), 5*time.Minute)

	var err error
	container, err = postgres.Run(suiteCtx,
		"postgres:16-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(suiteCtx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(suiteCtx, connStr, store.PoolOptions{MaxConns: 8})
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	}
	if suiteCancel != nil {
		suiteCancel()
	}
})

// instance is one API process: its own manager and presence view over the
// shared cache, bus and database.
type instance struct {
	manager  *auth.Manager
	presence *presence.Registry
}

type cluster struct {
	redis     *miniredis.Miniredis
	client    *redis.Client
	cache     *cache.Redis
	tokens    *token.Authority
	instances []*instance
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newCluster(size int) *cluster {
	mr := miniredis.NewMiniRedis()
	Expect(mr.Start()).To(Succeed())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens, err := token.NewAuthority(token.Config{SigningKey: signingKey})
	Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithCancel(suiteCtx)
	c := &cluster{redis: mr, client: client, cache: cache.NewRedis(client), tokens: tokens, ctx: ctx, cancel: cancel}

	for range size {
		bus := broadcast.NewRedis(client, broadcast.WithResubscribeBackoff(10*time.Millisecond, 100*time.Millisecond))
		manager, err := auth.NewManager(auth.Deps{
			Directory:   authpg.NewUserRepository(pool),
			Hasher:      auth.NewArgon2idHasher(),
			Tokens:      tokens,
			Cache:       c.cache,
			Broadcaster: bus,
		}, auth.WithSessionTTL(time.Hour))
		Expect(err).NotTo(HaveOccurred())

		registry := presence.NewRegistry()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer GinkgoRecover()
			Expect(bus.Subscribe(ctx, auth.DefaultSyncChannel, registry.Apply, reconcileOnSubscribe(registry, c.cache))).To(Succeed())
		}()
		c.instances = append(c.instances, &instance{manager: manager, presence: registry})
	}

	Eventually(func() int {
		return mr.PubSubNumSub(auth.DefaultSyncChannel)[auth.DefaultSyncChannel]
	}).WithTimeout(5 * time.Second).Should(Equal(size))
	return c
}

func reconcileOnSubscribe(registry *presence.Registry, source presence.SessionSource) broadcast.SubscribeOption {
	return broadcast.OnSubscribed(func(ctx context.Context) {
		_ = registry.Reconcile(ctx, source)
	})
}

// join subscribes a fresh presence view to the cluster's bus.
func (c *cluster) join() *presence.Registry {
	bus := broadcast.NewRedis(c.client)
	registry := presence.NewRegistry()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer GinkgoRecover()
		Expect(bus.Subscribe(c.ctx, auth.DefaultSyncChannel, registry.Apply, reconcileOnSubscribe(registry, c.cache))).To(Succeed())
	}()
	return registry
}

func (c *cluster) close() {
	c.cancel()
	c.wg.Wait()
	_ = c.client.Close()
	c.redis.Close()
}

func (c *cluster) cached(username string) (auth.SessionState, bool) {
	value, ok, err := c.cache.Get(suiteCtx, auth.SessionKey(username))
	Expect(err).NotTo(HaveOccurred())
	if !ok {
		return auth.SessionState{}, false
	}
	state, err := auth.DecodeSession(value)
	Expect(err).NotTo(HaveOccurred())
	return state, true
}

var userSeq atomic.Int64

// uniqueName keeps specs independent while sharing one database.
func uniqueName(base string) string {
	return fmt.Sprintf("%s_%d", base, userSeq.Add(1))
}

var _ = Describe("Session authority", func() {
	var c *cluster

	BeforeEach(func() {
		c = newCluster(2)
	})

	AfterEach(func() {
		c.close()
	})

	It("runs the register, login, logout lifecycle across instances", func() {
		a, b := c.instances[0], c.instances[1]
		name := uniqueName("alice")

		user, err := a.manager.Register(suiteCtx, name, "pw123", auth.Profile{Name: "Alice", Age: 30})
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ID).To(BeNumerically(">", 0))

		result, err := a.manager.Login(suiteCtx, name, "pw123")
		Expect(err).NotTo(HaveOccurred())

		state, ok := c.cached(name)
		Expect(ok).To(BeTrue())
		Expect(state).To(Equal(auth.SessionState{Token: result.Token, UserID: user.ID, Username: name}))

		By("every instance learning about the login")
		for _, inst := range c.instances {
			Eventually(func() bool { return inst.presence.IsOnline(name) }).WithTimeout(5 * time.Second).Should(BeTrue())
		}

		By("rejecting a second login on the other instance")
		_, err = b.manager.Login(suiteCtx, name, "pw123")
		Expect(err).To(MatchError(auth.ErrAlreadyActive))

		By("logging out through the other instance")
		Expect(b.manager.Logout(suiteCtx, "Bearer "+result.Token)).To(Succeed())
		_, ok = c.cached(name)
		Expect(ok).To(BeFalse())
		for _, inst := range c.instances {
			Eventually(func() bool { return inst.presence.IsOnline(name) }).WithTimeout(5 * time.Second).Should(BeFalse())
		}

		By("rejecting a wrong secret without touching the cache")
		_, err = a.manager.Login(suiteCtx, name, "wrongpw")
		Expect(err).To(MatchError(auth.ErrBadCredential))
		_, ok = c.cached(name)
		Expect(ok).To(BeFalse())
	})

	It("admits exactly one of many concurrent logins", func() {
		name := uniqueName("racer")
		_, err := c.instances[0].manager.Register(suiteCtx, name, "pw123", auth.Profile{})
		Expect(err).NotTo(HaveOccurred())

		const attempts = 4
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			rejected  atomic.Int32
		)
		start := make(chan struct{})
		for i := range attempts {
			wg.Add(1)
			go func(inst *instance) {
				defer wg.Done()
				<-start
				_, loginErr := inst.manager.Login(suiteCtx, name, "pw123")
				switch {
				case loginErr == nil:
					succeeded.Add(1)
				case errutil.Code(loginErr) == auth.CodeAlreadyActive:
					rejected.Add(1)
				}
			}(c.instances[i%len(c.instances)])
		}
		close(start)
		wg.Wait()

		Expect(succeeded.Load()).To(Equal(int32(1)))
		Expect(rejected.Load()).To(Equal(int32(attempts - 1)))
	})

	It("rejects a stale token and keeps the live session", func() {
		name := uniqueName("stale")
		user, err := c.instances[0].manager.Register(suiteCtx, name, "pw123", auth.Profile{})
		Expect(err).NotTo(HaveOccurred())
		live, err := c.instances[0].manager.Login(suiteCtx, name, "pw123")
		Expect(err).NotTo(HaveOccurred())

		stale, err := c.tokens.Issue(user.ID, name)
		Expect(err).NotTo(HaveOccurred())

		err = c.instances[1].manager.Logout(suiteCtx, "Bearer "+stale)
		Expect(err).To(MatchError(auth.ErrNoActiveSession))

		state, ok := c.cached(name)
		Expect(ok).To(BeTrue())
		Expect(state.Token).To(Equal(live.Token))
	})

	It("lets a session expire after its TTL", func() {
		name := uniqueName("expiry")
		_, err := c.instances[0].manager.Register(suiteCtx, name, "pw123", auth.Profile{})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.instances[0].manager.Login(suiteCtx, name, "pw123")
		Expect(err).NotTo(HaveOccurred())

		c.redis.FastForward(time.Hour + time.Second)

		_, ok := c.cached(name)
		Expect(ok).To(BeFalse())
		_, err = c.instances[1].manager.Login(suiteCtx, name, "pw123")
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds presence for a late instance from the shared cache", func() {
		name := uniqueName("late")
		_, err := c.instances[0].manager.Register(suiteCtx, name, "pw123", auth.Profile{})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.instances[0].manager.Login(suiteCtx, name, "pw123")
		Expect(err).NotTo(HaveOccurred())

		late := c.join()
		Eventually(func() bool { return late.IsOnline(name) }).WithTimeout(5 * time.Second).Should(BeTrue())
	})

	It("rejects duplicate registration from any instance", func() {
		name := uniqueName("dup")
		_, err := c.instances[0].manager.Register(suiteCtx, name, "pw123", auth.Profile{})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.instances[1].manager.Register(suiteCtx, name, "other", auth.Profile{})
		Expect(err).To(MatchError(auth.ErrDuplicateUser))
	})
})
