// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/auth/postgres"
	"github.com/holding-console/holding/internal/store"
)

var _ = Describe("UserStore against PostgreSQL", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		users     *postgres.UserStore
		svc       *auth.CredentialService
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("holding_test"),
			tcpostgres.WithUsername("holding"),
			tcpostgres.WithPassword("holding"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(store.DriverPostgres, connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.ConnectPostgres(ctx, connStr, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())

		users = postgres.NewUserStore(pool)
		hasher, err := auth.NewSchemeHasher(auth.SchemeSHA256)
		Expect(err).NotTo(HaveOccurred())
		svc, err = auth.NewCredentialService(users, hasher)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("provisions a bootstrap account once", func() {
		rec, err := users.CreateUser(ctx, auth.NewUser{Login: "operator@holding"})
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.IsBootstrap()).To(BeTrue())

		_, err = users.CreateUser(ctx, auth.NewUser{Login: "Operator@Holding"})
		Expect(err).To(MatchError(auth.ErrAlreadyExists))
	})

	It("walks the bootstrap, rotate, login lifecycle", func() {
		user, err := svc.Authenticate(ctx, "OPERATOR@holding", "operator@holding")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Login).To(Equal("operator@holding"))
		Expect(user.DisplayName).To(Equal(auth.DefaultDisplayName))
		Expect(user.LastLoginAt).NotTo(BeNil())
		Expect(user.LastLoginAt.Nanosecond() % int(time.Millisecond)).To(BeZero())

		Expect(svc.RotatePassword(ctx, user.ID, "operator@holding", "Smelter#2026")).To(Succeed())

		_, err = svc.Authenticate(ctx, "operator@holding", "operator@holding")
		Expect(err).To(MatchError(auth.ErrInvalidCredentials))

		again, err := svc.Authenticate(ctx, "operator@holding", "Smelter#2026")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.ID).To(Equal(user.ID))

		rec, err := users.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*rec.PasswordHash).To(HavePrefix("sha256:"))
		Expect(rec.LastLoginAt.Location()).To(Equal(time.UTC))
	})

	It("reports missing rows", func() {
		_, err := users.FindByID(ctx, 987654)
		Expect(err).To(MatchError(auth.ErrNotFound))

		Expect(users.UpdatePasswordHash(ctx, 987654, "sha256:x")).To(MatchError(auth.ErrNotFound))
	})

	It("answers pings", func() {
		Expect(users.Ping(ctx)).To(Succeed())
	})
})
