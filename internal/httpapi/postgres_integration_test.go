// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

//go:build integration

package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/auth/postgres"
	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/httpapi"
	"github.com/holding-console/holding/internal/store"
)

type apiResponse struct {
	status int
	header http.Header
	body   map[string]any
}

func post(baseURL, path, body string) apiResponse {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://console.holding.local")

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	Expect(json.Unmarshal(raw, &decoded)).To(Succeed(), "body: %s", raw)
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: decoded}
}

var _ = Describe("Auth API over PostgreSQL", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		server    *httpapi.Server
		baseURL   string
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
		Expect(store.RequirePostgresSchema(ctx, pool)).To(Succeed())

		users := postgres.NewUserStore(pool)
		_, err = users.CreateUser(ctx, auth.NewUser{Login: "operator@holding"})
		Expect(err).NotTo(HaveOccurred())

		hasher, err := auth.NewSchemeHasher(auth.SchemeSHA256)
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewCredentialService(users, hasher, auth.WithLogger(discardLogger()))
		Expect(err).NotTo(HaveOccurred())

		cfg := config.Defaults().HTTP
		cfg.Addr = "127.0.0.1:0"
		cfg.CORS.AllowedOrigins = []string{"https://*.holding.local"}

		handler, err := httpapi.NewHandler(svc,
			httpapi.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
			httpapi.WithLogger(discardLogger()))
		Expect(err).NotTo(HaveOccurred())

		server = httpapi.NewServer(cfg, handler)
		_, err = server.Start()
		Expect(err).NotTo(HaveOccurred())
		baseURL = "http://" + server.Addr()
	})

	AfterAll(func() {
		if server != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("admits the bootstrap account with its login as password", func() {
		resp := post(baseURL, "/api/login", `{"login":"operator@holding","password":"operator@holding"}`)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body["ok"]).To(BeTrue())
		Expect(resp.header.Get("Access-Control-Allow-Origin")).To(Equal("https://console.holding.local"))

		user := resp.body["user"].(map[string]any)
		Expect(user["login"]).To(Equal("operator@holding"))
		Expect(user["lastLoginAt"]).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`))
	})

	It("rejects a weak replacement password", func() {
		resp := post(baseURL, "/api/change-password",
			`{"userId":1,"currentPassword":"operator@holding","newPassword":"short"}`)
		Expect(resp.status).To(Equal(http.StatusBadRequest))
		Expect(resp.body["message"]).To(Equal("Новый пароль должен содержать минимум 8 символов"))
	})

	It("rotates the password and stores only its digest", func() {
		resp := post(baseURL, "/api/change-password",
			`{"userId":1,"currentPassword":"operator@holding","newPassword":"Smelter#2026"}`)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body["message"]).To(Equal("Пароль обновлен"))

		var stored string
		Expect(pool.QueryRow(ctx, `SELECT password_hash FROM holding_users WHERE id = 1`).Scan(&stored)).To(Succeed())
		Expect(stored).To(Equal("sha256:" + sha256Hex("Smelter#2026")))
	})

	It("refuses the old password after rotation", func() {
		resp := post(baseURL, "/api/login", `{"login":"operator@holding","password":"operator@holding"}`)
		Expect(resp.status).To(Equal(http.StatusUnauthorized))
		Expect(resp.body["message"]).To(Equal("Неверный логин или пароль"))
	})

	It("accepts the new password with a case-insensitive login", func() {
		resp := post(baseURL, "/api/login", `{"login":" Operator@Holding ","password":"Smelter#2026"}`)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.header.Get(httpapi.RequestIDHeader)).NotTo(BeEmpty())
	})
})
