package tests

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rewardhive/backend/app/handlers"
	"github.com/rewardhive/backend/app/middleware"
	"github.com/rewardhive/backend/app/router"
	"github.com/rewardhive/backend/app/services"
	businessflow "github.com/rewardhive/backend/business_flow"
	"github.com/rewardhive/backend/cache"
	"github.com/rewardhive/backend/models"
	"github.com/rewardhive/backend/providers"
	"github.com/rewardhive/backend/repository"
	testingutil "github.com/rewardhive/backend/testing"
	"github.com/rewardhive/backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCPXSecret     = "s3cret"
	testBitLabsSecret = "bl-secret"
	testTimeWallKey   = "tw-secret"
)

type testServer struct {
	app          *fiber.App
	tokenService services.TokenService
	userRepo     repository.UserRepository
}

// buildTestServer wires the full HTTP stack against a test database
func buildTestServer(t *testing.T, testDB *testingutil.TestDB, abuseThreshold int64) *testServer {
	t.Helper()

	userRepo := repository.NewUserRepository(testDB.DB)
	transactionRepo := repository.NewTransactionRepository(testDB.DB)
	auditRepo := repository.NewAuditLogRepository(testDB.DB)

	tokenService, err := services.NewTokenService(
		15*time.Minute, 24*time.Hour, "test-issuer", "test-audience",
		"test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)

	rewardsCfg := testRewardsConfig()
	rewardsCfg.TimeWallUnitsPerUSD = 100

	postbackFlow := businessflow.NewPostbackFlow(userRepo, transactionRepo, auditRepo, testDB.DB, rewardsCfg)
	walletFlow := businessflow.NewWalletFlow(userRepo, transactionRepo)

	registry := providers.NewRegistry(
		providers.NewCPX(providers.CPXOptions{Secret: testCPXSecret, MinCents: 1}),
		providers.NewBitLabs(providers.BitLabsOptions{Secret: testBitLabsSecret, MinCents: 1}),
		providers.NewTimeWall(providers.TimeWallOptions{
			SecretKey:   testTimeWallKey,
			UnitsPerUSD: 100,
			MinCents:    1,
		}),
	)

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	reputation := middleware.NewReputationMiddleware(cache.NewMemoryCounter(100), abuseThreshold, 10*time.Minute)

	postbackHandler := handlers.NewPostbackHandler(postbackFlow, registry, reputation)
	walletHandler := handlers.NewWalletHandler(walletFlow)

	appRouter := router.NewFiberRouter(postbackHandler, walletHandler, authMiddleware, reputation, false)
	appRouter.SetupRoutes()

	return &testServer{
		app:          appRouter.GetApp(),
		tokenService: tokenService,
		userRepo:     userRepo,
	}
}

func (s *testServer) get(t *testing.T, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestPostbackEndpoints(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		server := buildTestServer(t, testDB, 0)

		t.Run("CPXCompletedSurvey", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=abc123&status=1&amount_usd=10.00&secret=%s",
				user.ID, testCPXSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "OK", body)

			fresh, err := server.userRepo.ByID(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(700), fresh.BalanceCents)

			t.Run("ReplayAnswersAlreadyHandled", func(t *testing.T) {
				status, body := server.get(t, path, nil)
				assert.Equal(t, http.StatusOK, status)
				assert.Equal(t, "ALREADY_HANDLED", body)

				fresh, err := server.userRepo.ByID(t.Context(), user.ID)
				require.NoError(t, err)
				assert.Equal(t, int64(700), fresh.BalanceCents)
			})

			t.Run("ChargebackAnswersReversed", func(t *testing.T) {
				path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=abc123cb&status=2&amount_usd=10.00&secret=%s",
					user.ID, testCPXSecret)
				status, body := server.get(t, path, nil)
				assert.Equal(t, http.StatusOK, status)
				assert.Equal(t, "REVERSED", body)

				fresh, err := server.userRepo.ByID(t.Context(), user.ID)
				require.NoError(t, err)
				assert.Equal(t, int64(0), fresh.BalanceCents)
			})
		})

		t.Run("CPXUnknownStatusIsIgnored", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=sc-1&status=screenout&secret=%s",
				user.ID, testCPXSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "IGNORED_EVENT", body)
		})

		t.Run("CPXMissingParamsBeforeAuth", func(t *testing.T) {
			// No credentials at all; the missing ids answer first
			status, body := server.get(t, "/api/v1/postbacks/cpx?status=1&amount_usd=10.00", nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "MISSING_USER_OR_TX", body)
		})

		t.Run("CPXBadAmount", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=bad-1&status=1&amount_usd=ten&secret=%s",
				user.ID, testCPXSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_AMOUNT", body)
		})

		t.Run("CPXAbsentStatus", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=ns-1&amount_usd=10.00&secret=%s",
				user.ID, testCPXSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_STATUS", body)
		})

		t.Run("CPXOversizedChargebackIsRejected", func(t *testing.T) {
			user, err := fixtures.CreateTestUserWithBalance(300)
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=boom-1&status=2&amount_usd=1e18&secret=%s",
				user.ID, testCPXSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_AMOUNT", body)

			// Nothing journaled, nothing mutated
			fresh, err := server.userRepo.ByID(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(300), fresh.BalanceCents)
		})

		t.Run("CPXForgedHash", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/cpx?user_id=%d&trans_id=forged-1&status=1&amount_usd=10.00&hash=deadbeefdeadbeefdeadbeefdeadbeef",
				user.ID)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "INVALID_HASH", body)

			// Nothing credited
			fresh, err := server.userRepo.ByID(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), fresh.BalanceCents)
		})

		t.Run("BitLabsWrongSecret", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/bitlabs?user_id=%d&transaction_id=bl-1&event=completed&value=2.50&secret=guess",
				user.ID)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "INVALID_SECRET", body)
		})

		t.Run("BitLabsUnknownUser", func(t *testing.T) {
			path := fmt.Sprintf("/api/v1/postbacks/bitlabs?user_id=999999&transaction_id=bl-2&event=completed&value=2.50&secret=%s",
				testBitLabsSecret)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "USER_NOT_FOUND", body)
		})

		t.Run("TimeWallForgedHash", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			path := fmt.Sprintf("/api/v1/postbacks/timewall?userID=%d&transactionID=tw-1&type=credit&currencyAmount=250&revenue=2.50&hash=0000000000000000",
				user.ID)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "INVALID_HASH", body)
		})

		t.Run("TimeWallCredit", func(t *testing.T) {
			user, err := fixtures.CreateTestUserWithBalance(0)
			require.NoError(t, err)

			revenue := "2.50"
			hash := timewallHash(user.ID, revenue)
			path := fmt.Sprintf("/api/v1/postbacks/timewall?userID=%d&transactionID=tw-2&type=credit&currencyAmount=250&revenue=%s&hash=%s",
				user.ID, revenue, hash)
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "OK", body)

			// 250 coins at 100/USD = $2.50 gross, $1.75 net
			fresh, err := server.userRepo.ByID(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(175), fresh.BalanceCents)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPostbackAbuseCutoff(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		server := buildTestServer(t, testDB, 3)

		path := "/api/v1/postbacks/bitlabs?user_id=1&transaction_id=bl-1&event=completed&value=2.50&secret=guess"

		// The first failures answer the ordinary rejection
		for i := 0; i < 3; i++ {
			status, body := server.get(t, path, nil)
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "INVALID_SECRET", body)
		}

		// At the threshold the guard cuts the address off before the
		// handler runs; the response is indistinguishable from an
		// allowlist rejection.
		status, body := server.get(t, path, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN_IP", body)

		return nil
	})
	require.NoError(t, err)
}

func TestWalletEndpoints(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		server := buildTestServer(t, testDB, 0)

		user, err := fixtures.CreateTestUserWithBalance(700)
		require.NoError(t, err)

		_, err = fixtures.CreateTestTransaction(user.ID, "CPX_hist-1", models.TransactionKindCredit, 700)
		require.NoError(t, err)

		accessToken, _, err := server.tokenService.GenerateTokens(user.ID)
		require.NoError(t, err)
		authHeader := map[string]string{"Authorization": "Bearer " + accessToken}

		t.Run("BalanceRequiresToken", func(t *testing.T) {
			status, _ := server.get(t, "/api/v1/wallet/balance", nil)
			assert.Equal(t, http.StatusUnauthorized, status)
		})

		t.Run("Balance", func(t *testing.T) {
			status, body := server.get(t, "/api/v1/wallet/balance", authHeader)
			assert.Equal(t, http.StatusOK, status)
			assert.Contains(t, body, `"balance_cents":700`)
			assert.Contains(t, body, utils.USDCurrency)
		})

		t.Run("TransactionHistory", func(t *testing.T) {
			status, body := server.get(t, "/api/v1/wallet/transactions?page=1&page_size=10", authHeader)
			assert.Equal(t, http.StatusOK, status)
			assert.Contains(t, body, "CPX_hist-1")
		})

		return nil
	})
	require.NoError(t, err)
}

// timewallHash mirrors the sha256 recipe from the TimeWall postback docs
func timewallHash(userID uint, revenue string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s%s", userID, revenue, testTimeWallKey)))
	return hex.EncodeToString(sum[:])
}
