package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/verification-service/internal/application"
	"github.com/wms-platform/verification-service/pkg/errors"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/middleware"
)

type mockVerificationAPI struct {
	getPlanFn   func(ctx context.Context, query application.GetPlanQuery) (*application.PlanDTO, error)
	listPlansFn func(ctx context.Context, query application.ListPlansQuery) ([]*application.PlanSummaryDTO, error)
	openPlanFn  func(ctx context.Context, cmd application.OpenPlanCommand) (*application.SessionDTO, error)
	scanFn      func(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error)
	finishFn    func(ctx context.Context, cmd application.FinishCommand) (*application.PlanDTO, error)
	decodeFn    func(ctx context.Context, query application.DecodeQuery) (*application.DecodeResultDTO, error)
}

func (m *mockVerificationAPI) GetPlan(ctx context.Context, query application.GetPlanQuery) (*application.PlanDTO, error) {
	return m.getPlanFn(ctx, query)
}

func (m *mockVerificationAPI) ListPlans(ctx context.Context, query application.ListPlansQuery) ([]*application.PlanSummaryDTO, error) {
	return m.listPlansFn(ctx, query)
}

func (m *mockVerificationAPI) ListStaff(ctx context.Context) ([]application.StaffDTO, error) {
	return []application.StaffDTO{{Code: "T001", Name: "Aki Tanaka"}}, nil
}

func (m *mockVerificationAPI) OpenPlan(ctx context.Context, cmd application.OpenPlanCommand) (*application.SessionDTO, error) {
	return m.openPlanFn(ctx, cmd)
}

func (m *mockVerificationAPI) Scan(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error) {
	return m.scanFn(ctx, cmd)
}

func (m *mockVerificationAPI) Finish(ctx context.Context, cmd application.FinishCommand) (*application.PlanDTO, error) {
	return m.finishFn(ctx, cmd)
}

func (m *mockVerificationAPI) Decode(ctx context.Context, query application.DecodeQuery) (*application.DecodeResultDTO, error) {
	return m.decodeFn(ctx, query)
}

var _ VerificationAPI = (*application.VerificationService)(nil)

func setupRouter(api VerificationAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig("verification-service", slog.New(slog.NewTextHandler(io.Discard, nil))))
	RegisterRoutes(router, NewHandlers(api, logging.Nop()))
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.APIErrorResponse {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestScan_PassesCommand(t *testing.T) {
	var got application.ScanCommand
	api := &mockVerificationAPI{
		scanFn: func(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error) {
			got = cmd
			return &application.ScanResultDTO{SequenceNo: 2, Scanned: cmd.Payload, NextSequenceNo: 2}, nil
		},
	}
	router := setupRouter(api)

	w := doJSON(router, http.MethodPost, "/api/v1/plans/1001/scan",
		`{"staffCode":"T001","payload":"4901234567894","sequenceNo":2,"version":7}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1001", got.PlanID)
	assert.Equal(t, "T001", got.StaffCode)
	require.NotNil(t, got.SequenceNo)
	assert.Equal(t, 2, *got.SequenceNo)
	require.NotNil(t, got.Version)
	assert.Equal(t, int64(7), *got.Version)

	var result application.ScanResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "4901234567894", result.Scanned)
}

func TestScan_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rejected", errors.ErrScanRejected("MISMATCH", "X", "Y"), http.StatusUnprocessableEntity, errors.CodeScanRejected},
		{"version conflict", errors.ErrVersionConflict("plan"), http.StatusConflict, errors.CodeVersionConflict},
		{"update failed", errors.ErrUpdateFailed("plan"), http.StatusServiceUnavailable, errors.CodeUpdateFailed},
		{"plan missing", errors.ErrNotFoundWithID("plan", "1001"), http.StatusNotFound, errors.CodeNotFound},
		{"plain error", io.ErrUnexpectedEOF, http.StatusInternalServerError, errors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(&mockVerificationAPI{
				scanFn: func(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error) {
					return nil, tt.err
				},
			})

			w := doJSON(router, http.MethodPost, "/api/v1/plans/1001/scan", `{"staffCode":"T001","payload":"X"}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestScan_ValidatesBody(t *testing.T) {
	called := false
	router := setupRouter(&mockVerificationAPI{
		scanFn: func(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error) {
			called = true
			return nil, nil
		},
	})

	w := doJSON(router, http.MethodPost, "/api/v1/plans/1001/scan", `{"staffCode":"bad code!","sequenceNo":0}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, errors.CodeValidationError, resp.Code)
	assert.Contains(t, resp.Details, "staffCode")
	assert.Contains(t, resp.Details, "payload")
	assert.False(t, called)
}

func TestGetPlan_RejectsMalformedID(t *testing.T) {
	router := setupRouter(&mockVerificationAPI{})

	w := doJSON(router, http.MethodGet, "/api/v1/plans/bad%20id", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Details, "planId")
}

func TestListPlans_ParsesQuery(t *testing.T) {
	var got application.ListPlansQuery
	router := setupRouter(&mockVerificationAPI{
		listPlansFn: func(ctx context.Context, query application.ListPlansQuery) ([]*application.PlanSummaryDTO, error) {
			got = query
			return []*application.PlanSummaryDTO{{ID: "1001"}}, nil
		},
	})

	w := doJSON(router, http.MethodGet, "/api/v1/plans?onOrBefore=2026-03-02&code=P-1&active=true&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.OnOrBefore)
	assert.Equal(t, "2026-03-02", got.OnOrBefore.Format(dateLayout))
	assert.Equal(t, "P-1", got.CodeContains)
	assert.True(t, got.ActiveOnly)
	assert.Equal(t, 10, got.Limit)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestListPlans_RejectsBadDate(t *testing.T) {
	router := setupRouter(&mockVerificationAPI{})

	w := doJSON(router, http.MethodGet, "/api/v1/plans?onOrBefore=03/02/2026", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenAndFinish(t *testing.T) {
	router := setupRouter(&mockVerificationAPI{
		openPlanFn: func(ctx context.Context, cmd application.OpenPlanCommand) (*application.SessionDTO, error) {
			return &application.SessionDTO{Staff: application.ActorDTO{Code: cmd.StaffCode}, CurrentSequenceNo: 3}, nil
		},
		finishFn: func(ctx context.Context, cmd application.FinishCommand) (*application.PlanDTO, error) {
			return nil, errors.ErrPlanIncomplete(2)
		},
	})

	w := doJSON(router, http.MethodPost, "/api/v1/plans/1001/open", `{"staffCode":"T001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentSequenceNo":3`)

	w = doJSON(router, http.MethodPost, "/api/v1/plans/1001/finish", `{"staffCode":"T001"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.CodePlanIncomplete, decodeError(t, w).Code)
}

func TestDecodeAndStaff(t *testing.T) {
	router := setupRouter(&mockVerificationAPI{
		decodeFn: func(ctx context.Context, query application.DecodeQuery) (*application.DecodeResultDTO, error) {
			return &application.DecodeResultDTO{Primary: query.Payload, PrimaryFound: true}, nil
		},
	})

	w := doJSON(router, http.MethodPost, "/api/v1/codes/decode", `{"payload":"0104901234567894"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"primaryFound":true`)

	w = doJSON(router, http.MethodGet, "/api/v1/staff", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Aki Tanaka")
}
