package discordblue

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/cbusillo/discord-blue/code128"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testAdminPassword = "hunter2-but-longer"

func newAPITestBot(t testing.TB, opts ...testBotOption) *Bot {
	t.Helper()
	bot, _ := newTestBot(t, opts...)
	hash, err := HashPassword(testAdminPassword)
	require.NoError(t, err)
	require.NoError(
		t, bot.store.Update(
			func(s *State) error {
				s.API.AdminPasswordHash = hash
				return nil
			},
		),
	)
	return bot
}

func apiRequest(
	t testing.TB,
	bot *Bot,
	method string,
	target string,
	body io.Reader,
	password string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(context.Background(), method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if password != "" {
		req.Header.Set("Authorization", bearerPrefix+password)
	}
	w := httptest.NewRecorder()
	bot.api.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t testing.TB, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAPI_HealthCheck(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)

	w := apiRequest(t, bot, http.MethodGet, apiHealthCheck, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))

	health := decodeJSON[healthCheckResponse](t, w)
	assert.False(t, health.DiscordGatewayConnected)
	assert.False(t, health.CommandsRegistered)
	assert.Equal(t, []string{}, health.LoadedDoodads)
	assert.Equal(t, "0s", health.Uptime)
}

func TestAPI_RequestID(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)

	req := httptest.NewRequest(http.MethodGet, apiHealthCheck, nil)
	req.Header.Set(xRequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	bot.api.engine.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(xRequestIDHeader))
}

func TestAPI_Barcode(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)

	w := apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathBarcode+"?data=ABC", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	barcode := decodeJSON[barcodeResponse](t, w)
	assert.Equal(t, "ABC", barcode.Data)
	assert.Equal(t, []int{code128.CodeStartB, 33, 34, 35, 1, code128.CodeStop}, barcode.Codes)
	assert.Equal(t, 1, barcode.Checksum)
	assert.Equal(t, "ÌABC!Î", barcode.Symbol)
	assert.NotEmpty(t, barcode.Modules)

	w = apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathBarcode, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathBarcode+"?data=caf%C3%A9", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON[httpError](t, w).Error, "invalid character")
}

func TestAPI_Label(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(
		t, withState(
			func(s *State) {
				s.AssetLabelPrinter.Schools = map[string]string{"lincoln_high": "Lincoln High"}
			},
		),
	)

	w := apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathLabel+"?school=lincoln_high&id=1234&id=5678", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, pdfContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="lincoln_high.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathLabel+"?school=Other%20School&id=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `inline; filename="other_school.pdf"`, w.Header().Get("Content-Disposition"))

	w = apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathLabel+"?school=lincoln_high", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(t, bot, http.MethodGet, apiPrefix+apiPathLabel+"?school=x&id=1&id=2&id=3&id=4", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_AdminAuth(t *testing.T) {
	t.Parallel()
	target := apiPrefix + apiAdminPrefix + apiPathDoodads

	t.Run("no password set", func(t *testing.T) {
		t.Parallel()
		bot, _ := newTestBot(t)
		w := apiRequest(t, bot, http.MethodGet, target, nil, "anything")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid password", func(t *testing.T) {
		t.Parallel()
		bot := newAPITestBot(t)
		w := apiRequest(t, bot, http.MethodGet, target, nil, testAdminPassword)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("failures are rate limited", func(t *testing.T) {
		t.Parallel()
		bot := newAPITestBot(t)

		w := apiRequest(t, bot, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		for range authFailureBurst - 1 {
			w = apiRequest(t, bot, http.MethodGet, target, nil, "wrong")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, unauthorizedResponse, decodeJSON[httpError](t, w).Error)
		}

		w = apiRequest(t, bot, http.MethodGet, target, nil, testAdminPassword)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

func TestAPI_Doodads(t *testing.T) {
	t.Parallel()
	bot := newAPITestBot(t)
	admin := apiPrefix + apiAdminPrefix

	w := apiRequest(t, bot, http.MethodGet, admin+apiPathDoodads, nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code)
	doodads := decodeJSON[doodadsResponse](t, w)
	assert.Equal(t, bot.doodads.Available(), doodads.Available)
	assert.Empty(t, doodads.Loaded)

	w = apiRequest(t, bot, http.MethodPost, admin+"/doodads/"+templateDoodadName+"/load", nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(
		t,
		doodadActionResponse{Message: "Loaded " + templateDoodadName, Commands: 4},
		decodeJSON[doodadActionResponse](t, w),
	)
	assert.Equal(t, []string{templateDoodadName}, bot.store.State().Discord.LoadedDoodads)

	w = apiRequest(t, bot, http.MethodPost, admin+"/doodads/"+templateDoodadName+"/load", nil, testAdminPassword)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = apiRequest(t, bot, http.MethodPost, admin+"/doodads/nope/load", nil, testAdminPassword)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = apiRequest(t, bot, http.MethodPost, admin+"/doodads/"+templateDoodadName+"/unload", nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, decodeJSON[doodadActionResponse](t, w).Commands)

	w = apiRequest(t, bot, http.MethodPost, admin+"/doodads/"+templateDoodadName+"/unload", nil, testAdminPassword)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_Schools(t *testing.T) {
	t.Parallel()
	bot := newAPITestBot(t)
	target := apiPrefix + apiAdminPrefix + apiPathSchools

	w := apiRequest(t, bot, http.MethodGet, target, nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeJSON[map[string]string](t, w))

	w = apiRequest(t, bot, http.MethodPost, target, strings.NewReader(`{"name":"Lincoln High"}`), testAdminPassword)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, map[string]string{"lincoln_high": "Lincoln High"}, decodeJSON[map[string]string](t, w))

	w = apiRequest(t, bot, http.MethodPost, target, strings.NewReader(`{}`), testAdminPassword)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_PrintJobsAndShipments(t *testing.T) {
	t.Parallel()
	bot := newAPITestBot(t)
	ctx := context.Background()
	admin := apiPrefix + apiAdminPrefix

	for _, key := range []string{"first", "second"} {
		_, err := bot.db.Create(ctx, &PrintJob{SchoolKey: key, State: printJobStateSubmitted})
		require.NoError(t, err)
	}
	_, err := bot.db.Create(ctx, &Shipment{ToName: "Jane Doe", Status: "SUCCESS"})
	require.NoError(t, err)

	w := apiRequest(t, bot, http.MethodGet, admin+apiPathPrintJobs+"?limit=1", nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	jobs := decodeJSON[[]PrintJob](t, w)
	require.Len(t, jobs, 1)
	assert.Equal(t, "second", jobs[0].SchoolKey)

	w = apiRequest(t, bot, http.MethodGet, admin+apiPathPrintJobs+"?limit=9999", nil, testAdminPassword)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(t, bot, http.MethodGet, admin+apiPathShipments, nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shipments := decodeJSON[[]Shipment](t, w)
	require.Len(t, shipments, 1)
	assert.Equal(t, "Jane Doe", shipments[0].ToName)
}

func TestAPI_ReloadState(t *testing.T) {
	t.Parallel()
	bot := newAPITestBot(t)

	w := apiRequest(t, bot, http.MethodPost, apiPrefix+apiAdminPrefix+apiPathReloadState, nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, reloadedConfigMessage, decodeJSON[httpReply](t, w).Message)
}

func TestAPI_Quit(t *testing.T) {
	t.Parallel()
	bot := newAPITestBot(t)
	bot.signalStop = make(chan struct{}, 1)

	w := apiRequest(t, bot, http.MethodPost, apiPrefix+apiAdminPrefix+apiPathQuit, nil, testAdminPassword)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "quitting", decodeJSON[httpReply](t, w).Message)

	select {
	case <-bot.signalStop:
	default:
		t.Fatal("expected stop signal")
	}
}
