package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := helpers.RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var (
	startAt = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	endAt   = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
)

func sampleAuction(id string) model.Auction {
	buyout := int64(200000)
	return model.Auction{
		AuctionID:    id,
		SellerID:     "seller1",
		Title:        "Vintage camera",
		Description:  "A working rangefinder from 1962",
		ImageURLs:    []string{"https://example.com/a.jpg"},
		StartPrice:   50000,
		CurrentPrice: 50000,
		BidStep:      5000,
		BuyoutPrice:  &buyout,
		StartAt:      startAt,
		EndAt:        endAt,
		Status:       model.StatusScheduled,
		CreatedAt:    startAt.Add(-time.Hour),
		UpdatedAt:    startAt.Add(-time.Hour),
	}
}

// newTestRouter wires every handler onto a bare engine; the acting user comes from the header
func newTestRouter(t *testing.T, subscriber EventSubscriber) (*gin.Engine, *MockBiddingServiceInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	if subscriber == nil {
		subscriber = events.NewBroker(4)
	}
	h := NewBiddingHandler(mockService, subscriber)

	router := gin.New()
	router.POST("/auctions", h.CreateAuctionHandler)
	router.GET("/auctions", h.ListAuctionsHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.PATCH("/auctions/:auction_id", h.UpdateAuctionHandler)
	router.POST("/auctions/:auction_id/bids", h.PlaceBidHandler)
	router.GET("/auctions/:auction_id/bids", h.GetBidsHandler)
	router.GET("/auctions/:auction_id/winning", h.GetWinningBidHandler)
	router.POST("/auctions/:auction_id/status-check", h.StatusCheckHandler)
	router.GET("/auctions/:auction_id/events", h.EventsHandler)
	router.GET("/users/:user_id/auctions", h.GetAuctionsByUserHandler)
	return router, mockService
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(helpers.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	validBody := func() map[string]any {
		return map[string]any{
			"title":        "Vintage camera",
			"description":  "A working rangefinder from 1962",
			"image_urls":   []string{"https://example.com/a.jpg"},
			"start_price":  50000,
			"bid_step":     "5000",
			"buyout_price": 200000,
			"start_at":     startAt.Format(time.RFC3339),
			"end_at":       endAt.Format(time.RFC3339),
		}
	}
	with := func(key string, value any) map[string]any {
		b := validBody()
		if value == nil {
			delete(b, key)
		} else {
			b[key] = value
		}
		return b
	}

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		expectedCode   string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:        "success",
			requestBody: validBody(),
			mockSetup: func(m *MockBiddingServiceInterface) {
				buyout := int64(200000)
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller1", model.AuctionSpec{
						Title:       "Vintage camera",
						Description: "A working rangefinder from 1962",
						ImageURLs:   []string{"https://example.com/a.jpg"},
						StartPrice:  50000,
						BidStep:     5000,
						BuyoutPrice: &buyout,
						StartAt:     startAt,
						EndAt:       endAt,
					}).
					Return(sampleAuction("a1"), nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "a1", data["auction_id"])
				require.Equal(t, "SCHEDULED", data["status"])
				require.Equal(t, 55000.0, data["minimum_bid"])
				require.Equal(t, "2030-01-01T10:00:00Z", data["start_at"])
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "missing_title",
			requestBody:    with("title", nil),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "title_too_long",
			requestBody:    with("title", strings.Repeat("x", 101)),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "short_description",
			requestBody:    with("description", "too short"),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "bad_image_url",
			requestBody:    with("image_urls", []string{"not a url"}),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "end_before_start",
			requestBody:    with("end_at", startAt.Add(-time.Minute).Format(time.RFC3339)),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_start_price",
			requestBody:    with("start_price", nil),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "fractional_price",
			requestBody:    with("start_price", "500.5"),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "negative_bid_step",
			requestBody:    with("bid_step", -5000),
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
		},
		{
			name:        "service_rejects_spec",
			requestBody: validBody(),
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller1", gomock.Any()).
					Return(model.Auction{}, biddingerrors.ErrValidation)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:        "service_generic_error",
			requestBody: validBody(),
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller1", gomock.Any()).
					Return(model.Auction{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
			expectedCode:   "INTERNAL",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodPost, "/auctions", tc.requestBody, "seller1")
			require.Equal(t, tc.expectedStatus, w.Code)

			resp := decodeBody(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, resp["code"])
			}
			if tc.validateData != nil {
				tc.validateData(t, resp["data"].(map[string]any))
			}
		})
	}
}

// Test ListAuctionsHandler
func TestListAuctionsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		query          string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedLen    int
	}{
		{
			name:  "filters_passed_through",
			query: "?status=running&seller_id=seller1&q=camera&page=2&limit=5",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					ListAuctions(gomock.Any(), model.AuctionFilter{
						Status:   model.StatusRunning,
						SellerID: "seller1",
						Query:    "camera",
						Page:     2,
						Limit:    5,
					}).
					Return([]model.Auction{sampleAuction("a1"), sampleAuction("a2")}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    2,
		},
		{
			name:  "no_filters",
			query: "",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					ListAuctions(gomock.Any(), model.AuctionFilter{}).
					Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:           "unknown_status",
			query:          "?status=sold",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero_page",
			query:          "?page=0&limit=abc",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "service_error",
			query: "",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					ListAuctions(gomock.Any(), gomock.Any()).
					Return(nil, biddingerrors.ErrStorage)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodGet, "/auctions"+tc.query, nil, "")
			require.Equal(t, tc.expectedStatus, w.Code)

			if w.Code == http.StatusOK {
				resp := decodeBody(t, w)
				require.Len(t, resp["data"].([]any), tc.expectedLen)
			}
		})
	}
}

// Test GetAuctionHandler
func TestGetAuctionHandler(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t, nil)
		mockService.EXPECT().GetAuction(gomock.Any(), "a1").Return(sampleAuction("a1"), nil)

		w := doRequest(t, router, http.MethodGet, "/auctions/a1", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		require.Equal(t, "seller1", data["seller_id"])
		require.Equal(t, 200000.0, data["buyout_price"])
		require.NotContains(t, data, "winner_id")
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t, nil)
		mockService.EXPECT().GetAuction(gomock.Any(), "missing").
			Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)

		w := doRequest(t, router, http.MethodGet, "/auctions/missing", nil, "")
		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeBody(t, w)
		require.Equal(t, "NOT_FOUND", resp["code"])
		require.Equal(t, "auction not found", resp["message"])
	})
}

// Test UpdateAuctionHandler
func TestUpdateAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		userID         string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedCode   string
		validateResp   func(t *testing.T, resp map[string]any)
	}{
		{
			name:        "edit_fields",
			userID:      "seller1",
			requestBody: map[string]any{"title": "Rangefinder", "bid_step": 10000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				title := "Rangefinder"
				step := int64(10000)
				updated := sampleAuction("a1")
				updated.Title = title
				updated.BidStep = step
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", "seller1", model.AuctionPatch{Title: &title, BidStep: &step}).
					Return(updated, nil)
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, "Rangefinder", data["title"])
				require.Equal(t, 60000.0, data["minimum_bid"])
			},
		},
		{
			name:        "cancel_lowercase_status",
			userID:      "seller1",
			requestBody: map[string]any{"status": "canceled"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				status := model.StatusCanceled
				canceled := sampleAuction("a1")
				canceled.Status = model.StatusCanceled
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", "seller1", model.AuctionPatch{Status: &status}).
					Return(canceled, nil)
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "CANCELED", resp["data"].(map[string]any)["status"])
			},
		},
		{
			name:        "clear_buyout",
			userID:      "seller1",
			requestBody: map[string]any{"clear_buyout": true},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", "seller1", model.AuctionPatch{ClearBuyout: true}).
					Return(sampleAuction("a1"), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "buyout_and_clear_conflict",
			userID:         "seller1",
			requestBody:    map[string]any{"clear_buyout": true, "buyout_price": 300000},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "unknown_status",
			userID:         "seller1",
			requestBody:    map[string]any{"status": "paused"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "not_the_seller",
			userID:      "intruder",
			requestBody: map[string]any{"title": "Mine now"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", "intruder", gomock.Any()).
					Return(model.Auction{}, biddingerrors.ErrForbidden)
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
		{
			name:        "already_running",
			userID:      "seller1",
			requestBody: map[string]any{"title": "Too late"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", "seller1", gomock.Any()).
					Return(model.Auction{}, &biddingerrors.StateError{
						Op:      "edit",
						Status:  model.StatusRunning,
						Allowed: []model.AuctionStatus{model.StatusScheduled},
					})
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_STATE",
			validateResp: func(t *testing.T, resp map[string]any) {
				details := resp["details"].(map[string]any)
				require.Equal(t, "RUNNING", details["auction_status"])
				require.Equal(t, []any{"SCHEDULED"}, details["allowed_statuses"])
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodPatch, "/auctions/a1", tc.requestBody, tc.userID)
			require.Equal(t, tc.expectedStatus, w.Code)

			resp := decodeBody(t, w)
			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, resp["code"])
			}
			if tc.validateResp != nil {
				tc.validateResp(t, resp)
			}
		})
	}
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		validateResp   func(t *testing.T, w *httptest.ResponseRecorder, resp map[string]any)
	}{
		{
			name:        "success",
			requestBody: map[string]any{"amount": 55000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(55000)).
					Return(model.BidResult{
						Bid: model.Bid{
							BidID:     uuid.NewString(),
							AuctionID: "a1",
							BidderID:  "bidder1",
							Amount:    55000,
							CreatedAt: now,
						},
						CurrentPrice: 55000,
						Status:       model.StatusRunning,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
			validateResp: func(t *testing.T, _ *httptest.ResponseRecorder, resp map[string]any) {
				data := resp["data"].(map[string]any)
				_, parseErr := uuid.Parse(data["bid_id"].(string))
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, "bidder1", data["bidder_id"])
				require.Equal(t, 55000.0, data["amount"])
				require.Equal(t, 55000.0, data["current_price"])
				require.Equal(t, "RUNNING", data["status"])
				require.Equal(t, false, data["ended"])
			},
		},
		{
			name:        "buyout_as_string_amount",
			requestBody: map[string]any{"amount": "200000"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				winner := "bidder1"
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(200000)).
					Return(model.BidResult{
						Bid:          model.Bid{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "bidder1", Amount: 200000, CreatedAt: now},
						CurrentPrice: 200000,
						Status:       model.StatusEnded,
						Ended:        true,
						WinnerID:     &winner,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
			validateResp: func(t *testing.T, _ *httptest.ResponseRecorder, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, true, data["ended"])
				require.Equal(t, "bidder1", data["winner_id"])
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_amount",
			requestBody:    map[string]any{},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "zero_amount",
			requestBody:    map[string]any{"amount": 0},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
		},
		{
			name:           "fractional_amount",
			requestBody:    map[string]any{"amount": "55000.01"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
		},
		{
			name:           "overflowing_amount",
			requestBody:    `{"amount": 100000000000000000000}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
		},
		{
			name:        "bid_too_low",
			requestBody: map[string]any{"amount": 54000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(54000)).
					Return(model.BidResult{}, &biddingerrors.BidRejection{
						Reason:     biddingerrors.ErrBidTooLow,
						Amount:     54000,
						MinimumBid: 55000,
						Status:     model.StatusRunning,
					})
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validateResp: func(t *testing.T, _ *httptest.ResponseRecorder, resp map[string]any) {
				require.Equal(t, "BID_TOO_LOW", resp["code"])
				details := resp["details"].(map[string]any)
				require.Equal(t, 55000.0, details["minimum_bid"])
				require.Equal(t, "RUNNING", details["auction_status"])
			},
		},
		{
			name:        "self_bid",
			requestBody: map[string]any{"amount": 60000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(60000)).
					Return(model.BidResult{}, &biddingerrors.BidRejection{Reason: biddingerrors.ErrSelfBid, Amount: 60000, MinimumBid: 55000})
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "seller cannot bid on own auction",
		},
		{
			name:        "auction_not_active",
			requestBody: map[string]any{"amount": 60000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(60000)).
					Return(model.BidResult{}, &biddingerrors.BidRejection{Reason: biddingerrors.ErrAuctionNotActive, Status: model.StatusEnded})
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is not accepting bids",
		},
		{
			name:        "busy",
			requestBody: map[string]any{"amount": 60000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(60000)).
					Return(model.BidResult{}, biddingerrors.ErrBusy)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "auction is busy",
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder, resp map[string]any) {
				require.Equal(t, "1", w.Header().Get("Retry-After"))
				require.Equal(t, "BUSY", resp["code"])
			},
		},
		{
			name:        "service_generic_error",
			requestBody: map[string]any{"amount": 60000},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "bidder1", int64(60000)).
					Return(model.BidResult{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodPost, "/auctions/a1/bids", tc.requestBody, "bidder1")
			require.Equal(t, tc.expectedStatus, w.Code)

			resp := decodeBody(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validateResp != nil {
				tc.validateResp(t, w, resp)
			}
		})
	}
}

// Test GetBidsHandler
func TestGetBidsHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		query          string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedLen    int
	}{
		{
			name:  "default_limit",
			query: "",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetBidHistory(gomock.Any(), "a1", helpers.DefaultHistoryLimit, 0).
					Return([]model.Bid{
						{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "user2", Amount: 60000, CreatedAt: now},
						{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "user1", Amount: 55000, CreatedAt: now.Add(-time.Second)},
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    2,
		},
		{
			name:  "explicit_page",
			query: "?limit=10&offset=20",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetBidHistory(gomock.Any(), "a1", 10, 20).
					Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:           "limit_too_large",
			query:          "?limit=101",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative_offset",
			query:          "?offset=-1",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "unknown_auction",
			query: "",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetBidHistory(gomock.Any(), "a1", gomock.Any(), gomock.Any()).
					Return(nil, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodGet, "/auctions/a1/bids"+tc.query, nil, "")
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				require.Len(t, decodeBody(t, w)["data"].([]any), tc.expectedLen)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		expectedCode   string
	}{
		{
			name: "success",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").
					Return(model.Bid{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "user2", Amount: 60000, CreatedAt: now}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
		},
		{
			name: "no_bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(model.Bid{}, biddingerrors.ErrNoBids)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no winning bid found",
			expectedCode:   "NO_BIDS",
		},
		{
			name: "unknown_auction",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(model.Bid{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
			expectedCode:   "NOT_FOUND",
		},
		{
			name: "service_generic_error",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(model.Bid{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodGet, "/auctions/a1/winning", nil, "")
			require.Equal(t, tc.expectedStatus, w.Code)

			resp := decodeBody(t, w)
			require.Equal(t, tc.expectedMsg, resp["message"])
			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, resp["code"])
			}
		})
	}
}

// Test StatusCheckHandler
func TestStatusCheckHandler(t *testing.T) {
	t.Parallel()

	t.Run("transitioned", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t, nil)
		running := sampleAuction("a1")
		running.Status = model.StatusRunning
		mockService.EXPECT().Transition(gomock.Any(), "a1").Return(running, true, nil)

		w := doRequest(t, router, http.MethodPost, "/auctions/a1/status-check", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "RUNNING", decodeBody(t, w)["data"].(map[string]any)["status"])
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t, nil)
		mockService.EXPECT().Transition(gomock.Any(), "a1").Return(model.Auction{}, false, biddingerrors.ErrAuctionNotFound)

		w := doRequest(t, router, http.MethodPost, "/auctions/a1/status-check", nil, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

// Test GetAuctionsByUserHandler
func TestGetAuctionsByUserHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		userID         string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedLen    int
	}{
		{
			name:   "success_multiple_auctions",
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "user1").
					Return([]model.Auction{sampleAuction("a1"), sampleAuction("a2")}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    2,
		},
		{
			name:   "user_without_bids",
			userID: "user2",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "user2").
					Return(nil, biddingerrors.ErrUserNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:   "service_generic_error",
			userID: "user3",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "user3").
					Return(nil, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, nil)
			tc.mockSetup(mockService)

			w := doRequest(t, router, http.MethodGet, "/users/"+tc.userID+"/auctions", nil, "")
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				require.Len(t, decodeBody(t, w)["data"].([]any), tc.expectedLen)
			}
		})
	}
}

// Test EventsHandler
func TestEventsHandler(t *testing.T) {
	t.Parallel()

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()
		broker := events.NewBroker(4)
		router, mockService := newTestRouter(t, broker)
		mockService.EXPECT().GetAuction(gomock.Any(), "missing").
			Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)

		w := doRequest(t, router, http.MethodGet, "/auctions/missing/events", nil, "")
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Zero(t, broker.SubscriberCount("missing"))
	})

	t.Run("streams_events", func(t *testing.T) {
		t.Parallel()
		broker := events.NewBroker(4)
		router, mockService := newTestRouter(t, broker)
		mockService.EXPECT().GetAuction(gomock.Any(), "a1").Return(sampleAuction("a1"), nil)

		srv := httptest.NewServer(router)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auctions/a1/events", nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		require.Eventually(t, func() bool { return broker.SubscriberCount("a1") == 1 }, 2*time.Second, 10*time.Millisecond)

		broker.Publish(events.Event{Type: events.BidPlaced, AuctionID: "a1", Data: map[string]any{"amount": 55000}})

		scanner := bufio.NewScanner(resp.Body)
		var eventName, data string
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event:"); ok {
				eventName = strings.TrimSpace(name)
			}
			if payload, ok := strings.CutPrefix(line, "data:"); ok {
				data = payload
				break
			}
		}
		require.Equal(t, string(events.BidPlaced), eventName)

		var e events.Event
		require.NoError(t, json.Unmarshal([]byte(data), &e))
		require.Equal(t, "a1", e.AuctionID)
		require.Equal(t, events.BidPlaced, e.Type)

		cancel()
		require.Eventually(t, func() bool { return broker.SubscriberCount("a1") == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

type stubHealth map[string]string

func (s stubHealth) Health(context.Context) map[string]string { return s }

// Test HealthHandler
func TestHealthHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		stats          stubHealth
		expectedStatus int
	}{
		{name: "up", stats: stubHealth{"status": "up", "driver": "memory"}, expectedStatus: http.StatusOK},
		{name: "down", stats: stubHealth{"status": "down", "driver": "postgres"}, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.GET("/health", HealthHandler(tc.stats))

			w := doRequest(t, router, http.MethodGet, "/health", nil, "")
			require.Equal(t, tc.expectedStatus, w.Code)
			data := decodeBody(t, w)["data"].(map[string]any)
			require.Equal(t, tc.stats["driver"], data["driver"])
		})
	}
}
