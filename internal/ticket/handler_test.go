package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ticketResult(args mock.Arguments) (*Ticket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Ticket), args.Error(1)
}

func (m *MockService) Issue(ctx context.Context, params IssueParams) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockService) MarkPaid(ctx context.Context, ticketID int64, settlement *Settlement) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID, settlement))
}

func (m *MockService) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ScanResult), args.Error(1)
}

func (m *MockService) CheckExpire(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockService) CheckExpireForOwner(ctx context.Context, ownerID int64) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

func (m *MockService) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockService) ListByOwner(ctx context.Context, ownerID int64) ([]Ticket, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Ticket), args.Error(1)
}

func (m *MockService) Disable(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockService) Activate(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockService) Delete(ctx context.Context, ticketID int64) error {
	return m.Called(ctx, ticketID).Error(0)
}

func (m *MockService) Lock(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockService) MarkRefunded(ctx context.Context, ticketID int64) (*Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ownerID, ticketID int64) error {
	return m.Called(ctx, ownerID, ticketID).Error(0)
}

func setupTicketRouter(svc Service, notifier Notifier, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, notifier)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	router.POST("/tickets", h.Issue)
	router.GET("/tickets", h.List)
	router.GET("/tickets/:id", h.Get)
	router.GET("/tickets/:id/qr", h.QRCode)
	router.POST("/tickets/check-expire", h.CheckExpireForOwner)
	router.POST("/gates/scan", h.Scan)
	router.POST("/admin/tickets/:id/disable", h.Disable)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Issue_DefaultsMultiplicity(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 7)

	want := IssueParams{OwnerID: 7, FareTypeID: 2, AmountCents: 30000, Multiplicity: 1}
	svc.On("Issue", mock.Anything, want).Return(&Ticket{ID: 1, OwnerID: 7, Status: StatusUnUsed}, nil)

	w := postJSON(t, router, "/tickets", map[string]int64{"fare_type_id": 2, "amount_cents": 30000})

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestHandler_Issue_Validation(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 7)

	w := postJSON(t, router, "/tickets", map[string]int64{"amount_cents": 30000})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestHandler_List_EmptyIsArray(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 7)
	svc.On("ListByOwner", mock.Anything, int64(7)).Return(nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_Get_HidesOtherRidersTickets(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 7)
	svc.On("Get", mock.Anything, int64(5)).Return(&Ticket{ID: 5, OwnerID: 8}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickets/5", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_QRCode(t *testing.T) {
	token := "gate-token-value"
	tests := []struct {
		name   string
		ticket *Ticket
		status int
	}{
		{"unpaid ticket", &Ticket{ID: 5, OwnerID: 7}, http.StatusConflict},
		{"paid ticket", &Ticket{ID: 5, OwnerID: 7, Paid: true, GateToken: &token, UpdatedAt: time.Now()}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			router := setupTicketRouter(svc, nil, 7)
			svc.On("Get", mock.Anything, int64(5)).Return(tt.ticket, nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickets/5/qr", nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Header().Get("Content-Disposition"), "ticket.jpeg")
				assert.NotZero(t, w.Body.Len())
			}
		})
	}
}

func TestHandler_Scan_NotifiesOnCheckOut(t *testing.T) {
	svc := new(MockService)
	notifier := new(MockNotifier)
	router := setupTicketRouter(svc, notifier, 0)

	in := ScanRequest{Token: "tok", TerminalID: 10, Direction: CheckIn}
	out := ScanRequest{Token: "tok", TerminalID: 12, Direction: CheckOut}
	svc.On("Scan", mock.Anything, in).Return(&ScanResult{OwnerID: 7, TicketID: 5, Status: StatusInUse}, nil)
	svc.On("Scan", mock.Anything, out).Return(&ScanResult{OwnerID: 7, TicketID: 5, Status: StatusExpired}, nil)
	notifier.On("Notify", mock.Anything, int64(7), int64(5)).Return(errors.New("queue down")).Once()

	assert.Equal(t, http.StatusOK, postJSON(t, router, "/gates/scan", in).Code)
	assert.Equal(t, http.StatusOK, postJSON(t, router, "/gates/scan", out).Code)

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestHandler_Scan_ErrorStatus(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 0)

	req := ScanRequest{Token: "tok", TerminalID: 10, Direction: CheckIn}
	svc.On("Scan", mock.Anything, req).Return(nil, ErrInvalidToken)

	w := postJSON(t, router, "/gates/scan", req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, router, "/gates/scan", map[string]interface{}{"token": "tok", "terminal_id": 10, "direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CheckExpireForOwner(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 7)
	svc.On("CheckExpireForOwner", mock.Anything, int64(7)).Return(3, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tickets/check-expire", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"expired":3}`, w.Body.String())
}

func TestHandler_Disable(t *testing.T) {
	svc := new(MockService)
	router := setupTicketRouter(svc, nil, 1)
	svc.On("Disable", mock.Anything, int64(5)).Return(nil, ErrNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/tickets/5/disable", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/tickets/abc/disable", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
