package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/cowork-booking-backend/internal/api"
	"github.com/nekogravitycat/cowork-booking-backend/internal/auth"
	"github.com/nekogravitycat/cowork-booking-backend/internal/event"
	"github.com/nekogravitycat/cowork-booking-backend/internal/idempotency"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
	reservationHttp "github.com/nekogravitycat/cowork-booking-backend/internal/reservation/http"
	"github.com/nekogravitycat/cowork-booking-backend/internal/resource"
	resourceHttp "github.com/nekogravitycat/cowork-booking-backend/internal/resource/http"
)

const webhookSecret = "hook-secret"

type testApp struct {
	container *Container
	events    *event.Recorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := &event.Recorder{}
	container := NewContainer(Config{
		JWTSecret:        "test-secret",
		JWTTTL:           time.Hour,
		WebhookSecret:    webhookSecret,
		ResourceRepo:     resource.NewMemoryRepository(),
		ReservationStore: reservation.NewMemoryStore(),
		Publisher:        events,
		Idempotency:      idempotency.NewMemoryStore(),
		Policy:           reservation.DefaultPolicy(),
	})
	return &testApp{container: container, events: events}
}

func (a *testApp) executeRequest(method, path string, body any, token string, headers ...string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.container.Router.ServeHTTP(w, req)
	return w
}

func (a *testApp) generateToken(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := a.container.JWTManager.Issue(userID, role)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestReservationFlow(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.generateToken(t, "staff-1", auth.RoleAdmin)
	aliceToken := a.generateToken(t, "alice", auth.RoleMember)
	bobToken := a.generateToken(t, "bob", auth.RoleMember)
	date := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")

	var roomID, aliceBooking string

	t.Run("Setup Resource", func(t *testing.T) {
		body := resourceHttp.CreateBody{
			Name:         "Focus Room",
			Capacity:     4,
			Rates:        resourceHttp.RatesBody{Hour: 10},
			OpeningHours: &resourceHttp.OpeningHoursBody{Open: "08:00", Close: "20:00"},
		}

		w := a.executeRequest("POST", "/v1/resources", body, aliceToken)
		assert.Equal(t, http.StatusForbidden, w.Code, "members cannot create resources")

		w = a.executeRequest("POST", "/v1/resources", body, adminToken)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		roomID = decode[resourceHttp.Response](t, w).ID
	})

	booking := func(start, end string) reservationHttp.CreateBody {
		return reservationHttp.CreateBody{
			ResourceID:    roomID,
			Date:          date,
			StartTime:     start,
			EndTime:       end,
			DurationType:  "hour",
			Duration:      2,
			Guests:        2,
			PaymentMethod: "onsite",
		}
	}

	t.Run("Create", func(t *testing.T) {
		w := a.executeRequest("POST", "/v1/reservations", booking("14:00", "16:00"), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = a.executeRequest("POST", "/v1/reservations", booking("14:00", "16:00"), aliceToken)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decode[reservationHttp.Response](t, w)
		assert.Equal(t, 20.0, resp.TotalPrice)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, "unpaid", resp.PaymentStatus)
		assert.Equal(t, "alice", resp.RequesterID)
		aliceBooking = resp.ID
	})

	t.Run("Conflict lists ranges only", func(t *testing.T) {
		w := a.executeRequest("POST", "/v1/reservations", booking("15:00", "17:00"), bobToken)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t,
			fmt.Sprintf(`{"error":"time slot already booked","details":[{"date":%q,"start_time":"14:00","end_time":"16:00"}]}`, date),
			w.Body.String())
		assert.NotContains(t, w.Body.String(), "alice")
	})

	t.Run("Adjacent succeeds", func(t *testing.T) {
		w := a.executeRequest("POST", "/v1/reservations", booking("16:00", "18:00"), bobToken)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("Validation details", func(t *testing.T) {
		body := booking("14:00", "16:00")
		body.Guests = 9
		body.EndTime = "13:00"
		w := a.executeRequest("POST", "/v1/reservations", body, bobToken)
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode[struct {
			Error   string `json:"error"`
			Details []struct {
				Field string `json:"field"`
			} `json:"details"`
		}](t, w)
		assert.Equal(t, "invalid reservation request", resp.Error)
		require.Len(t, resp.Details, 1)
		assert.Equal(t, "end_time", resp.Details[0].Field)
	})

	t.Run("Availability", func(t *testing.T) {
		w := a.executeRequest("GET", fmt.Sprintf("/v1/resources/%s/availability?date=%s", roomID, date), nil, bobToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[reservationHttp.AvailabilityResponse](t, w)
		assert.Equal(t, []reservationHttp.RangeBody{
			{StartTime: "08:00", EndTime: "14:00"},
			{StartTime: "18:00", EndTime: "20:00"},
		}, resp.Free)
		assert.Len(t, resp.Slots, 24)

		w = a.executeRequest("GET", fmt.Sprintf("/v1/resources/%s/availability?date=%s&start=13:00&end=14:30", roomID, date), nil, bobToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp = decode[reservationHttp.AvailabilityResponse](t, w)
		require.NotNil(t, resp.Check)
		assert.False(t, resp.Check.Available)
	})

	t.Run("Owner scoping", func(t *testing.T) {
		w := a.executeRequest("GET", "/v1/reservations/"+aliceBooking, nil, bobToken)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = a.executeRequest("GET", "/v1/reservations", nil, bobToken)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[response.PageResponse[reservationHttp.Response]](t, w)
		assert.Equal(t, 1, page.Total)

		w = a.executeRequest("GET", "/v1/reservations", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		page = decode[response.PageResponse[reservationHttp.Response]](t, w)
		assert.Equal(t, 2, page.Total)

		w = a.executeRequest("POST", "/v1/reservations/"+aliceBooking+"/cancel", nil, bobToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Modify", func(t *testing.T) {
		start, end := "09:00", "11:00"
		w := a.executeRequest("PATCH", "/v1/reservations/"+aliceBooking, reservationHttp.ModifyBody{StartTime: &start, EndTime: &end}, aliceToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "09:00", decode[reservationHttp.Response](t, w).StartTime)
	})

	t.Run("Staff lifecycle", func(t *testing.T) {
		w := a.executeRequest("POST", "/v1/reservations/"+aliceBooking+"/confirm", nil, aliceToken)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = a.executeRequest("POST", "/v1/reservations/"+aliceBooking+"/confirm", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "confirmed", decode[reservationHttp.Response](t, w).Status)

		w = a.executeRequest("POST", "/v1/reservations/"+aliceBooking+"/confirm", nil, adminToken)
		assert.Equal(t, http.StatusConflict, w.Code, "confirming twice is an illegal transition")

		w = a.executeRequest("POST", "/v1/reservations/"+aliceBooking+"/complete", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "completed", decode[reservationHttp.Response](t, w).Status)
	})

	t.Run("Payment webhook", func(t *testing.T) {
		body := booking("18:00", "19:00")
		body.PaymentMethod = "card"
		w := a.executeRequest("POST", "/v1/reservations", body, aliceToken)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		cardBooking := decode[reservationHttp.Response](t, w)
		assert.Equal(t, "payment_pending", cardBooking.Status)

		hook := reservationHttp.WebhookBody{ReservationID: cardBooking.ID, Outcome: "settled"}
		w = a.executeRequest("POST", "/v1/payments/webhook", hook, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = a.executeRequest("POST", "/v1/payments/webhook", hook, "", api.WebhookSecretHeader, webhookSecret)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		settled := decode[reservationHttp.Response](t, w)
		assert.Equal(t, "confirmed", settled.Status)
		assert.Equal(t, "paid", settled.PaymentStatus)

		w = a.executeRequest("POST", "/v1/payments/webhook", hook, "", api.WebhookSecretHeader, webhookSecret)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Events", func(t *testing.T) {
		var transitions []string
		for _, e := range a.events.Events() {
			if e.ReservationID == aliceBooking {
				transitions = append(transitions, e.From+">"+e.To)
			}
		}
		assert.Equal(t, []string{">pending", "pending>confirmed", "confirmed>completed"}, transitions)
	})
}

func TestIdempotentCreate(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.generateToken(t, "staff-1", auth.RoleAdmin)
	token := a.generateToken(t, "alice", auth.RoleMember)
	date := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")

	w := a.executeRequest("POST", "/v1/resources", resourceHttp.CreateBody{
		Name: "Hot Desk", Capacity: 1, Rates: resourceHttp.RatesBody{Day: 25},
	}, adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	roomID := decode[resourceHttp.Response](t, w).ID

	body := reservationHttp.CreateBody{
		ResourceID: roomID, Date: date, StartTime: "08:00", EndTime: "20:00",
		DurationType: "day", Duration: 1, Guests: 1, PaymentMethod: "paypal",
	}

	first := a.executeRequest("POST", "/v1/reservations", body, token, reservationHttp.IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	retry := a.executeRequest("POST", "/v1/reservations", body, token, reservationHttp.IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())

	assert.Equal(t, decode[reservationHttp.Response](t, first).ID, decode[reservationHttp.Response](t, retry).ID)
	assert.Equal(t, 25.0, decode[reservationHttp.Response](t, first).TotalPrice)

	other := a.executeRequest("POST", "/v1/reservations", body, token, reservationHttp.IdempotencyHeader, "k-2")
	assert.Equal(t, http.StatusConflict, other.Code)

	changed := body
	changed.Date = time.Now().UTC().AddDate(0, 0, 4).Format("2006-01-02")
	reused := a.executeRequest("POST", "/v1/reservations", changed, token, reservationHttp.IdempotencyHeader, "k-1")
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code, reused.Body.String())
}

func TestCreateResourceRejectsOutOfRangeRate(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.generateToken(t, "staff-1", auth.RoleAdmin)

	w := a.executeRequest("POST", "/v1/resources", resourceHttp.CreateBody{
		Name: "Boardroom", Capacity: 10, Rates: resourceHttp.RatesBody{Hour: 1e19},
	}, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = a.executeRequest("POST", "/v1/resources", resourceHttp.CreateBody{
		Name: "Boardroom", Capacity: 10, Rates: resourceHttp.RatesBody{Hour: 0.145},
	}, adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 0.15, decode[resourceHttp.Response](t, w).Rates.Hour)
}
