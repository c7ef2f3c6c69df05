package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ordercast/notify-service/internal/logger"
	"github.com/ordercast/notify-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log, _ := logger.NewLogger()
	return NewClient(srv.URL, "test-key", 2*time.Second, log), srv
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestSend_PlatformPayloads(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key=test-key", r.Header.Get("Authorization"))
		got = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "m1"})
	})
	n := Notification{Title: "New order from Ann", Body: "2 item(s), total 25.50",
		Data: map[string]string{"order_id": "O1"}}

	id, err := c.Send(context.Background(), Target{Token: "tok-ios", Platform: model.PlatformIOS}, n)
	assert.NoError(t, err)
	assert.Equal(t, "m1", id)
	// iOS payload follows APNs aps/alert conventions
	aps, ok := got["aps"].(map[string]interface{})
	assert.True(t, ok)
	alert := aps["alert"].(map[string]interface{})
	assert.Equal(t, "New order from Ann", alert["title"])
	assert.Equal(t, "default", aps["sound"])
	assert.Nil(t, got["notification"])

	_, err = c.Send(context.Background(), Target{Token: "tok-and", Platform: model.PlatformAndroid}, n)
	assert.NoError(t, err)
	// android payload uses notification+data with high priority
	notif, ok := got["notification"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "New order from Ann", notif["title"])
	assert.Equal(t, "high", got["priority"])
	assert.Nil(t, got["aps"])

	_, err = c.Send(context.Background(), Target{Token: "tok-unk", Platform: model.PlatformUnknown}, n)
	assert.NoError(t, err)
	assert.NotNil(t, got["notification"])
}

func TestSend_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		permanent bool
	}{
		{"gone status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		}, true},
		{"not registered body", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"error": "NotRegistered"})
		}, true},
		{"invalid registration body", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"error": "InvalidRegistration"})
		}, true},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, false},
		{"unavailable body", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"error": "Unavailable"})
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, tc.handler)
			_, err := c.Send(context.Background(),
				Target{Token: "tok", Platform: model.PlatformAndroid}, Notification{})
			assert.Error(t, err)
			assert.Equal(t, tc.permanent, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestSendAll_AllSettled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["to"] == "tok-dead" {
			w.WriteHeader(http.StatusGone)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message_id": "m-" + body["to"].(string)})
	})

	targets := []Target{
		{Token: "tok-a", Platform: model.PlatformAndroid},
		{Token: "tok-dead", Platform: model.PlatformAndroid},
		{Token: "tok-b", Platform: model.PlatformIOS},
	}
	settlements := c.SendAll(context.Background(), targets, Notification{Title: "t"})
	assert.Len(t, settlements, 3)

	byToken := map[string]Settlement{}
	for _, s := range settlements {
		byToken[s.Target.Token] = s
	}
	assert.NoError(t, byToken["tok-a"].Err)
	assert.Equal(t, "m-tok-a", byToken["tok-a"].MessageID)
	assert.NoError(t, byToken["tok-b"].Err)
	assert.ErrorIs(t, byToken["tok-dead"].Err, ErrInvalidToken)
}

func TestEnsureRegistration_Idempotent(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/registrations", r.URL.Path)
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]string{"registration_id": "h1"})
			return
		}
		// second create conflicts; the existing handle comes back
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "registration already exists", "registration_id": "h1",
		})
	})

	id, err := c.EnsureRegistration(context.Background(), "tok", model.PlatformAndroid)
	assert.NoError(t, err)
	assert.Equal(t, "h1", id)

	// already-exists is success, not error
	id, err = c.EnsureRegistration(context.Background(), "tok", model.PlatformAndroid)
	assert.NoError(t, err)
	assert.Equal(t, "h1", id)
}

func TestEnsureRegistration_Failure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "bad platform"})
	})
	_, err := c.EnsureRegistration(context.Background(), "tok", model.Platform("windows"))
	assert.Error(t, err)
}
